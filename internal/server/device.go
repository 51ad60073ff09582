package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	usagedomain "github.com/Boateng555/smartmailbox/internal/usage/domain"
)

func (s *Server) RegisterDevice(c *gin.Context) {
	var req devicedomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	device, err := s.devicesvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, device)
}

func (s *Server) GetDeviceByID(c *gin.Context) {
	device, err := s.devicesvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, device)
}

type claimDeviceRequest struct {
	OwnerID string `json:"owner_id"`
}

func (s *Server) ClaimDevice(c *gin.Context) {
	deviceID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, devicedomain.ErrInvalidDevice)
		return
	}

	var req claimDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ownerID, err := parseSnowflakeParam(req.OwnerID)
	if err != nil {
		AbortWithError(c, devicedomain.ErrInvalidOwner)
		return
	}

	if err := s.devicesvc.Activate(c.Request.Context(), deviceID, ownerID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "claimed"})
}

func (s *Server) DeviceHeartbeat(c *gin.Context) {
	deviceID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, devicedomain.ErrInvalidDevice)
		return
	}

	// Heartbeats are connectivity, not billable work: they bypass the
	// entitlement gate so suspended devices stay reachable.
	if err := s.devicesvc.Heartbeat(c.Request.Context(), deviceID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type captureRequest struct {
	DataBytes int64 `json:"data_bytes"`
}

func (s *Server) DeviceCapture(c *gin.Context) {
	device, err := s.devicesvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.DataBytes < 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.usagesvc.CheckAndRecord(c.Request.Context(), device, req.DataBytes)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !result.Allowed {
		s.metrics.CapturesDenied.WithLabelValues(result.Reason).Inc()
		c.JSON(denialStatus(result.Reason), gin.H{
			"allowed": false,
			"reason":  result.Reason,
			"usage":   result.Record,
		})
		return
	}

	s.metrics.CapturesAccepted.Inc()
	c.JSON(http.StatusAccepted, gin.H{
		"allowed": true,
		"usage":   result.Record,
	})
}

func (s *Server) GetDeviceUsage(c *gin.Context) {
	deviceID, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, devicedomain.ErrInvalidDevice)
		return
	}

	record, err := s.usagesvc.GetCurrentMonth(c.Request.Context(), deviceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, record)
}

func denialStatus(reason string) int {
	switch reason {
	case usagedomain.ReasonDeviceNotActivated:
		return http.StatusForbidden
	case usagedomain.ReasonSubscriptionNotActive, usagedomain.ReasonNoSubscription:
		return http.StatusPaymentRequired
	case usagedomain.ReasonNotificationLimitReached, usagedomain.ReasonDataLimitReached:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}
