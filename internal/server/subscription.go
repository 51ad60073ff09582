package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
)

func (s *Server) StartTrial(c *gin.Context) {
	var req subscriptiondomain.CreateTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscription, err := s.subscriptionSvc.CreateTrial(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, subscription)
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	subscription, err := s.subscriptionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidSubscription)
		return
	}

	if err := s.billingSvc.CancelSubscription(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) ListSubscriptionPayments(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidSubscription)
		return
	}

	payments, err := s.billingSvc.ListPayments(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func parseSnowflakeParam(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
