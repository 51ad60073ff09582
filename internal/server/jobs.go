package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) TriggerBillingSweep(c *gin.Context) {
	summary, err := s.billingSvc.RunBillingSweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) TriggerSuspensionSweep(c *gin.Context) {
	summary, err := s.billingSvc.RunSuspensionSweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
