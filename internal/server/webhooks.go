package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var event stripe.Event
	if s.cfg.StripeWebhookSecret != "" {
		event, err = webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), s.cfg.StripeWebhookSecret)
		if err != nil {
			s.log.Warn("webhook signature verification failed", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
	} else {
		// Unsigned payloads are only accepted when no secret is configured,
		// which is a local development setup.
		if err := json.Unmarshal(payload, &event); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	if err := s.billingSvc.ProcessWebhookEvent(c.Request.Context(), event); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
