package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/middleware"
)

// WebhookHandler receives payment provider deliveries.
type WebhookHandler struct {
	common *CommonServices
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(common *CommonServices) *WebhookHandler {
	return &WebhookHandler{common: common}
}

// HandlePaymentWebhook handles POST /api/v1/payments/webhook. The provider
// is always acknowledged with 200 regardless of how the event was handled;
// returning an error here would only trigger redeliveries of events we
// cannot act on.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.common.logger.Warn("webhook body read failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	res := h.common.Reconciliation.Process(c.Request.Context(), payload)

	log := middleware.LogWithCorrelationID(c.Request.Context())
	if log != nil {
		log.Info("webhook delivery handled",
			zap.String("event_type", res.EventType),
			zap.String("outcome", string(res.Outcome)),
			zap.String("account_id", res.AccountID),
			zap.String("invoice_id", res.InvoiceID),
			zap.String("detail", res.Detail))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "outcome": string(res.Outcome)})
}
