package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/services"
)

const maxWebhookBody = 1 << 20

// signatureHeaders are checked in order; gateways name the header differently
var signatureHeaders = []string{"X-Signature", "kr-hash"}

// WebhookReconciler processes gateway notifications
type WebhookReconciler interface {
	Handle(ctx context.Context, gatewayName string, payload []byte, signature string) (*services.WebhookResult, error)
}

// WebhookHandler receives payment gateway notifications
type WebhookHandler struct {
	reconciler WebhookReconciler
	logger     *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler WebhookReconciler, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// HandleWebhook applies a gateway notification.
// Rejected notifications get 400 and unknown transactions 404 so the gateway
// retries later; neither ever produces a 5xx.
// POST /api/v1/webhooks/:gateway
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	gateway, ok := requiredParam(c, "gateway")
	if !ok {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"gateway": gateway,
			"outcome": services.WebhookRejected,
			"reason":  "unreadable body",
		})
		return
	}

	var signature string
	for _, header := range signatureHeaders {
		if signature = c.GetHeader(header); signature != "" {
			break
		}
	}

	result, err := h.reconciler.Handle(c.Request.Context(), gateway, payload, signature)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	switch result.Outcome {
	case services.WebhookRejected:
		c.JSON(http.StatusBadRequest, result)
	case services.WebhookUnknownTransaction:
		c.JSON(http.StatusNotFound, result)
	default:
		c.JSON(http.StatusOK, result)
	}
}
