package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookController receives Razorpay webhook events.
type WebhookController struct {
	gateway  services.PaymentGateway
	verifier *services.VerificationService
	logger   *zap.Logger
}

// NewWebhookController creates a WebhookController.
func NewWebhookController(gateway services.PaymentGateway, verifier *services.VerificationService, logger *zap.Logger) *WebhookController {
	return &WebhookController{gateway: gateway, verifier: verifier, logger: logger}
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// RazorpayWebhook handles POST /webhooks/razorpay. The body HMAC is
// checked against the webhook secret before anything is parsed;
// captured payments funnel into the same idempotent confirmation path
// as the client callback.
func (wc *WebhookController) RazorpayWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if !wc.gateway.VerifyWebhookSignature(body, signature) {
		wc.logger.Warn("Webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		wc.logger.Error("Failed to parse webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	wc.logger.Info("Processing Razorpay webhook", zap.String("event", event.Event))

	switch event.Event {
	case "payment.captured":
		entity := event.Payload.Payment.Entity
		if err := wc.verifier.HandleCapturedWebhook(c.Request.Context(), entity.OrderID, entity.ID, signature); err != nil {
			wc.logger.Error("Webhook processing failed",
				zap.String("razorpay_order_id", entity.OrderID),
				zap.Error(err),
			)
		}
	default:
		wc.logger.Info("Unhandled webhook event type", zap.String("event", event.Event))
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
