package services

import (
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// GatewayOrder is the gateway-side representation of a pending charge.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

// PaymentGateway abstracts the Razorpay API surface this service uses.
type PaymentGateway interface {
	CreateOrder(amountPaise int64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error)
	VerifyPaymentSignature(razorpayOrderID, razorpayPaymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	KeyID() string
}

// RazorpayService wraps the Razorpay SDK client.
type RazorpayService struct {
	client        *razorpay.Client
	keyID         string
	keySecret     string
	webhookSecret string
}

// NewRazorpayService creates a RazorpayService.
func NewRazorpayService(keyID, keySecret, webhookSecret string) *RazorpayService {
	return &RazorpayService{
		client:        razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

// CreateOrder creates a gateway order for the given amount in paise.
// The receipt carries the idempotency key so the gateway order can be
// traced back to one checkout attempt.
func (s *RazorpayService) CreateOrder(amountPaise int64, currency, receipt string, notes map[string]interface{}) (*GatewayOrder, error) {
	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := s.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order create: %w", err)
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("razorpay order create: missing id in response")
	}

	return &GatewayOrder{ID: id, Amount: amountPaise, Currency: currency}, nil
}

// VerifyPaymentSignature checks the HMAC the gateway computed over
// order_id|payment_id with the server-held secret.
func (s *RazorpayService) VerifyPaymentSignature(razorpayOrderID, razorpayPaymentID, signature string) bool {
	params := map[string]interface{}{
		"razorpay_order_id":   razorpayOrderID,
		"razorpay_payment_id": razorpayPaymentID,
	}
	return utils.VerifyPaymentSignature(params, signature, s.keySecret)
}

// VerifyWebhookSignature checks the webhook body HMAC.
func (s *RazorpayService) VerifyWebhookSignature(body []byte, signature string) bool {
	return utils.VerifyWebhookSignature(string(body), signature, s.webhookSecret)
}

// KeyID returns the public key id the payment UI needs.
func (s *RazorpayService) KeyID() string {
	return s.keyID
}
