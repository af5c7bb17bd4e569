package models

import "time"

// CheckoutItem is one cart line crossing the checkout boundary, with
// the product snapshot taken client-side at add-to-cart time.
type CheckoutItem struct {
	ProductID    string  `json:"product_id" binding:"required,uuid"`
	ProductName  string  `json:"product_name" binding:"required"`
	ProductImage string  `json:"product_image"`
	UnitPrice    float64 `json:"unit_price" binding:"required,gt=0"` // rupees
	Quantity     int     `json:"quantity" binding:"required,min=1"`
}

// AddressInput is the delivery address as submitted. Structural checks
// are binding tags; the digit-format checks carry field-specific
// messages and live in the checkout service.
type AddressInput struct {
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Address  string `json:"address" binding:"required"`
	City     string `json:"city" binding:"required"`
	State    string `json:"state" binding:"required"`
	Pincode  string `json:"pincode" binding:"required"`
}

// CheckoutRequest starts (or idempotently resumes) a checkout attempt.
// Amount is rupees; it is converted to paise exactly once.
type CheckoutRequest struct {
	Amount          float64        `json:"amount" binding:"required,gt=0"`
	Items           []CheckoutItem `json:"items" binding:"omitempty,dive"` // empty falls back to the Redis cart
	DeliveryAddress AddressInput   `json:"delivery_address" binding:"required"`
	IdempotencyKey  string         `json:"idempotency_key"`
	CouponID        string         `json:"coupon_id" binding:"omitempty,uuid"`
}

// CheckoutSession is what the client needs to open the payment UI.
// RazorpayOrderID is nil for orders created through the degraded
// fallback so reconciliation can tell them apart.
type CheckoutSession struct {
	RazorpayOrderID *string `json:"razorpay_order_id"`
	Amount          int64   `json:"amount"` // paise
	Currency        string  `json:"currency"`
	KeyID           string  `json:"key_id"`
	OrderID         string  `json:"order_id"`
	IdempotencyKey  string  `json:"idempotency_key"`
}

// VerifyPaymentRequest is the gateway callback payload.
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
	OrderID           string `json:"order_id" binding:"required,uuid"`
}

// ResolutionStatus is the terminal outcome of one payment attempt.
type ResolutionStatus string

const (
	ResolutionSuccess   ResolutionStatus = "success"
	ResolutionCancelled ResolutionStatus = "cancelled"
	ResolutionTimeout   ResolutionStatus = "timeout"
)

// PaymentResolution is the hand-off payload carried from the gateway
// callback back to the waiting checkout attempt. WrittenAt detects
// stale slots left behind by crashed attempts.
type PaymentResolution struct {
	Status            ResolutionStatus `json:"status"`
	OrderID           string           `json:"order_id,omitempty"`
	RazorpayOrderID   string           `json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string           `json:"razorpay_payment_id,omitempty"`
	RazorpaySignature string           `json:"razorpay_signature,omitempty"`
	WrittenAt         time.Time        `json:"written_at"`
}

// Cart is the Redis-held cart written by the cart collaborator.
type Cart struct {
	UserID    string         `json:"user_id"`
	Items     []CheckoutItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}
