package models

import "time"

// PaymentEvent is published to Kafka after a terminal payment outcome.
type PaymentEvent struct {
	Type      string    `json:"type"` // payment_succeeded | payment_failed
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"` // paise
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}
