package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// validTransitions encodes the order state machine. No transition skips
// pending and none moves backward; failed is only reachable pre-paid.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// DeliveryAddress is the address snapshot embedded into each order.
type DeliveryAddress struct {
	FullName string `gorm:"type:varchar(120);not null" json:"full_name"`
	Phone    string `gorm:"type:varchar(10);not null" json:"phone"`
	Address  string `gorm:"type:varchar(512);not null" json:"address"`
	City     string `gorm:"type:varchar(80);not null" json:"city"`
	State    string `gorm:"type:varchar(80);not null" json:"state"`
	Pincode  string `gorm:"type:varchar(6);not null" json:"pincode"`
}

// Order is a customer order. Amount and DiscountAmount are always
// integer paise; the rupee conversion happens once at the API boundary.
// Status is written to "paid" exclusively by the verification service.
type Order struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_user_idem_key" json:"user_id"`
	IdempotencyKey    string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_idem_key" json:"idempotency_key"`
	Amount            int64           `gorm:"not null" json:"amount"` // paise
	Status            OrderStatus     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	DeliveryAddress   DeliveryAddress `gorm:"embedded;embeddedPrefix:addr_" json:"delivery_address"`
	RazorpayOrderID   *string         `gorm:"type:varchar(64);index" json:"razorpay_order_id"`
	RazorpayPaymentID *string         `gorm:"type:varchar(64)" json:"razorpay_payment_id"`
	RazorpaySignature *string         `gorm:"type:varchar(128)" json:"-"`
	CouponID          *uuid.UUID      `gorm:"type:uuid" json:"coupon_id,omitempty"`
	DiscountAmount    int64           `gorm:"not null;default:0" json:"discount_amount"` // paise
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	Items             []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// OrderItem is a line item with the product denormalized at order time,
// so historical orders stay stable when the catalog changes.
type OrderItem struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID      uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	ProductName  string    `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductImage string    `gorm:"type:varchar(1024)" json:"product_image"`
	UnitPrice    int64     `gorm:"not null" json:"unit_price"` // paise
	Quantity     int       `gorm:"not null" json:"quantity"`
}
