package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CouponType represents the type of discount a coupon provides.
type CouponType string

const (
	CouponTypeFixed      CouponType = "fixed"
	CouponTypePercentage CouponType = "percentage"
)

// Coupon is a promotional coupon. Value is paise for fixed coupons and
// a percentage (0-100) for percentage coupons; MaxDiscount and
// MinOrderValue are paise.
type Coupon struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code          string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Type          CouponType     `gorm:"type:varchar(20);not null" json:"type"`
	Value         int64          `gorm:"not null" json:"value"`
	MaxDiscount   *int64         `json:"max_discount,omitempty"`
	MinOrderValue int64          `gorm:"not null;default:0" json:"min_order_value"`
	MaxUsage      int            `gorm:"not null;default:0" json:"max_usage"` // 0 = unlimited
	UsedCount     int            `gorm:"not null;default:0" json:"used_count"`
	ExpiresAt     time.Time      `gorm:"not null" json:"expires_at"`
	Active        bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// CouponUsage records one redemption of a coupon by a user. The unique
// index enforces at most one usage per (coupon, user).
type CouponUsage struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CouponID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_user" json:"coupon_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_user" json:"user_id"`
	OrderID  uuid.UUID `gorm:"type:uuid;not null" json:"order_id"`
	UsedAt   time.Time `gorm:"autoCreateTime" json:"used_at"`
}

// CreateCouponRequest is the admin payload for creating a coupon.
// Money fields are rupees and converted to paise once at the boundary.
type CreateCouponRequest struct {
	Code          string     `json:"code" binding:"required,min=3,max=64"`
	Type          CouponType `json:"type" binding:"required,oneof=fixed percentage"`
	Value         float64    `json:"value" binding:"required,gt=0"`
	MaxDiscount   *float64   `json:"max_discount" binding:"omitempty,gt=0"`
	MinOrderValue float64    `json:"min_order_value" binding:"gte=0"`
	MaxUsage      int        `json:"max_usage" binding:"gte=0"`
	ExpiresAt     time.Time  `json:"expires_at" binding:"required"`
}

// ValidateCouponRequest is the payload for validating a coupon against
// a cart total (rupees).
type ValidateCouponRequest struct {
	Code      string  `json:"code" binding:"required"`
	CartTotal float64 `json:"cart_total" binding:"required,gt=0"`
}

// ValidateCouponResponse reports the computed discount without
// committing any usage.
type ValidateCouponResponse struct {
	Valid          bool       `json:"valid"`
	Code           string     `json:"code"`
	Type           CouponType `json:"type,omitempty"`
	CouponID       string     `json:"coupon_id,omitempty"`
	DiscountAmount int64      `json:"discount_amount"` // paise
	Message        string     `json:"message,omitempty"`
}
