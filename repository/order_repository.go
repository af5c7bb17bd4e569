package repository

import (
	"context"
	"errors"
	"strings"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicateIdempotencyKey signals a unique violation on
	// (user_id, idempotency_key).
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrAlreadyPaid signals the order already reached paid; callers
	// treat a matching duplicate callback as a no-op.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrIllegalTransition signals a status change the state machine
	// forbids.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrCouponAlreadyUsed signals a second usage by the same user.
	ErrCouponAlreadyUsed = errors.New("coupon already used by user")
	// ErrCouponExhausted signals the usage cap was reached by commit
	// time.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByUserAndKey(ctx context.Context, userID uuid.UUID, idempotencyKey string) (*models.Order, error)
	FindByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentID, signature string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error)
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts a new order. A unique violation on the idempotency
// key is surfaced as ErrDuplicateIdempotencyKey so the caller can
// re-read the existing row.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

// FindByID retrieves an order with its items.
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByUserAndKey retrieves the order created under one checkout
// attempt, if any. This is the replay-safe lookup.
func (r *GormOrderRepository) FindByUserAndKey(ctx context.Context, userID uuid.UUID, idempotencyKey string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND idempotency_key = ?", userID, idempotencyKey).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByRazorpayOrderID retrieves an order by its gateway order id.
func (r *GormOrderRepository) FindByRazorpayOrderID(ctx context.Context, razorpayOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("razorpay_order_id = ?", razorpayOrderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByUserID retrieves orders for a user with pagination.
func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Items").
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// FindAll retrieves all orders with pagination (admin).
func (r *GormOrderRepository) FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("Items").
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// MarkPaid performs the terminal paid transition in one transaction:
// the order row is locked, the pending->paid transition is enforced,
// and any attached coupon has its usage recorded against the per-user
// uniqueness and the usage cap. Any conflict rolls back the whole
// transition and the order stays pending.
func (r *GormOrderRepository) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentID, signature string) (*models.Order, error) {
	var order models.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}

		if order.Status == models.OrderStatusPaid {
			return ErrAlreadyPaid
		}
		if !order.Status.CanTransitionTo(models.OrderStatusPaid) {
			return ErrIllegalTransition
		}

		if order.CouponID != nil {
			usage := models.CouponUsage{
				CouponID: *order.CouponID,
				UserID:   order.UserID,
				OrderID:  order.ID,
			}
			if err := tx.Create(&usage).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrCouponAlreadyUsed
				}
				return err
			}

			res := tx.Model(&models.Coupon{}).
				Where("id = ? AND (max_usage = 0 OR used_count < max_usage)", *order.CouponID).
				UpdateColumn("used_count", gorm.Expr("used_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCouponExhausted
			}
		}

		return tx.Model(&order).Updates(map[string]interface{}{
			"status":              models.OrderStatusPaid,
			"razorpay_payment_id": paymentID,
			"razorpay_signature":  signature,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	// Returned struct reflects the committed row regardless of ORM
	// write-back behavior; callers build the resolution payload from it.
	order.Status = models.OrderStatusPaid
	order.RazorpayPaymentID = &paymentID
	order.RazorpaySignature = &signature
	return &order, nil
}

// UpdateStatus applies an administrative status change, enforcing the
// state machine under a row lock. The paid transition is rejected
// here; it belongs to MarkPaid alone.
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	var order models.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}

		if next == models.OrderStatusPaid || !order.Status.CanTransitionTo(next) {
			return ErrIllegalTransition
		}

		return tx.Model(&order).Update("status", next).Error
	})
	if err != nil {
		return nil, err
	}

	order.Status = next
	return &order, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "unique constraint")
}
