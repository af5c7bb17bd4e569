package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CouponService defines the interface for coupon business logic.
// Validation computes the discount without committing usage; usage is
// recorded only inside the paid transaction.
type CouponService interface {
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, *ServiceError)
	ValidateCoupon(ctx context.Context, userID string, req *models.ValidateCouponRequest) (*models.ValidateCouponResponse, *ServiceError)
	CheckForOrder(ctx context.Context, couponID, userID uuid.UUID, amountPaise int64) (int64, *ServiceError)
	GetCoupon(ctx context.Context, code string) (*models.Coupon, *ServiceError)
	DeactivateCoupon(ctx context.Context, code string) *ServiceError
	ListCoupons(ctx context.Context, page, limit int) ([]models.Coupon, int64, *ServiceError)
}

type couponServiceImpl struct {
	repo   repository.CouponRepository
	logger *zap.Logger
}

// NewCouponService creates a new CouponService.
func NewCouponService(repo repository.CouponRepository, logger *zap.Logger) CouponService {
	return &couponServiceImpl{repo: repo, logger: logger}
}

// ComputeDiscount returns the discount in paise for an order amount in
// paise: fixed coupons give min(value, amount); percentage coupons give
// min(amount*value/100, max_discount).
func ComputeDiscount(coupon *models.Coupon, amountPaise int64) int64 {
	var discount int64
	switch coupon.Type {
	case models.CouponTypeFixed:
		discount = coupon.Value
		if discount > amountPaise {
			discount = amountPaise
		}
	case models.CouponTypePercentage:
		discount = amountPaise * coupon.Value / 100
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
		if discount > amountPaise {
			discount = amountPaise
		}
	}
	return discount
}

// CheckCoupon validates a coupon against an order amount for a user
// and returns the computed discount. Shared by the validation endpoint
// and the checkout path.
func (s *couponServiceImpl) checkCoupon(ctx context.Context, coupon *models.Coupon, userID uuid.UUID, amountPaise int64) (int64, string) {
	if time.Now().After(coupon.ExpiresAt) {
		return 0, "Coupon has expired"
	}
	if coupon.MaxUsage > 0 && coupon.UsedCount >= coupon.MaxUsage {
		return 0, "Coupon usage limit reached"
	}
	if amountPaise < coupon.MinOrderValue {
		return 0, fmt.Sprintf("Minimum order value of ₹%.2f required", float64(coupon.MinOrderValue)/100)
	}

	used, err := s.repo.HasUsage(ctx, coupon.ID, userID)
	if err != nil {
		s.logger.Error("Failed to check coupon usage", zap.String("code", coupon.Code), zap.Error(err))
		return 0, "Failed to check coupon usage"
	}
	if used {
		return 0, "Coupon already used"
	}

	return ComputeDiscount(coupon, amountPaise), ""
}

// CreateCoupon creates a new coupon (admin). Rupee fields are converted
// to paise here, once.
func (s *couponServiceImpl) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, *ServiceError) {
	if req.ExpiresAt.Before(time.Now()) {
		return nil, &ServiceError{StatusCode: 400, Code: CodeCouponInvalid, Message: "Expiry date must be in the future"}
	}
	if req.Type == models.CouponTypePercentage && req.Value > 100 {
		return nil, &ServiceError{StatusCode: 400, Code: CodeCouponInvalid, Message: "Percentage discount cannot exceed 100"}
	}

	coupon := &models.Coupon{
		Code:          strings.ToUpper(req.Code),
		Type:          req.Type,
		MinOrderValue: toPaise(req.MinOrderValue),
		MaxUsage:      req.MaxUsage,
		ExpiresAt:     req.ExpiresAt,
		Active:        true,
	}
	if req.Type == models.CouponTypePercentage {
		coupon.Value = int64(math.Round(req.Value))
	} else {
		coupon.Value = toPaise(req.Value)
	}
	if req.MaxDiscount != nil {
		md := toPaise(*req.MaxDiscount)
		coupon.MaxDiscount = &md
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return nil, &ServiceError{StatusCode: 409, Code: CodeConflict, Message: "Coupon code already exists"}
		}
		s.logger.Error("Failed to create coupon", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to create coupon"}
	}

	s.logger.Info("Coupon created", zap.String("code", coupon.Code), zap.String("type", string(coupon.Type)))
	return coupon, nil
}

// ValidateCoupon validates a coupon against a cart total and returns
// the discount it would yield. No usage is committed here.
func (s *couponServiceImpl) ValidateCoupon(ctx context.Context, userID string, req *models.ValidateCouponRequest) (*models.ValidateCouponResponse, *ServiceError) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Code: CodeInternal, Message: "Invalid user ID format"}
	}

	coupon, err := s.repo.FindByCode(ctx, req.Code)
	if err != nil {
		return &models.ValidateCouponResponse{
			Valid:   false,
			Code:    req.Code,
			Message: "Coupon not found or inactive",
		}, nil
	}

	amountPaise := toPaise(req.CartTotal)
	discount, reason := s.checkCoupon(ctx, coupon, userUUID, amountPaise)
	if reason != "" {
		return &models.ValidateCouponResponse{
			Valid:   false,
			Code:    coupon.Code,
			Message: reason,
		}, nil
	}

	return &models.ValidateCouponResponse{
		Valid:          true,
		Code:           coupon.Code,
		Type:           coupon.Type,
		CouponID:       coupon.ID.String(),
		DiscountAmount: discount,
		Message:        "Coupon applicable",
	}, nil
}

// CheckForOrder validates a coupon by id for a user's order amount and
// returns the discount in paise. Used by the checkout path.
func (s *couponServiceImpl) CheckForOrder(ctx context.Context, couponID, userID uuid.UUID, amountPaise int64) (int64, *ServiceError) {
	coupon, err := s.repo.FindByID(ctx, couponID)
	if err != nil {
		return 0, &ServiceError{StatusCode: 400, Code: CodeCouponInvalid, Message: "Coupon not found or inactive"}
	}

	discount, reason := s.checkCoupon(ctx, coupon, userID, amountPaise)
	if reason != "" {
		return 0, &ServiceError{StatusCode: 400, Code: CodeCouponInvalid, Message: reason}
	}
	return discount, nil
}

// GetCoupon retrieves a coupon by code.
func (s *couponServiceImpl) GetCoupon(ctx context.Context, code string) (*models.Coupon, *ServiceError) {
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, &ServiceError{StatusCode: 404, Code: CodeNotFound, Message: "Coupon not found"}
	}
	return coupon, nil
}

// DeactivateCoupon deactivates a coupon by code.
func (s *couponServiceImpl) DeactivateCoupon(ctx context.Context, code string) *ServiceError {
	if err := s.repo.Deactivate(ctx, code); err != nil {
		if err.Error() == "record not found" {
			return &ServiceError{StatusCode: 404, Code: CodeNotFound, Message: "Coupon not found"}
		}
		s.logger.Error("Failed to deactivate coupon", zap.String("code", code), zap.Error(err))
		return &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to deactivate coupon"}
	}

	s.logger.Info("Coupon deactivated", zap.String("code", code))
	return nil
}

// ListCoupons returns paginated coupons (admin).
func (s *couponServiceImpl) ListCoupons(ctx context.Context, page, limit int) ([]models.Coupon, int64, *ServiceError) {
	coupons, total, err := s.repo.FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list coupons", zap.Error(err))
		return nil, 0, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to list coupons"}
	}
	return coupons, total, nil
}

// toPaise converts a rupee amount to integer paise. This is the single
// conversion point; paise values are never re-multiplied.
func toPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}
