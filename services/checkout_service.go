package services

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const currencyINR = "INR"

// createRetries bounds the fresh-key retries after an idempotency-key
// collision that does not belong to the caller's own attempt.
const createRetries = 3

var (
	phoneRe   = regexp.MustCompile(`^\d{10}$`)
	pincodeRe = regexp.MustCompile(`^\d{6}$`)
)

// CheckoutService is the payment session gateway: it turns a cart,
// address and idempotency token into a gateway-ready payment session,
// creating at most one order per attempt.
type CheckoutService struct {
	orders        repository.OrderRepository
	carts         repository.CartRepository
	coupons       CouponService
	gateway       PaymentGateway
	keys          *KeyManager
	allowFallback bool
	logger        *zap.Logger
}

// NewCheckoutService creates a CheckoutService. allowFallback enables
// the degraded local-order path; config refuses it in production.
func NewCheckoutService(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	coupons CouponService,
	gateway PaymentGateway,
	keys *KeyManager,
	allowFallback bool,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		orders:        orders,
		carts:         carts,
		coupons:       coupons,
		gateway:       gateway,
		keys:          keys,
		allowFallback: allowFallback,
		logger:        logger,
	}
}

// CreateSession validates the request and creates or idempotently
// resumes a checkout attempt. Presenting the same idempotency key
// always yields the same underlying order.
func (s *CheckoutService) CreateSession(ctx context.Context, userID string, req *models.CheckoutRequest) (*models.CheckoutSession, *ServiceError) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Code: CodeInternal, Message: "Invalid user ID format"}
	}

	if svcErr := validateAddress(&req.DeliveryAddress); svcErr != nil {
		return nil, svcErr
	}

	// Requests without explicit items fall back to the Redis cart the
	// cart collaborator maintains.
	items := req.Items
	if len(items) == 0 {
		cart, err := s.carts.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrCartNotFound) {
				return nil, &ServiceError{StatusCode: 400, Code: CodeEmptyCart, Message: "Cart is empty"}
			}
			s.logger.Error("Failed to load cart", zap.String("user_id", userID), zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to start checkout"}
		}
		items = cart.Items
	}
	if len(items) == 0 {
		return nil, &ServiceError{StatusCode: 400, Code: CodeEmptyCart, Message: "Cart is empty"}
	}
	if req.Amount <= 0 {
		return nil, &ServiceError{StatusCode: 400, Code: CodeInvalidAmount, Message: "Amount must be positive"}
	}

	// Rupees cross into paise exactly here, never again.
	amountPaise := int64(math.Round(req.Amount * 100))

	key := req.IdempotencyKey
	if key == "" {
		key, err = s.keys.Current(ctx, userID)
		if err != nil {
			s.logger.Error("Failed to load attempt key", zap.Error(err))
			return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to start checkout"}
		}
	}

	// Replay-safe lookup: a retry with the same key returns the order
	// created by the first submission, unchanged.
	if existing, err := s.orders.FindByUserAndKey(ctx, userUUID, key); err == nil {
		return s.sessionFor(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("Idempotent lookup failed", zap.Error(err))
		return nil, &ServiceError{StatusCode: 500, Code: CodePersistenceFailed, Message: "Failed to start checkout"}
	}

	var couponID *uuid.UUID
	var discount int64
	if req.CouponID != "" {
		cid, err := uuid.Parse(req.CouponID)
		if err != nil {
			return nil, &ServiceError{StatusCode: 400, Code: CodeCouponInvalid, Message: "Invalid coupon ID"}
		}
		d, svcErr := s.coupons.CheckForOrder(ctx, cid, userUUID, amountPaise)
		if svcErr != nil {
			return nil, svcErr
		}
		discount = d
		couponID = &cid
	}

	payable := amountPaise - discount

	order := &models.Order{
		UserID:         userUUID,
		IdempotencyKey: key,
		Amount:         payable,
		Status:         models.OrderStatusPending,
		DeliveryAddress: models.DeliveryAddress{
			FullName: req.DeliveryAddress.FullName,
			Phone:    req.DeliveryAddress.Phone,
			Address:  req.DeliveryAddress.Address,
			City:     req.DeliveryAddress.City,
			State:    req.DeliveryAddress.State,
			Pincode:  req.DeliveryAddress.Pincode,
		},
		CouponID:       couponID,
		DiscountAmount: discount,
		Items:          buildItems(items),
	}

	gatewayOrder, gwErr := s.gateway.CreateOrder(payable, currencyINR, key, map[string]interface{}{
		"user_id": userID,
	})
	if gwErr != nil {
		if !s.allowFallback {
			s.logger.Error("Gateway order creation failed", zap.Error(gwErr))
			return nil, &ServiceError{StatusCode: 502, Code: CodeGatewayUnreachable, Message: "Payment gateway unavailable, please retry"}
		}
		// Degraded path: persist the order with no gateway session so
		// reconciliation can tell it apart downstream.
		s.logger.Warn("Gateway unreachable, creating local fallback order", zap.Error(gwErr))
		gatewayOrder = nil
	}
	if gatewayOrder != nil {
		order.RazorpayOrderID = &gatewayOrder.ID
	}

	if svcErr := s.persistWithRetry(ctx, userUUID, order); svcErr != nil {
		return nil, svcErr
	}

	s.logger.Info("Checkout session created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID),
		zap.Int64("amount", order.Amount),
		zap.Bool("gateway_attached", order.RazorpayOrderID != nil),
	)
	return s.sessionFor(order), nil
}

// persistWithRetry inserts the order, resolving idempotency-key
// collisions: a collision on the caller's own (user, key) returns the
// existing order; anything else retries a bounded number of times with
// a freshly generated key.
func (s *CheckoutService) persistWithRetry(ctx context.Context, userUUID uuid.UUID, order *models.Order) *ServiceError {
	for attempt := 0; ; attempt++ {
		err := s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			s.logger.Error("Order persistence failed", zap.Error(err))
			return &ServiceError{StatusCode: 500, Code: CodePersistenceFailed, Message: "Failed to create order"}
		}

		if existing, lookupErr := s.orders.FindByUserAndKey(ctx, userUUID, order.IdempotencyKey); lookupErr == nil {
			// A concurrent submission of the same attempt won the race.
			*order = *existing
			return nil
		}

		if attempt >= createRetries {
			return &ServiceError{StatusCode: 409, Code: CodeConflict, Message: "Could not allocate a checkout attempt, please retry"}
		}
		order.IdempotencyKey = GenerateToken()
	}
}

// Cancel resolves an abandoned attempt: the order (if any) stays
// pending and the cart is retained, but the attempt key is rotated so
// the next checkout starts fresh.
func (s *CheckoutService) Cancel(ctx context.Context, userID string) *ServiceError {
	if _, err := s.keys.Rotate(ctx, userID); err != nil {
		s.logger.Error("Failed to rotate attempt key on cancel", zap.Error(err))
		return &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to cancel checkout"}
	}
	return nil
}

// CurrentKey exposes the active attempt key for the user.
func (s *CheckoutService) CurrentKey(ctx context.Context, userID string) (string, *ServiceError) {
	key, err := s.keys.Current(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load attempt key", zap.Error(err))
		return "", &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to load checkout key"}
	}
	return key, nil
}

func (s *CheckoutService) sessionFor(order *models.Order) *models.CheckoutSession {
	return &models.CheckoutSession{
		RazorpayOrderID: order.RazorpayOrderID,
		Amount:          order.Amount,
		Currency:        currencyINR,
		KeyID:           s.gateway.KeyID(),
		OrderID:         order.ID.String(),
		IdempotencyKey:  order.IdempotencyKey,
	}
}

func buildItems(items []models.CheckoutItem) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			continue // binding already rejected non-uuid ids
		}
		out = append(out, models.OrderItem{
			ProductID:    pid,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			UnitPrice:    int64(math.Round(it.UnitPrice * 100)),
			Quantity:     it.Quantity,
		})
	}
	return out
}

// validateAddress enforces the fixed delivery address formats with
// field-specific messages.
func validateAddress(addr *models.AddressInput) *ServiceError {
	fieldErr := func(msg string) *ServiceError {
		return &ServiceError{StatusCode: 400, Code: CodeInvalidAddress, Message: msg}
	}

	if strings.TrimSpace(addr.FullName) == "" {
		return fieldErr("Full name is required")
	}
	if !phoneRe.MatchString(addr.Phone) {
		return fieldErr("Phone must be exactly 10 digits")
	}
	if strings.TrimSpace(addr.Address) == "" {
		return fieldErr("Address is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		return fieldErr("City is required")
	}
	if strings.TrimSpace(addr.State) == "" {
		return fieldErr("State is required")
	}
	if !pincodeRe.MatchString(addr.Pincode) {
		return fieldErr("Pincode must be exactly 6 digits")
	}
	return nil
}
