package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/models"
	"checkout-service/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCheckoutService(orders *memOrderRepo, coupons *memCouponRepo, gateway *stubGateway, keys *memKeyRepo, allowFallback bool) *services.CheckoutService {
	couponSvc := services.NewCouponService(coupons, testLogger())
	return services.NewCheckoutService(orders, newMemCartRepo(), couponSvc, gateway, newTestKeyManager(keys), allowFallback, testLogger())
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("amount is converted to paise exactly once", func(t *testing.T) {
		orders := newMemOrderRepo()
		svc := newCheckoutService(orders, newMemCouponRepo(), newStubGateway(), newMemKeyRepo(), false)

		session, svcErr := svc.CreateSession(ctx, userID.String(), validCheckoutRequest())

		require.Nil(t, svcErr)
		assert.Equal(t, int64(149900), session.Amount)
		assert.Equal(t, "INR", session.Currency)
		require.NotNil(t, session.RazorpayOrderID)

		stored, err := orders.FindByUserAndKey(ctx, userID, session.IdempotencyKey)
		require.NoError(t, err)
		assert.Equal(t, int64(149900), stored.Amount)
		assert.Equal(t, models.OrderStatusPending, stored.Status)
	})

	t.Run("same idempotency key resumes the same order", func(t *testing.T) {
		orders := newMemOrderRepo()
		gateway := newStubGateway()
		svc := newCheckoutService(orders, newMemCouponRepo(), gateway, newMemKeyRepo(), false)

		req := validCheckoutRequest()
		req.IdempotencyKey = "attempt-abc123"

		first, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.Nil(t, svcErr)

		second, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.Nil(t, svcErr)

		assert.Equal(t, first.OrderID, second.OrderID)
		assert.Equal(t, first.IdempotencyKey, second.IdempotencyKey)
		// The gateway order must not be recreated on the resumed attempt.
		assert.Equal(t, 1, gateway.created)

		_, total, err := orders.FindByUserID(ctx, userID, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("without explicit key the managed attempt key is used", func(t *testing.T) {
		keys := newMemKeyRepo()
		svc := newCheckoutService(newMemOrderRepo(), newMemCouponRepo(), newStubGateway(), keys, false)

		session, svcErr := svc.CreateSession(ctx, userID.String(), validCheckoutRequest())
		require.Nil(t, svcErr)
		assert.Equal(t, keys.keys[userID.String()], session.IdempotencyKey)

		// A retry without a key lands on the same order.
		again, svcErr := svc.CreateSession(ctx, userID.String(), validCheckoutRequest())
		require.Nil(t, svcErr)
		assert.Equal(t, session.OrderID, again.OrderID)
	})

	t.Run("invalid address fields yield field-specific errors", func(t *testing.T) {
		svc := newCheckoutService(newMemOrderRepo(), newMemCouponRepo(), newStubGateway(), newMemKeyRepo(), false)

		cases := []struct {
			name    string
			mutate  func(*models.CheckoutRequest)
			message string
		}{
			{"short phone", func(r *models.CheckoutRequest) { r.DeliveryAddress.Phone = "12345" }, "Phone must be exactly 10 digits"},
			{"alpha phone", func(r *models.CheckoutRequest) { r.DeliveryAddress.Phone = "98765abcde" }, "Phone must be exactly 10 digits"},
			{"bad pincode", func(r *models.CheckoutRequest) { r.DeliveryAddress.Pincode = "5600" }, "Pincode must be exactly 6 digits"},
			{"blank name", func(r *models.CheckoutRequest) { r.DeliveryAddress.FullName = "  " }, "Full name is required"},
			{"blank city", func(r *models.CheckoutRequest) { r.DeliveryAddress.City = "" }, "City is required"},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := validCheckoutRequest()
				tc.mutate(req)

				_, svcErr := svc.CreateSession(ctx, userID.String(), req)
				require.NotNil(t, svcErr)
				assert.Equal(t, 400, svcErr.StatusCode)
				assert.Equal(t, services.CodeInvalidAddress, svcErr.Code)
				assert.Equal(t, tc.message, svcErr.Message)
			})
		}
	})

	t.Run("no items and no cart is rejected", func(t *testing.T) {
		svc := newCheckoutService(newMemOrderRepo(), newMemCouponRepo(), newStubGateway(), newMemKeyRepo(), false)

		req := validCheckoutRequest()
		req.Items = nil

		_, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.NotNil(t, svcErr)
		assert.Equal(t, services.CodeEmptyCart, svcErr.Code)
	})

	t.Run("missing items fall back to the stored cart", func(t *testing.T) {
		orders := newMemOrderRepo()
		carts := newMemCartRepo()
		carts.carts[userID.String()] = &models.Cart{
			UserID: userID.String(),
			Items: []models.CheckoutItem{
				{ProductID: uuid.New().String(), ProductName: "Keyboard", UnitPrice: 1499.00, Quantity: 1},
			},
		}
		couponSvc := services.NewCouponService(newMemCouponRepo(), testLogger())
		svc := services.NewCheckoutService(orders, carts, couponSvc, newStubGateway(), newTestKeyManager(newMemKeyRepo()), false, testLogger())

		req := validCheckoutRequest()
		req.Items = nil

		session, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.Nil(t, svcErr)

		stored, err := orders.FindByUserAndKey(ctx, userID, session.IdempotencyKey)
		require.NoError(t, err)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, "Keyboard", stored.Items[0].ProductName)
	})

	t.Run("gateway down without fallback returns 502 and no order", func(t *testing.T) {
		orders := newMemOrderRepo()
		gateway := newStubGateway()
		gateway.createErr = errors.New("connection refused")
		svc := newCheckoutService(orders, newMemCouponRepo(), gateway, newMemKeyRepo(), false)

		_, svcErr := svc.CreateSession(ctx, userID.String(), validCheckoutRequest())

		require.NotNil(t, svcErr)
		assert.Equal(t, 502, svcErr.StatusCode)
		assert.Equal(t, services.CodeGatewayUnreachable, svcErr.Code)

		_, total, err := orders.FindAll(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("gateway down with fallback creates a local order", func(t *testing.T) {
		orders := newMemOrderRepo()
		gateway := newStubGateway()
		gateway.createErr = errors.New("connection refused")
		svc := newCheckoutService(orders, newMemCouponRepo(), gateway, newMemKeyRepo(), true)

		session, svcErr := svc.CreateSession(ctx, userID.String(), validCheckoutRequest())

		require.Nil(t, svcErr)
		// No gateway session marks the order for reconciliation.
		assert.Nil(t, session.RazorpayOrderID)

		stored, err := orders.FindByUserAndKey(ctx, userID, session.IdempotencyKey)
		require.NoError(t, err)
		assert.Nil(t, stored.RazorpayOrderID)
		assert.Equal(t, models.OrderStatusPending, stored.Status)
	})

	t.Run("coupon discount reduces the payable amount", func(t *testing.T) {
		coupons := newMemCouponRepo()
		coupon := coupons.add(&models.Coupon{
			Code:      "FLAT200",
			Type:      models.CouponTypeFixed,
			Value:     20000,
			ExpiresAt: time.Now().Add(time.Hour),
			Active:    true,
		})
		svc := newCheckoutService(newMemOrderRepo(), coupons, newStubGateway(), newMemKeyRepo(), false)

		req := validCheckoutRequest()
		req.CouponID = coupon.ID.String()

		session, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.Nil(t, svcErr)
		assert.Equal(t, int64(149900-20000), session.Amount)
	})

	t.Run("invalid coupon rejects the session", func(t *testing.T) {
		svc := newCheckoutService(newMemOrderRepo(), newMemCouponRepo(), newStubGateway(), newMemKeyRepo(), false)

		req := validCheckoutRequest()
		req.CouponID = uuid.New().String()

		_, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.NotNil(t, svcErr)
		assert.Equal(t, services.CodeCouponInvalid, svcErr.Code)
	})

	t.Run("losing a create race resumes the winner's order", func(t *testing.T) {
		orders := newMemOrderRepo()
		racing := &racingOrderRepo{memOrderRepo: orders, missFirstLookup: true}
		couponSvc := services.NewCouponService(newMemCouponRepo(), testLogger())
		svc := services.NewCheckoutService(racing, newMemCartRepo(), couponSvc, newStubGateway(), newTestKeyManager(newMemKeyRepo()), false, testLogger())

		// The winner's order is already persisted under this key.
		winner := &models.Order{
			UserID:         userID,
			IdempotencyKey: "attempt-race",
			Amount:         149900,
			Status:         models.OrderStatusPending,
		}
		require.NoError(t, orders.Create(ctx, winner))

		req := validCheckoutRequest()
		req.IdempotencyKey = "attempt-race"

		// The loser's replay lookup misses, its insert collides, and the
		// re-read returns the winner's order.
		session, svcErr := svc.CreateSession(ctx, userID.String(), req)
		require.Nil(t, svcErr)
		assert.Equal(t, winner.ID.String(), session.OrderID)

		_, total, err := orders.FindAll(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})
}

// racingOrderRepo makes the first replay lookup miss, simulating a
// concurrent submission that inserted between the lookup and the
// create.
type racingOrderRepo struct {
	*memOrderRepo
	missFirstLookup bool
}

func (r *racingOrderRepo) FindByUserAndKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	if r.missFirstLookup {
		r.missFirstLookup = false
		return nil, gorm.ErrRecordNotFound
	}
	return r.memOrderRepo.FindByUserAndKey(ctx, userID, key)
}

func TestCancelAndCurrentKey(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("key is stable until cancel rotates it", func(t *testing.T) {
		keys := newMemKeyRepo()
		svc := newCheckoutService(newMemOrderRepo(), newMemCouponRepo(), newStubGateway(), keys, false)

		k1, svcErr := svc.CurrentKey(ctx, userID.String())
		require.Nil(t, svcErr)
		k2, svcErr := svc.CurrentKey(ctx, userID.String())
		require.Nil(t, svcErr)
		assert.Equal(t, k1, k2)

		require.Nil(t, svc.Cancel(ctx, userID.String()))

		k3, svcErr := svc.CurrentKey(ctx, userID.String())
		require.Nil(t, svcErr)
		assert.NotEqual(t, k1, k3)
	})
}
