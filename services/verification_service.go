package services

import (
	"context"
	"errors"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentEventPublisher publishes terminal payment outcomes downstream.
type PaymentEventPublisher interface {
	Publish(event models.PaymentEvent) error
}

// VerificationService is the single decision point that moves an order
// to paid. The signature check runs server-side with the server-held
// secret; a client-asserted success flag is never trusted.
type VerificationService struct {
	orders  repository.OrderRepository
	carts   repository.CartRepository
	gateway PaymentGateway
	keys    *KeyManager
	channel PaymentChannel
	events  PaymentEventPublisher
	logger  *zap.Logger
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	gateway PaymentGateway,
	keys *KeyManager,
	channel PaymentChannel,
	events PaymentEventPublisher,
	logger *zap.Logger,
) *VerificationService {
	return &VerificationService{
		orders:  orders,
		carts:   carts,
		gateway: gateway,
		keys:    keys,
		channel: channel,
		events:  events,
		logger:  logger,
	}
}

// VerifyPayment handles the gateway callback for one attempt: verify
// the signature, apply the paid transition exactly once, then run the
// post-confirmation side effects (key rotation, cart clear, event).
// Duplicate callbacks for an already-confirmed payment are no-ops.
func (s *VerificationService) VerifyPayment(ctx context.Context, userID string, req *models.VerifyPaymentRequest) (*models.Order, *ServiceError) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, &ServiceError{StatusCode: 400, Code: CodeInternal, Message: "Invalid order ID"}
	}

	if !s.gateway.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		s.logger.Warn("Payment signature verification failed",
			zap.String("order_id", req.OrderID),
			zap.String("razorpay_order_id", req.RazorpayOrderID),
		)
		return nil, &ServiceError{StatusCode: 400, Code: CodeSignatureMismatch, Message: "Payment could not be confirmed, please contact support"}
	}

	order, first, svcErr := s.confirm(ctx, orderID, req.RazorpayPaymentID, req.RazorpaySignature)
	if svcErr != nil {
		return nil, svcErr
	}

	// Side effects belong to the confirming callback only. A duplicate
	// must not re-publish the event or rotate the key a later attempt
	// is already using.
	if first {
		s.finalize(ctx, userID, order)
	}
	return order, nil
}

// HandleCapturedWebhook funnels a verified payment.captured webhook
// through the same confirmation path. The webhook body signature was
// already checked by the controller; this path is idempotent against
// the callback path racing it.
func (s *VerificationService) HandleCapturedWebhook(ctx context.Context, razorpayOrderID, razorpayPaymentID, signature string) error {
	order, err := s.orders.FindByRazorpayOrderID(ctx, razorpayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("Webhook for unknown gateway order", zap.String("razorpay_order_id", razorpayOrderID))
			return nil
		}
		return err
	}

	// The stored signature is the webhook body HMAC the controller
	// verified, so a webhook-first paid order still records what was
	// checked.
	confirmed, first, svcErr := s.confirm(ctx, order.ID, razorpayPaymentID, signature)
	if svcErr != nil {
		s.logger.Warn("Webhook confirmation rejected",
			zap.String("order_id", order.ID.String()),
			zap.String("code", svcErr.Code),
			zap.String("reason", svcErr.Message),
		)
		return nil
	}

	if first {
		s.finalize(ctx, confirmed.UserID.String(), confirmed)
	}
	return nil
}

// confirm applies the paid transition and reports whether this call
// performed it. First confirmation wins; a duplicate with the same
// payment id reads back the paid order as a no-op, and any coupon
// conflict rolls the whole transition back.
func (s *VerificationService) confirm(ctx context.Context, orderID uuid.UUID, paymentID, signature string) (*models.Order, bool, *ServiceError) {
	order, err := s.orders.MarkPaid(ctx, orderID, paymentID, signature)
	if err == nil {
		return order, true, nil
	}

	switch {
	case errors.Is(err, repository.ErrAlreadyPaid):
		existing, loadErr := s.orders.FindByID(ctx, orderID)
		if loadErr != nil {
			return nil, false, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to load order"}
		}
		if existing.RazorpayPaymentID != nil && *existing.RazorpayPaymentID == paymentID {
			// Duplicate callback for the same payment: no-op.
			return existing, false, nil
		}
		return nil, false, &ServiceError{StatusCode: 409, Code: CodeConflict, Message: "Order already paid by a different payment"}
	case errors.Is(err, repository.ErrCouponAlreadyUsed), errors.Is(err, repository.ErrCouponExhausted):
		// The cap or per-user uniqueness was hit between validation and
		// commit. The whole transition is rejected; the client retries
		// checkout with the corrected amount.
		return nil, false, &ServiceError{StatusCode: 409, Code: CodeCouponConflict, Message: "Coupon no longer applicable, please retry checkout"}
	case errors.Is(err, repository.ErrIllegalTransition):
		return nil, false, &ServiceError{StatusCode: 409, Code: CodeConflict, Message: "Order is not awaiting payment"}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, &ServiceError{StatusCode: 404, Code: CodeNotFound, Message: "Order not found"}
	default:
		s.logger.Error("Paid transition failed", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, false, &ServiceError{StatusCode: 500, Code: CodePersistenceFailed, Message: "Failed to confirm payment"}
	}
}

// finalize runs the side effects owed after a confirmed payment: the
// attempt key rotates, the cart clears, the waiting attempt is
// resolved, and the payment event goes out. All are best-effort and
// logged; the paid transition is already durable.
func (s *VerificationService) finalize(ctx context.Context, userID string, order *models.Order) {
	if _, err := s.keys.Rotate(ctx, userID); err != nil {
		s.logger.Error("Failed to rotate attempt key", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.Error("Failed to clear cart", zap.String("user_id", userID), zap.Error(err))
	}

	res := &models.PaymentResolution{
		Status:          models.ResolutionSuccess,
		OrderID:         order.ID.String(),
		RazorpayOrderID: deref(order.RazorpayOrderID),
	}
	if order.RazorpayPaymentID != nil {
		res.RazorpayPaymentID = *order.RazorpayPaymentID
	}
	if err := s.channel.Resolve(ctx, order.IdempotencyKey, res); err != nil {
		s.logger.Warn("Failed to resolve payment channel", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	event := models.PaymentEvent{
		Type:      "payment_succeeded",
		OrderID:   order.ID.String(),
		UserID:    userID,
		PaymentID: deref(order.RazorpayPaymentID),
		Amount:    order.Amount,
		Currency:  currencyINR,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(event); err != nil {
		s.logger.Error("Failed to publish payment event", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	s.logger.Info("Payment confirmed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID),
		zap.Int64("amount", order.Amount),
	)
}

// ReportCancelled resolves the channel for a user-initiated cancel and
// rotates the attempt key. The order stays pending and the cart is
// kept.
func (s *VerificationService) ReportCancelled(ctx context.Context, userID, attemptKey string) *ServiceError {
	if err := s.channel.Resolve(ctx, attemptKey, &models.PaymentResolution{Status: models.ResolutionCancelled}); err != nil {
		s.logger.Warn("Failed to resolve cancelled attempt", zap.String("attempt_key", attemptKey), zap.Error(err))
	}
	if _, err := s.keys.Rotate(ctx, userID); err != nil {
		s.logger.Error("Failed to rotate attempt key on cancel", zap.Error(err))
		return &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to cancel payment"}
	}
	return nil
}

// AwaitResult blocks until the attempt resolves (success, cancelled,
// or timeout). The attempt key is rotated after a timeout so the next
// checkout starts fresh.
func (s *VerificationService) AwaitResult(ctx context.Context, userID, attemptKey string) (*models.PaymentResolution, *ServiceError) {
	res, err := s.channel.Await(ctx, attemptKey)
	if err != nil {
		if errors.Is(err, ErrAttemptInFlight) {
			return nil, &ServiceError{StatusCode: 409, Code: CodeConflict, Message: "This attempt is already being awaited"}
		}
		return nil, &ServiceError{StatusCode: 500, Code: CodeInternal, Message: "Failed to await payment result"}
	}

	if res.Status == models.ResolutionTimeout {
		if _, err := s.keys.Rotate(ctx, userID); err != nil {
			s.logger.Error("Failed to rotate attempt key after timeout", zap.Error(err))
		}
	}
	return res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
