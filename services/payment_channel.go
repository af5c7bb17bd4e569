package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"go.uber.org/zap"
)

// ErrAttemptInFlight signals a second Await for an attempt that is
// already being waited on.
var ErrAttemptInFlight = errors.New("attempt already awaited")

// PaymentChannel carries the gateway's result back to the waiting
// checkout attempt. Await resolves exactly once per attempt: success,
// cancelled, or timeout. The hand-off slot is cleared on every
// resolution path so a stale result can never leak into a later
// attempt.
type PaymentChannel interface {
	Await(ctx context.Context, attemptKey string) (*models.PaymentResolution, error)
	Resolve(ctx context.Context, attemptKey string, res *models.PaymentResolution) error
}

// NewPaymentChannel selects the channel strategy by mode: "message"
// for the in-process listener, "poll" for hand-off slot polling.
func NewPaymentChannel(mode string, handoff repository.HandoffRepository, timeout time.Duration, logger *zap.Logger) (PaymentChannel, error) {
	switch mode {
	case "message":
		return newMessageChannel(handoff, timeout, logger), nil
	case "poll":
		return newPollingChannel(handoff, timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown payment channel mode %q", mode)
	}
}

// --- message-passing channel ---

// messageChannel delivers resolutions through an in-process registry.
// The first message wins; the listener is deregistered after it, so a
// re-fired callback is a no-op. A resolution arriving before the
// listener registers (crossed tabs) parks in the hand-off slot, which
// Await checks first.
type messageChannel struct {
	mu      sync.Mutex
	waiters map[string]chan *models.PaymentResolution
	handoff repository.HandoffRepository
	timeout time.Duration
	logger  *zap.Logger
}

func newMessageChannel(handoff repository.HandoffRepository, timeout time.Duration, logger *zap.Logger) *messageChannel {
	return &messageChannel{
		waiters: make(map[string]chan *models.PaymentResolution),
		handoff: handoff,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *messageChannel) Await(ctx context.Context, attemptKey string) (*models.PaymentResolution, error) {
	// Register before checking the parked slot: a Resolve landing
	// between the two must find either the slot or the waiter, never a
	// gap where it parks a result this Await then clears unread.
	c.mu.Lock()
	if _, exists := c.waiters[attemptKey]; exists {
		c.mu.Unlock()
		return nil, ErrAttemptInFlight
	}
	ch := make(chan *models.PaymentResolution, 1)
	c.waiters[attemptKey] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, attemptKey)
		c.mu.Unlock()
		_ = c.handoff.Clear(context.WithoutCancel(ctx), attemptKey)
	}()

	// A resolution may already be parked from before we registered.
	if parked, err := c.handoff.Read(ctx, attemptKey); err == nil && parked != nil {
		return parked, nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		c.logger.Warn("Payment attempt timed out", zap.String("attempt_key", attemptKey))
		return &models.PaymentResolution{Status: models.ResolutionTimeout}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *messageChannel) Resolve(ctx context.Context, attemptKey string, res *models.PaymentResolution) error {
	c.mu.Lock()
	ch, ok := c.waiters[attemptKey]
	if ok {
		delete(c.waiters, attemptKey)
	}
	c.mu.Unlock()

	if ok {
		ch <- res // buffered; first and only send
		return nil
	}

	// No listener yet: park the result for a late Await.
	return c.handoff.Write(ctx, attemptKey, res, c.timeout)
}

// --- polling channel ---

// pollingChannel polls the shared hand-off slot at a fixed interval
// until a resolution appears or the hard timeout fires.
type pollingChannel struct {
	handoff  repository.HandoffRepository
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func newPollingChannel(handoff repository.HandoffRepository, timeout time.Duration, logger *zap.Logger) *pollingChannel {
	return &pollingChannel{
		handoff:  handoff,
		interval: time.Second,
		timeout:  timeout,
		logger:   logger,
	}
}

func (c *pollingChannel) Await(ctx context.Context, attemptKey string) (*models.PaymentResolution, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := c.handoff.Read(ctx, attemptKey)
			if err != nil {
				c.logger.Warn("Hand-off read failed", zap.String("attempt_key", attemptKey), zap.Error(err))
				continue
			}
			if res != nil {
				_ = c.handoff.Clear(ctx, attemptKey)
				return res, nil
			}
		case <-timer.C:
			c.logger.Warn("Payment attempt timed out", zap.String("attempt_key", attemptKey))
			_ = c.handoff.Clear(context.WithoutCancel(ctx), attemptKey)
			return &models.PaymentResolution{Status: models.ResolutionTimeout}, nil
		case <-ctx.Done():
			_ = c.handoff.Clear(context.WithoutCancel(ctx), attemptKey)
			return nil, ctx.Err()
		}
	}
}

func (c *pollingChannel) Resolve(ctx context.Context, attemptKey string, res *models.PaymentResolution) error {
	// TTL slightly past the attempt timeout so an unread slot expires
	// on its own.
	return c.handoff.Write(ctx, attemptKey, res, c.timeout+time.Minute)
}
