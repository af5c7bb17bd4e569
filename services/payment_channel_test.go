package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout-service/models"
	"checkout-service/repository"
	"checkout-service/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChannel(t *testing.T, mode string, handoff repository.HandoffRepository, timeout time.Duration) services.PaymentChannel {
	t.Helper()
	ch, err := services.NewPaymentChannel(mode, handoff, timeout, testLogger())
	require.NoError(t, err)
	return ch
}

func TestNewPaymentChannel(t *testing.T) {
	_, err := services.NewPaymentChannel("carrier-pigeon", newMemHandoffRepo(), time.Minute, testLogger())
	assert.Error(t, err)
}

func TestMessageChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("resolution reaches the waiting attempt", func(t *testing.T) {
		handoff := newMemHandoffRepo()
		ch := newChannel(t, "message", handoff, time.Minute)

		done := make(chan *models.PaymentResolution, 1)
		go func() {
			res, err := ch.Await(ctx, "attempt-1")
			require.NoError(t, err)
			done <- res
		}()

		// Give Await a moment to register its listener.
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, ch.Resolve(ctx, "attempt-1", &models.PaymentResolution{
			Status:  models.ResolutionSuccess,
			OrderID: "order-1",
		}))

		res := <-done
		assert.Equal(t, models.ResolutionSuccess, res.Status)
		assert.Equal(t, "order-1", res.OrderID)
		// The hand-off slot is clean after resolution.
		assert.False(t, handoff.has("attempt-1"))
	})

	t.Run("first resolution wins, re-fired callback is a no-op", func(t *testing.T) {
		ch := newChannel(t, "message", newMemHandoffRepo(), time.Minute)

		done := make(chan *models.PaymentResolution, 1)
		go func() {
			res, err := ch.Await(ctx, "attempt-2")
			require.NoError(t, err)
			done <- res
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, ch.Resolve(ctx, "attempt-2", &models.PaymentResolution{Status: models.ResolutionSuccess, OrderID: "first"}))

		res := <-done
		assert.Equal(t, "first", res.OrderID)

		// The listener is gone; the duplicate parks and the next attempt
		// under a fresh key never sees it.
		_ = ch.Resolve(ctx, "attempt-2", &models.PaymentResolution{Status: models.ResolutionSuccess, OrderID: "second"})
	})

	t.Run("resolution arriving before await is parked and delivered", func(t *testing.T) {
		handoff := newMemHandoffRepo()
		ch := newChannel(t, "message", handoff, time.Minute)

		// Crossed tabs: the callback lands before anyone awaits.
		require.NoError(t, ch.Resolve(ctx, "attempt-3", &models.PaymentResolution{
			Status:  models.ResolutionSuccess,
			OrderID: "order-3",
		}))
		assert.True(t, handoff.has("attempt-3"))

		res, err := ch.Await(ctx, "attempt-3")
		require.NoError(t, err)
		assert.Equal(t, "order-3", res.OrderID)
		assert.False(t, handoff.has("attempt-3"))
	})

	t.Run("resolution landing between slot check and wait is delivered", func(t *testing.T) {
		handoff := newMemHandoffRepo()
		hooked := &hookedHandoff{memHandoffRepo: handoff}
		ch := newChannel(t, "message", hooked, 200*time.Millisecond)

		// The callback fires exactly while Await is inspecting the
		// parked slot. The waiter must already be registered, so the
		// success reaches it instead of parking into a slot this Await
		// clears unread on its way out.
		hooked.onRead = func() {
			require.NoError(t, ch.Resolve(ctx, "attempt-window", &models.PaymentResolution{
				Status:  models.ResolutionSuccess,
				OrderID: "order-window",
			}))
		}

		res, err := ch.Await(ctx, "attempt-window")
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionSuccess, res.Status)
		assert.Equal(t, "order-window", res.OrderID)
		assert.False(t, handoff.has("attempt-window"))
	})

	t.Run("second concurrent await is rejected", func(t *testing.T) {
		ch := newChannel(t, "message", newMemHandoffRepo(), time.Minute)

		started := make(chan struct{})
		release := make(chan struct{})
		go func() {
			close(started)
			_, _ = ch.Await(ctx, "attempt-4")
			close(release)
		}()

		<-started
		time.Sleep(20 * time.Millisecond)
		_, err := ch.Await(ctx, "attempt-4")
		assert.ErrorIs(t, err, services.ErrAttemptInFlight)

		require.NoError(t, ch.Resolve(ctx, "attempt-4", &models.PaymentResolution{Status: models.ResolutionCancelled}))
		<-release
	})

	t.Run("hard timeout resolves as timeout", func(t *testing.T) {
		ch := newChannel(t, "message", newMemHandoffRepo(), 30*time.Millisecond)

		res, err := ch.Await(ctx, "attempt-5")
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionTimeout, res.Status)
	})

	t.Run("cancelled resolution is delivered like any other", func(t *testing.T) {
		ch := newChannel(t, "message", newMemHandoffRepo(), time.Minute)

		done := make(chan *models.PaymentResolution, 1)
		go func() {
			res, err := ch.Await(ctx, "attempt-6")
			require.NoError(t, err)
			done <- res
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(t, ch.Resolve(ctx, "attempt-6", &models.PaymentResolution{Status: models.ResolutionCancelled}))
		assert.Equal(t, models.ResolutionCancelled, (<-done).Status)
	})
}

// hookedHandoff runs a hook right after the first slot read returns,
// pinning down a Resolve that lands while Await is inspecting the
// parked slot.
type hookedHandoff struct {
	*memHandoffRepo
	mu     sync.Mutex
	onRead func()
	fired  bool
}

func (h *hookedHandoff) Read(ctx context.Context, attemptKey string) (*models.PaymentResolution, error) {
	res, err := h.memHandoffRepo.Read(ctx, attemptKey)

	h.mu.Lock()
	hook := h.onRead
	if h.fired {
		hook = nil
	} else {
		h.fired = true
	}
	h.mu.Unlock()

	if hook != nil {
		hook()
	}
	return res, err
}

func TestPollingChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("written slot is picked up and cleared", func(t *testing.T) {
		handoff := newMemHandoffRepo()
		ch := newChannel(t, "poll", handoff, time.Minute)

		done := make(chan *models.PaymentResolution, 1)
		go func() {
			res, err := ch.Await(ctx, "attempt-7")
			require.NoError(t, err)
			done <- res
		}()

		require.NoError(t, ch.Resolve(ctx, "attempt-7", &models.PaymentResolution{
			Status:  models.ResolutionSuccess,
			OrderID: "order-7",
		}))

		select {
		case res := <-done:
			assert.Equal(t, "order-7", res.OrderID)
		case <-time.After(3 * time.Second):
			t.Fatal("polling attempt never resolved")
		}
		assert.False(t, handoff.has("attempt-7"))
	})

	t.Run("timeout clears the slot and resolves as timeout", func(t *testing.T) {
		handoff := newMemHandoffRepo()
		ch := newChannel(t, "poll", handoff, 50*time.Millisecond)

		res, err := ch.Await(ctx, "attempt-8")
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionTimeout, res.Status)
		assert.False(t, handoff.has("attempt-8"))
	})

	t.Run("stale slot from a previous attempt cannot leak", func(t *testing.T) {
		handoff := newMemHandoffRepo()
		ch := newChannel(t, "poll", handoff, time.Minute)

		// A crashed attempt left its resolution behind under its own key.
		require.NoError(t, ch.Resolve(ctx, "attempt-old", &models.PaymentResolution{
			Status:  models.ResolutionSuccess,
			OrderID: "order-old",
		}))

		// The next attempt runs under a rotated key and sees nothing.
		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err := ch.Await(cctx, "attempt-new")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
