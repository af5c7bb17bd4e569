package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"checkout-service/models"
	"checkout-service/repository"
	"checkout-service/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- In-memory order repository ---

type memOrderRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	coupons   map[uuid.UUID]*models.Coupon
	usages    map[string]bool
	createErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders:  make(map[uuid.UUID]*models.Order),
		coupons: make(map[uuid.UUID]*models.Coupon),
		usages:  make(map[string]bool),
	}
}

func usageKey(couponID, userID uuid.UUID) string {
	return couponID.String() + "|" + userID.String()
}

func (m *memOrderRepo) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, o := range m.orders {
		if o.UserID == order.UserID && o.IdempotencyKey == order.IdempotencyKey {
			return repository.ErrDuplicateIdempotencyKey
		}
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) FindByUserAndKey(_ context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrderRepo) FindByRazorpayOrderID(_ context.Context, razorpayOrderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.RazorpayOrderID != nil && *o.RazorpayOrderID == razorpayOrderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrderRepo) FindByUserID(_ context.Context, userID uuid.UUID, _, _ int) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memOrderRepo) FindAll(_ context.Context, _, _ int) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (m *memOrderRepo) MarkPaid(_ context.Context, orderID uuid.UUID, paymentID, signature string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if o.Status == models.OrderStatusPaid {
		return nil, repository.ErrAlreadyPaid
	}
	if !o.Status.CanTransitionTo(models.OrderStatusPaid) {
		return nil, repository.ErrIllegalTransition
	}
	if o.CouponID != nil {
		uk := usageKey(*o.CouponID, o.UserID)
		if m.usages[uk] {
			return nil, repository.ErrCouponAlreadyUsed
		}
		if c, ok := m.coupons[*o.CouponID]; ok && c.MaxUsage > 0 && c.UsedCount >= c.MaxUsage {
			return nil, repository.ErrCouponExhausted
		}
		m.usages[uk] = true
		if c, ok := m.coupons[*o.CouponID]; ok {
			c.UsedCount++
		}
	}
	o.Status = models.OrderStatusPaid
	o.RazorpayPaymentID = &paymentID
	o.RazorpaySignature = &signature
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) UpdateStatus(_ context.Context, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if next == models.OrderStatusPaid || !o.Status.CanTransitionTo(next) {
		return nil, repository.ErrIllegalTransition
	}
	o.Status = next
	cp := *o
	return &cp, nil
}

// --- In-memory coupon repository ---

type memCouponRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.Coupon
	usages  map[string]bool
	findErr error
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{
		byID:   make(map[uuid.UUID]*models.Coupon),
		usages: make(map[string]bool),
	}
}

func (m *memCouponRepo) add(c *models.Coupon) *models.Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.byID[c.ID] = c
	return c
}

func (m *memCouponRepo) Create(_ context.Context, c *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Code == c.Code {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.byID[c.ID] = c
	return nil
}

func (m *memCouponRepo) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Code == code && c.Active {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memCouponRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byID[id]
	if !ok || !c.Active {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (m *memCouponRepo) HasUsage(_ context.Context, couponID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usages[usageKey(couponID, userID)], nil
}

func (m *memCouponRepo) Deactivate(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.Code == code {
			c.Active = false
			return nil
		}
	}
	return errors.New("record not found")
}

func (m *memCouponRepo) FindAll(_ context.Context, _, _ int) ([]models.Coupon, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Coupon
	for _, c := range m.byID {
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

// --- In-memory key repository ---

type memKeyRepo struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemKeyRepo() *memKeyRepo {
	return &memKeyRepo{keys: make(map[string]string)}
}

func (m *memKeyRepo) Get(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[userID], nil
}

func (m *memKeyRepo) Set(_ context.Context, userID, key string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID] = key
	return nil
}

func (m *memKeyRepo) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, userID)
	return nil
}

// --- In-memory hand-off repository ---

type memHandoffRepo struct {
	mu    sync.Mutex
	slots map[string]*models.PaymentResolution
}

func newMemHandoffRepo() *memHandoffRepo {
	return &memHandoffRepo{slots: make(map[string]*models.PaymentResolution)}
}

func (m *memHandoffRepo) Write(_ context.Context, attemptKey string, res *models.PaymentResolution, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res.WrittenAt = time.Now().UTC()
	cp := *res
	m.slots[attemptKey] = &cp
	return nil
}

func (m *memHandoffRepo) Read(_ context.Context, attemptKey string) (*models.PaymentResolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.slots[attemptKey]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (m *memHandoffRepo) Clear(_ context.Context, attemptKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, attemptKey)
	return nil
}

func (m *memHandoffRepo) has(attemptKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.slots[attemptKey]
	return ok
}

// --- In-memory cart repository ---

type memCartRepo struct {
	mu      sync.Mutex
	carts   map[string]*models.Cart
	cleared []string
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]*models.Cart)}
}

func (m *memCartRepo) Get(_ context.Context, userID string) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return c, nil
}

func (m *memCartRepo) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	m.cleared = append(m.cleared, userID)
	return nil
}

// --- Stub payment gateway ---

type stubGateway struct {
	mu          sync.Mutex
	createErr   error
	validSig    string
	nextOrderID string
	created     int
}

func newStubGateway() *stubGateway {
	return &stubGateway{validSig: "valid-signature", nextOrderID: "order_stub_1"}
}

func (g *stubGateway) CreateOrder(amountPaise int64, currency, _ string, _ map[string]interface{}) (*services.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	return &services.GatewayOrder{ID: g.nextOrderID, Amount: amountPaise, Currency: currency}, nil
}

func (g *stubGateway) VerifyPaymentSignature(_, _, signature string) bool {
	return signature == g.validSig
}

func (g *stubGateway) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature == g.validSig
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

// --- Recording event publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.PaymentEvent
}

func (p *recordingPublisher) Publish(event models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// --- Helpers ---

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestKeyManager(keys repository.KeyRepository) *services.KeyManager {
	return services.NewKeyManager(keys, 10*time.Minute, testLogger())
}

func validCheckoutRequest() *models.CheckoutRequest {
	return &models.CheckoutRequest{
		Amount: 1499.00,
		Items: []models.CheckoutItem{
			{
				ProductID:   uuid.New().String(),
				ProductName: "Wireless Mouse",
				UnitPrice:   1499.00,
				Quantity:    1,
			},
		},
		DeliveryAddress: models.AddressInput{
			FullName: "Asha Verma",
			Phone:    "9876543210",
			Address:  "14 MG Road",
			City:     "Bengaluru",
			State:    "Karnataka",
			Pincode:  "560001",
		},
	}
}
