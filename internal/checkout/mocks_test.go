package checkout

import (
	"context"
	"time"

	"github.com/infstore/storefront/internal/abandoned"
	"github.com/infstore/storefront/internal/discount"
	"github.com/infstore/storefront/internal/orders"
	"github.com/infstore/storefront/internal/payment"
)

// MockOrderStore implements OrderStore for testing
type MockOrderStore struct {
	Created      []orders.Order
	CreateErr    error
	ByNumber     map[string]orders.Order
	ByID         map[string]orders.Order
	UpdatedTo    []orders.Status
	UpdateErr    error
	TrackedTo    *orders.Tracking
	AfterTrack   orders.Order
	PaymentSetTo string
}

func (m *MockOrderStore) Create(_ context.Context, o orders.Order) (orders.Order, error) {
	if m.CreateErr != nil {
		return orders.Order{}, m.CreateErr
	}
	o.ID = "ord-1"
	o.CreatedAt = time.Now()
	m.Created = append(m.Created, o)
	return o, nil
}

func (m *MockOrderStore) GetByID(_ context.Context, id string) (orders.Order, error) {
	o, ok := m.ByID[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (m *MockOrderStore) GetByNumber(_ context.Context, n string) (orders.Order, error) {
	o, ok := m.ByNumber[n]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (m *MockOrderStore) UpdateStatus(_ context.Context, id string, next orders.Status) (orders.Order, error) {
	if m.UpdateErr != nil {
		return orders.Order{}, m.UpdateErr
	}
	m.UpdatedTo = append(m.UpdatedTo, next)
	o := m.ByID[id]
	o.Status = next
	return o, nil
}

func (m *MockOrderStore) AddTracking(_ context.Context, _ string, tr orders.Tracking) (orders.Order, error) {
	m.TrackedTo = &tr
	return m.AfterTrack, nil
}

func (m *MockOrderStore) List(_ context.Context, _ int) ([]orders.Order, error) {
	out := make([]orders.Order, len(m.Created))
	copy(out, m.Created)
	return out, nil
}

func (m *MockOrderStore) SetPayment(_ context.Context, _, _, paymentStatus string) error {
	m.PaymentSetTo = paymentStatus
	return nil
}

// MockDiscountStore implements DiscountStore for testing
type MockDiscountStore struct {
	Codes    map[string]discount.Code
	Consumed []string
	MintErr  error
}

func (m *MockDiscountStore) GetByCode(_ context.Context, code string) (discount.Code, error) {
	c, ok := m.Codes[discount.Normalize(code)]
	if !ok {
		return discount.Code{}, discount.ErrNotFound
	}
	return c, nil
}

func (m *MockDiscountStore) Consume(_ context.Context, code string) error {
	m.Consumed = append(m.Consumed, discount.Normalize(code))
	return nil
}

func (m *MockDiscountStore) MintWelcomeCode(_ context.Context, email string, _ time.Time) (discount.Code, error) {
	if m.MintErr != nil {
		return discount.Code{}, m.MintErr
	}
	return discount.Code{Code: "WELCOME-TEST1234", SubscriberEmail: email}, nil
}

// MockTracker implements CartTracker for testing
type MockTracker struct {
	Recovered   []string
	RecoverErr  error
	Due         []abandoned.Cart
	Reminded    []string
	Carts       map[string]abandoned.Cart
	Unrecovered int
}

func (m *MockTracker) MarkRecovered(_ context.Context, sessionID string) error {
	if m.RecoverErr != nil {
		return m.RecoverErr
	}
	m.Recovered = append(m.Recovered, sessionID)
	return nil
}

func (m *MockTracker) DueForReminder(_ context.Context, _ time.Time) ([]abandoned.Cart, error) {
	return m.Due, nil
}

func (m *MockTracker) MarkReminderSent(_ context.Context, sessionID string) error {
	m.Reminded = append(m.Reminded, sessionID)
	return nil
}

func (m *MockTracker) GetBySession(_ context.Context, sessionID string) (abandoned.Cart, error) {
	c, ok := m.Carts[sessionID]
	if !ok {
		return abandoned.Cart{}, abandoned.ErrNotFound
	}
	return c, nil
}

func (m *MockTracker) CountUnrecovered(_ context.Context) (int, error) {
	return m.Unrecovered, nil
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	Events []string
	To     []string
	Err    error
}

func (m *MockNotifier) Enqueue(_ context.Context, event, recipient string, _ any) error {
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	m.To = append(m.To, recipient)
	return nil
}

// MockPayments implements PaymentPort for testing
type MockPayments struct {
	Refunded   []string
	Err        error
	Confirmed  []string
	Conf       payment.Confirmation
	ConfirmErr error
}

func (m *MockPayments) Refund(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Refunded = append(m.Refunded, id)
	return nil
}

func (m *MockPayments) ConfirmIntent(_ context.Context, id string) (payment.Confirmation, error) {
	if m.ConfirmErr != nil {
		return payment.Confirmation{}, m.ConfirmErr
	}
	m.Confirmed = append(m.Confirmed, id)
	return m.Conf, nil
}
