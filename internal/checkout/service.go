package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/infstore/storefront/internal/abandoned"
	"github.com/infstore/storefront/internal/discount"
	"github.com/infstore/storefront/internal/notify"
	"github.com/infstore/storefront/internal/orders"
	"github.com/infstore/storefront/internal/payment"
)

var (
	ErrInvalidInput       = errors.New("invalid checkout input")
	ErrNotCancellable     = errors.New("order can no longer be cancelled")
	ErrCancelWindowClosed = errors.New("cancellation window has closed")
)

type OrderStore interface {
	Create(ctx context.Context, o orders.Order) (orders.Order, error)
	GetByID(ctx context.Context, id string) (orders.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (orders.Order, error)
	UpdateStatus(ctx context.Context, id string, next orders.Status) (orders.Order, error)
	AddTracking(ctx context.Context, id string, tr orders.Tracking) (orders.Order, error)
	List(ctx context.Context, limit int) ([]orders.Order, error)
	SetPayment(ctx context.Context, id, paymentIntentID, paymentStatus string) error
}

type DiscountStore interface {
	GetByCode(ctx context.Context, code string) (discount.Code, error)
	Consume(ctx context.Context, code string) error
	MintWelcomeCode(ctx context.Context, email string, now time.Time) (discount.Code, error)
}

type CartTracker interface {
	MarkRecovered(ctx context.Context, sessionID string) error
	DueForReminder(ctx context.Context, cutoff time.Time) ([]abandoned.Cart, error)
	MarkReminderSent(ctx context.Context, sessionID string) error
	GetBySession(ctx context.Context, sessionID string) (abandoned.Cart, error)
	CountUnrecovered(ctx context.Context) (int, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, eventType, recipient string, payload any) error
}

type PaymentPort interface {
	Refund(ctx context.Context, paymentIntentID string) error
	ConfirmIntent(ctx context.Context, paymentIntentID string) (payment.Confirmation, error)
}

// Service composes the checkout flow. Order creation is the only
// money-critical step; everything after it (discount consumption,
// recovery marking, notifications) is best-effort and must never
// undo the order.
type Service struct {
	Orders    OrderStore
	Discounts DiscountStore
	Tracker   CartTracker
	Notifier  Notifier
	Payments  PaymentPort

	OperatorEmail string
	StoreBaseURL  string
	CancelWindow  time.Duration
	ReminderGrace time.Duration

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ValidateDiscount is the read-only half of discount handling; no
// usage is burned here. A subscriber-bound code only validates for
// that subscriber's email.
func (s *Service) ValidateDiscount(ctx context.Context, code, customerEmail string, purchaseAmount int64) (int64, error) {
	c, err := s.Discounts.GetByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	if c.SubscriberEmail != "" && !strings.EqualFold(c.SubscriberEmail, customerEmail) {
		return 0, discount.ErrNotFound
	}
	return discount.Validate(c, purchaseAmount, s.now())
}

type PlaceOrderInput struct {
	OrderNumber     string         `json:"order_number"`
	CustomerEmail   string         `json:"customer_email"`
	CustomerName    string         `json:"customer_name"`
	CustomerPhone   string         `json:"customer_phone"`
	ShippingAddress orders.Address `json:"shipping_address"`
	Items           []orders.Item  `json:"items"`
	DiscountCode    string         `json:"discount_code"`
	ShippingMinor   int64          `json:"shipping_minor"`
	TaxMinor        int64          `json:"tax_minor"`
	PaymentIntentID string         `json:"payment_intent_id"`
	PaymentStatus   string         `json:"payment_status"`
	SessionID       string         `json:"session_id"`
}

func (in PlaceOrderInput) validate() error {
	switch {
	case !strings.HasPrefix(in.OrderNumber, "INF"):
		return fmt.Errorf("%w: bad order number %q", ErrInvalidInput, in.OrderNumber)
	case in.CustomerEmail == "" || in.CustomerName == "":
		return fmt.Errorf("%w: missing customer details", ErrInvalidInput)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: empty order", ErrInvalidInput)
	case in.ShippingAddress.Line1 == "" || in.ShippingAddress.City == "" ||
		in.ShippingAddress.PostalCode == "" || in.ShippingAddress.Country == "":
		return fmt.Errorf("%w: incomplete shipping address", ErrInvalidInput)
	case in.ShippingMinor < 0 || in.TaxMinor < 0:
		return fmt.Errorf("%w: negative shipping or tax", ErrInvalidInput)
	}
	for _, it := range in.Items {
		if it.Quantity < 1 || it.PriceMinor < 0 {
			return fmt.Errorf("%w: bad line for product %d", ErrInvalidInput, it.ProductID)
		}
	}
	return nil
}

// PlaceOrder recomputes money server-side, creates the order, then
// runs the non-critical tail. A duplicate order number means the
// order already exists (double submit); the existing row is returned.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (orders.Order, error) {
	if err := in.validate(); err != nil {
		return orders.Order{}, err
	}

	var subtotal int64
	for _, it := range in.Items {
		subtotal += it.PriceMinor * int64(it.Quantity)
	}

	var discountMinor int64
	if in.DiscountCode != "" {
		var err error
		discountMinor, err = s.ValidateDiscount(ctx, in.DiscountCode, in.CustomerEmail, subtotal)
		if err != nil {
			return orders.Order{}, err
		}
	}

	// prefer the gateway's own record of the payment over whatever
	// the client claims; on lookup failure keep the claim and move on
	paymentStatus := in.PaymentStatus
	if in.PaymentIntentID != "" {
		if conf, err := s.Payments.ConfirmIntent(ctx, in.PaymentIntentID); err != nil {
			log.Printf("confirm intent %s for order %s: %v", in.PaymentIntentID, in.OrderNumber, err)
		} else if conf.Status != "" {
			paymentStatus = conf.Status
		}
	}

	o, err := s.Orders.Create(ctx, orders.Order{
		OrderNumber:     in.OrderNumber,
		CustomerEmail:   in.CustomerEmail,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		ShippingAddress: in.ShippingAddress,
		Items:           in.Items,
		SubtotalMinor:   subtotal,
		DiscountMinor:   discountMinor,
		ShippingMinor:   in.ShippingMinor,
		TaxMinor:        in.TaxMinor,
		TotalMinor:      orders.Total(subtotal, discountMinor, in.ShippingMinor, in.TaxMinor),
		Status:          orders.StatusPending,
		PaymentIntentID: in.PaymentIntentID,
		PaymentStatus:   paymentStatus,
	})
	if errors.Is(err, orders.ErrDuplicateOrderNumber) {
		// already created; fetch instead of failing the caller
		return s.Orders.GetByNumber(ctx, in.OrderNumber)
	}
	if err != nil {
		return orders.Order{}, err
	}

	if in.DiscountCode != "" {
		if err := s.Discounts.Consume(ctx, in.DiscountCode); err != nil {
			log.Printf("consume discount %s for order %s: %v", in.DiscountCode, o.OrderNumber, err)
		}
	}
	if in.SessionID != "" {
		if err := s.Tracker.MarkRecovered(ctx, in.SessionID); err != nil && !errors.Is(err, abandoned.ErrNotFound) {
			log.Printf("mark cart %s recovered for order %s: %v", in.SessionID, o.OrderNumber, err)
		}
	}
	s.enqueue(ctx, notify.EventOrderCreated, o.CustomerEmail, notify.OrderCreatedPayload{
		OrderNumber: o.OrderNumber, CustomerName: o.CustomerName, CustomerEmail: o.CustomerEmail,
		ItemCount: len(o.Items), TotalMinor: o.TotalMinor,
	})
	s.enqueue(ctx, notify.EventOrderCreated, s.OperatorEmail, notify.OrderCreatedPayload{
		OrderNumber: o.OrderNumber, CustomerName: o.CustomerName, CustomerEmail: o.CustomerEmail,
		ItemCount: len(o.Items), TotalMinor: o.TotalMinor, Operator: true,
	})
	return o, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, next orders.Status) (orders.Order, error) {
	o, err := s.Orders.UpdateStatus(ctx, id, next)
	if err != nil {
		return orders.Order{}, err
	}
	s.enqueue(ctx, notify.EventOrderStatusChanged, o.CustomerEmail, notify.OrderStatusChangedPayload{
		OrderNumber: o.OrderNumber, CustomerName: o.CustomerName, NewStatus: string(o.Status),
	})
	return o, nil
}

func (s *Service) AddTracking(ctx context.Context, id string, tr orders.Tracking) (orders.Order, error) {
	before, err := s.Orders.GetByID(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	o, err := s.Orders.AddTracking(ctx, id, tr)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Status != before.Status {
		s.enqueue(ctx, notify.EventOrderStatusChanged, o.CustomerEmail, notify.OrderStatusChangedPayload{
			OrderNumber: o.OrderNumber, CustomerName: o.CustomerName,
			OldStatus: string(before.Status), NewStatus: string(o.Status),
			TrackingNumber: o.TrackingNumber, Carrier: o.ShippingCarrier,
		})
	}
	return o, nil
}

// CancelOrder marks the order cancelled first; the refund is a side
// effect that is not transactionally linked. If the refund fails the
// order stays cancelled and the failure goes to the operator.
func (s *Service) CancelOrder(ctx context.Context, orderNumber, email string) (orders.Order, error) {
	o, err := s.Orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return orders.Order{}, err
	}
	if !strings.EqualFold(o.CustomerEmail, email) {
		return orders.Order{}, orders.ErrNotFound
	}
	if !orders.CanCancel(o, s.now(), s.CancelWindow) {
		if orders.IsTerminal(o.Status) {
			return orders.Order{}, ErrNotCancellable
		}
		return orders.Order{}, ErrCancelWindowClosed
	}

	cancelled, err := s.Orders.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
	if err != nil {
		return orders.Order{}, err
	}

	if o.PaymentIntentID != "" {
		if err := s.Payments.Refund(ctx, o.PaymentIntentID); err != nil {
			log.Printf("refund for cancelled order %s (intent %s) failed, needs manual follow-up: %v",
				o.OrderNumber, o.PaymentIntentID, err)
			s.enqueue(ctx, notify.EventOrderStatusChanged, s.OperatorEmail, notify.OrderStatusChangedPayload{
				OrderNumber: o.OrderNumber, CustomerName: o.CustomerName,
				OldStatus: string(o.Status), NewStatus: "cancelled_refund_failed",
			})
		} else if err := s.Orders.SetPayment(ctx, o.ID, o.PaymentIntentID, "refunded"); err != nil {
			log.Printf("record refund on order %s: %v", o.OrderNumber, err)
		}
	}
	s.enqueue(ctx, notify.EventOrderStatusChanged, o.CustomerEmail, notify.OrderStatusChangedPayload{
		OrderNumber: o.OrderNumber, CustomerName: o.CustomerName,
		OldStatus: string(o.Status), NewStatus: string(orders.StatusCancelled),
	})
	return cancelled, nil
}

// SendReminders is the admin-triggered batch over carts that are
// abandoned (not merely idle) and not yet reminded.
func (s *Service) SendReminders(ctx context.Context) (sent, total int, err error) {
	total, err = s.Tracker.CountUnrecovered(ctx)
	if err != nil {
		return 0, 0, err
	}
	due, err := s.Tracker.DueForReminder(ctx, s.now().Add(-s.ReminderGrace))
	if err != nil {
		return 0, total, err
	}
	for _, c := range due {
		if err := s.remind(ctx, c); err != nil {
			log.Printf("reminder for cart %s: %v", c.SessionID, err)
			continue
		}
		sent++
	}
	return sent, total, nil
}

// ResendReminder ignores the reminder_sent flag (manual action).
func (s *Service) ResendReminder(ctx context.Context, sessionID string) error {
	c, err := s.Tracker.GetBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if c.Email == "" {
		return fmt.Errorf("%w: cart %s has no email", ErrInvalidInput, sessionID)
	}
	return s.remind(ctx, c)
}

func (s *Service) remind(ctx context.Context, c abandoned.Cart) error {
	err := s.Notifier.Enqueue(ctx, notify.EventCartReminder, c.Email, notify.CartReminderPayload{
		SessionID: c.SessionID, Name: c.Name, Items: c.Items, TotalMinor: c.TotalMinor,
		CheckoutURL: fmt.Sprintf("%s/checkout?session=%s", s.StoreBaseURL, c.SessionID),
	})
	if err != nil {
		return err
	}
	return s.Tracker.MarkReminderSent(ctx, c.SessionID)
}

// SubscribeNewsletter mints a single-use welcome code; if minting
// fails the welcome still goes out, just without a code.
func (s *Service) SubscribeNewsletter(ctx context.Context, email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: bad email", ErrInvalidInput)
	}
	payload := notify.NewsletterWelcomePayload{Email: email}
	if c, err := s.Discounts.MintWelcomeCode(ctx, email, s.now()); err != nil {
		log.Printf("mint welcome code for %s: %v", email, err)
	} else {
		payload.DiscountCode = c.Code
	}
	return s.Notifier.Enqueue(ctx, notify.EventNewsletterWelcome, email, payload)
}

func (s *Service) enqueue(ctx context.Context, event, recipient string, payload any) {
	if err := s.Notifier.Enqueue(ctx, event, recipient, payload); err != nil {
		log.Printf("enqueue %s for %s: %v", event, recipient, err)
	}
}
