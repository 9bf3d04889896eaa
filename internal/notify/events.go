package notify

import (
	"encoding/json"
	"time"

	"github.com/infstore/storefront/internal/cart"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventCartReminder       = "cart.abandoned_reminder"
	EventNewsletterWelcome  = "newsletter.welcome"
)

// Notification is one outbox row. Business logic never consumes a
// return value from dispatch; rows that keep failing stay visible in
// the table for operational follow-up.
type Notification struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Recipient string          `json:"recipient"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// ---- payload per event ----

type OrderCreatedPayload struct {
	OrderNumber   string `json:"order_number"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	ItemCount     int    `json:"item_count"`
	TotalMinor    int64  `json:"total_minor"`
	Operator      bool   `json:"operator,omitempty"` // true on the operator-alert copy
}

type OrderStatusChangedPayload struct {
	OrderNumber    string `json:"order_number"`
	CustomerName   string `json:"customer_name"`
	OldStatus      string `json:"old_status,omitempty"`
	NewStatus      string `json:"new_status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

type CartReminderPayload struct {
	SessionID   string      `json:"session_id"`
	Name        string      `json:"name,omitempty"`
	Items       []cart.Item `json:"items"`
	TotalMinor  int64       `json:"total_minor"`
	CheckoutURL string      `json:"checkout_url"` // deep link back to checkout
}

type NewsletterWelcomePayload struct {
	Email        string `json:"email"`
	DiscountCode string `json:"discount_code,omitempty"`
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
