package orders

import "time"

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Item is a purchase-time snapshot; never re-read from the live
// catalog after the order exists.
type Item struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	PriceMinor  int64  `json:"price_minor"`
	Quantity    int    `json:"quantity"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
}

type Order struct {
	ID                string     `json:"id"`
	OrderNumber       string     `json:"order_number"` // INF<epoch-ms>, unique
	CustomerEmail     string     `json:"customer_email"`
	CustomerName      string     `json:"customer_name"`
	CustomerPhone     string     `json:"customer_phone,omitempty"`
	ShippingAddress   Address    `json:"shipping_address"`
	Items             []Item     `json:"items"`
	SubtotalMinor     int64      `json:"subtotal_minor"`
	DiscountMinor     int64      `json:"discount_minor"`
	ShippingMinor     int64      `json:"shipping_minor"`
	TaxMinor          int64      `json:"tax_minor"`
	TotalMinor        int64      `json:"total_minor"`
	Status            Status     `json:"status"`
	PaymentIntentID   string     `json:"payment_intent_id,omitempty"`
	PaymentStatus     string     `json:"payment_status,omitempty"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	ShippingCarrier   string     `json:"shipping_carrier,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	InternalNotes     string     `json:"internal_notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Tracking struct {
	Number            string
	Carrier           string
	EstimatedDelivery *time.Time
	Notes             string
}

// Total is subtotal - discount + shipping + tax, floored at 0.
func Total(subtotal, discount, shipping, tax int64) int64 {
	t := subtotal - discount + shipping + tax
	if t < 0 {
		return 0
	}
	return t
}
