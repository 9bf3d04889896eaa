package cart

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Item is one cart line. Lines are merged by (ProductID, Size):
// adding a product in a size already present bumps the quantity.
type Item struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	PriceMinor  int64  `json:"price_minor"`
	Quantity    int    `json:"quantity"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	Discount    int    `json:"discount,omitempty"` // percent applied at add time
	Image       string `json:"image,omitempty"`
}

// State is the live cart, owned by the client session and passed
// explicitly; it is not the system of record until checkout.
type State struct {
	SessionID string `json:"session_id"`
	Items     []Item `json:"items"`
}

func NewState() State {
	return State{SessionID: NewSessionID()}
}

func NewSessionID() string {
	return fmt.Sprintf("sess_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewOrderNumber mints the INF<epoch-ms> order number for one
// checkout attempt.
func NewOrderNumber() string {
	return fmt.Sprintf("INF%d", time.Now().UnixMilli())
}

// Add merges by (ProductID, Size); a match increments quantity
// instead of creating a duplicate line.
func (s *State) Add(it Item) error {
	if it.Quantity < 1 {
		return fmt.Errorf("invalid quantity %d for product %d", it.Quantity, it.ProductID)
	}
	for i := range s.Items {
		if s.Items[i].ProductID == it.ProductID && s.Items[i].Size == it.Size {
			s.Items[i].Quantity += it.Quantity
			return nil
		}
	}
	s.Items = append(s.Items, it)
	return nil
}

// SetQuantity updates a line; quantity 0 removes it.
func (s *State) SetQuantity(productID int64, size string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("invalid quantity %d", qty)
	}
	for i := range s.Items {
		if s.Items[i].ProductID == productID && s.Items[i].Size == size {
			if qty == 0 {
				s.Items = append(s.Items[:i], s.Items[i+1:]...)
			} else {
				s.Items[i].Quantity = qty
			}
			return nil
		}
	}
	return fmt.Errorf("no line for product %d size %q", productID, size)
}

func (s *State) Remove(productID int64, size string) {
	_ = s.SetQuantity(productID, size, 0)
}

func (s *State) Clear() {
	s.Items = nil
}

// TotalItems is the sum of quantities; derived, never stored.
func (s State) TotalItems() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal is sum(price * qty) in minor units; derived, never stored.
func (s State) Subtotal() int64 {
	var sum int64
	for _, it := range s.Items {
		sum += it.PriceMinor * int64(it.Quantity)
	}
	return sum
}
