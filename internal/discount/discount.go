package discount

import (
	"errors"
	"math"
	"strings"
	"time"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

var (
	ErrNotFound     = errors.New("discount code not found")
	ErrExpired      = errors.New("discount code expired")
	ErrExhausted    = errors.New("discount code usage limit reached")
	ErrBelowMinimum = errors.New("purchase amount below code minimum")
)

type Code struct {
	ID              string
	Code            string
	Type            Type
	Value           int64 // percent for percentage, major units for fixed
	MinPurchase     int64 // minor units
	MaxUses         int
	UsedCount       int
	SubscriberEmail string // non-empty = bound to one subscriber
	ExpiresAt       time.Time
	IsActive        bool
	CreatedAt       time.Time
}

// Normalize is the canonical form codes are stored and looked up in.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate is read-only: it never touches UsedCount. Consumption is a
// separate commit step after the order exists, so an abandoned
// checkout does not burn a use.
func Validate(c Code, purchaseAmount int64, now time.Time) (int64, error) {
	if !c.IsActive {
		return 0, ErrNotFound
	}
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
		return 0, ErrExpired
	}
	if c.UsedCount >= c.MaxUses {
		return 0, ErrExhausted
	}
	if purchaseAmount < c.MinPurchase {
		return 0, ErrBelowMinimum
	}

	var amount int64
	switch c.Type {
	case TypePercentage:
		amount = int64(math.Round(float64(purchaseAmount) * float64(c.Value) / 100))
	case TypeFixed:
		amount = c.Value * 100 // major units -> minor
	default:
		return 0, ErrNotFound
	}

	if amount < 0 {
		amount = 0
	}
	if amount > purchaseAmount {
		amount = purchaseAmount
	}
	return amount, nil
}
