package payment

import (
	"context"
	"errors"
)

var (
	ErrInvalidAmount  = errors.New("payment amount must be a positive integer in minor units")
	ErrGateway        = errors.New("payment gateway error")
	ErrGatewayTimeout = errors.New("payment gateway timeout")
)

// IntentRef is the gateway-issued handle for an authorization in
// progress. Ephemeral on our side: the gateway is the system of
// record, the order picks up the id at creation time.
type IntentRef struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
}

type Confirmation struct {
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (IntentRef, error)
	GetIntent(ctx context.Context, paymentIntentID string) (Confirmation, error)
	Refund(ctx context.Context, paymentIntentID string) error
}
