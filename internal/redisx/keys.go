package redisx

import "time"

const (
	// Idempotency for payment-intent creation: idem:payment:intent:{order_number} -> {"payment_intent_id":..., "client_secret":...}
	KeyIdemPaymentIntent = "idem:payment:intent:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
