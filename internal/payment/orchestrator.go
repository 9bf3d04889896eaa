package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/infstore/storefront/internal/redisx"
)

// IntentCache dedupes intent creation per order number. The gateway
// stays the system of record; this only caches its response.
type IntentCache interface {
	Get(ctx context.Context, orderNumber string) (IntentRef, bool, error)
	PutIfAbsent(ctx context.Context, orderNumber string, ref IntentRef) error
}

type Orchestrator struct {
	Gateway  Gateway
	Cache    IntentCache
	Currency string
	Timeout  time.Duration
}

func NewOrchestrator(gw Gateway, cache IntentCache, currency string) *Orchestrator {
	return &Orchestrator{Gateway: gw, Cache: cache, Currency: currency, Timeout: 12 * time.Second}
}

// CreateIntent creates (or returns the already-created) payment
// intent for one order number. The order number rides in gateway
// metadata so the linkage survives a crash between intent creation
// and order creation. Never retried automatically on gateway errors.
func (o *Orchestrator) CreateIntent(ctx context.Context, amount int64, orderNumber string) (IntentRef, error) {
	if amount <= 0 {
		return IntentRef{}, ErrInvalidAmount
	}
	if orderNumber == "" {
		return IntentRef{}, fmt.Errorf("%w: missing order number", ErrInvalidAmount)
	}

	if ref, ok, err := o.Cache.Get(ctx, orderNumber); err == nil && ok {
		return ref, nil
	} else if err != nil {
		log.Printf("intent cache read for %s: %v", orderNumber, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	ref, err := o.Gateway.CreateIntent(callCtx, amount, o.Currency, map[string]string{
		"order_number": orderNumber,
	})
	if err != nil {
		return IntentRef{}, mapGatewayErr(err)
	}

	if err := o.Cache.PutIfAbsent(ctx, orderNumber, ref); err != nil {
		log.Printf("intent cache write for %s: %v", orderNumber, err)
	}
	return ref, nil
}

func (o *Orchestrator) ConfirmIntent(ctx context.Context, paymentIntentID string) (Confirmation, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	c, err := o.Gateway.GetIntent(callCtx, paymentIntentID)
	if err != nil {
		return Confirmation{}, mapGatewayErr(err)
	}
	return c, nil
}

func (o *Orchestrator) Refund(ctx context.Context, paymentIntentID string) error {
	callCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	if err := o.Gateway.Refund(callCtx, paymentIntentID); err != nil {
		return mapGatewayErr(err)
	}
	return nil
}

func mapGatewayErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}

// RedisIntentCache keys on idem:payment:intent:{order_number} with a
// 24h TTL, SET NX so the first writer wins.
type RedisIntentCache struct{ RDB *redis.Client }

func (c *RedisIntentCache) Get(ctx context.Context, orderNumber string) (IntentRef, bool, error) {
	key := fmt.Sprintf(redisx.KeyIdemPaymentIntent, orderNumber)
	raw, err := c.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return IntentRef{}, false, nil
	}
	if err != nil {
		return IntentRef{}, false, err
	}
	var ref IntentRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return IntentRef{}, false, err
	}
	return ref, true, nil
}

func (c *RedisIntentCache) PutIfAbsent(ctx context.Context, orderNumber string, ref IntentRef) error {
	key := fmt.Sprintf(redisx.KeyIdemPaymentIntent, orderNumber)
	b, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return c.RDB.SetNX(ctx, key, b, redisx.TTLIdempotency).Err()
}
