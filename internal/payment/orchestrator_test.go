package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway implements Gateway for testing
type fakeGateway struct {
	createCalls int
	metadata    map[string]string
	ref         IntentRef
	conf        Confirmation
	err         error
	refunded    []string
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount int64, _ string, metadata map[string]string) (IntentRef, error) {
	g.createCalls++
	g.metadata = metadata
	if g.err != nil {
		return IntentRef{}, g.err
	}
	g.ref.Amount = amount
	return g.ref, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, _ string) (Confirmation, error) {
	return g.conf, g.err
}

func (g *fakeGateway) Refund(_ context.Context, id string) error {
	if g.err != nil {
		return g.err
	}
	g.refunded = append(g.refunded, id)
	return nil
}

type mapCache struct{ m map[string]IntentRef }

func newMapCache() *mapCache { return &mapCache{m: map[string]IntentRef{}} }

func (c *mapCache) Get(_ context.Context, orderNumber string) (IntentRef, bool, error) {
	ref, ok := c.m[orderNumber]
	return ref, ok, nil
}

func (c *mapCache) PutIfAbsent(_ context.Context, orderNumber string, ref IntentRef) error {
	if _, ok := c.m[orderNumber]; !ok {
		c.m[orderNumber] = ref
	}
	return nil
}

func TestCreateIntent_RejectsNonPositiveAmount(t *testing.T) {
	o := NewOrchestrator(&fakeGateway{}, newMapCache(), "gbp")

	_, err := o.CreateIntent(context.Background(), 0, "INF1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = o.CreateIntent(context.Background(), -100, "INF1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCreateIntent_EmbedsOrderNumberMetadata(t *testing.T) {
	gw := &fakeGateway{ref: IntentRef{PaymentIntentID: "pi_1", ClientSecret: "cs_1"}}
	o := NewOrchestrator(gw, newMapCache(), "gbp")

	ref, err := o.CreateIntent(context.Background(), 3900, "INF1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", ref.PaymentIntentID)
	assert.Equal(t, "cs_1", ref.ClientSecret)
	assert.Equal(t, int64(3900), ref.Amount)
	assert.Equal(t, "INF1700000000000", gw.metadata["order_number"])
}

func TestCreateIntent_IdempotentPerOrderNumber(t *testing.T) {
	gw := &fakeGateway{ref: IntentRef{PaymentIntentID: "pi_1", ClientSecret: "cs_1"}}
	o := NewOrchestrator(gw, newMapCache(), "gbp")

	first, err := o.CreateIntent(context.Background(), 3900, "INF1")
	require.NoError(t, err)
	second, err := o.CreateIntent(context.Background(), 3900, "INF1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.createCalls, "client retry must not mint a second intent")
}

func TestCreateIntent_GatewayErrorNotCached(t *testing.T) {
	gw := &fakeGateway{err: errors.New("card declined")}
	cache := newMapCache()
	o := NewOrchestrator(gw, cache, "gbp")

	_, err := o.CreateIntent(context.Background(), 3900, "INF1")
	assert.ErrorIs(t, err, ErrGateway)
	assert.NotErrorIs(t, err, ErrGatewayTimeout)
	assert.Empty(t, cache.m)
}

func TestCreateIntent_TimeoutIsTyped(t *testing.T) {
	gw := &fakeGateway{err: context.DeadlineExceeded}
	o := NewOrchestrator(gw, newMapCache(), "gbp")

	_, err := o.CreateIntent(context.Background(), 3900, "INF1")
	assert.ErrorIs(t, err, ErrGatewayTimeout)
}

func TestConfirmIntent(t *testing.T) {
	gw := &fakeGateway{conf: Confirmation{Status: "succeeded", Amount: 3900, Currency: "gbp"}}
	o := NewOrchestrator(gw, newMapCache(), "gbp")

	c, err := o.ConfirmIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", c.Status)
	assert.Equal(t, int64(3900), c.Amount)
}

func TestRefund(t *testing.T) {
	gw := &fakeGateway{}
	o := NewOrchestrator(gw, newMapCache(), "gbp")

	require.NoError(t, o.Refund(context.Background(), "pi_1"))
	assert.Equal(t, []string{"pi_1"}, gw.refunded)
}
