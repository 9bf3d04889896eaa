package abandoned

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infstore/storefront/internal/cart"
)

// recordingSaver implements Saver for testing
type recordingSaver struct {
	mu    sync.Mutex
	saves []Snapshot
}

func (r *recordingSaver) Save(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, snap)
	return nil
}

func (r *recordingSaver) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.saves...)
}

func TestDebounce_BurstCollapsesToOneTrailingWrite(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(saver, 30*time.Millisecond)

	for qty := 1; qty <= 10; qty++ {
		d.Save(Snapshot{
			SessionID:  "sess-1",
			Items:      []cart.Item{{ProductID: 1, PriceMinor: 2000, Quantity: qty}},
			TotalMinor: int64(qty) * 2000,
		})
	}

	require.Eventually(t, func() bool { return len(saver.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond) // no second write may trail in

	saves := saver.all()
	require.Len(t, saves, 1)
	assert.Equal(t, 10, saves[0].Items[0].Quantity, "write must carry the latest snapshot")
	assert.Equal(t, int64(20000), saves[0].TotalMinor)
}

func TestDebounce_SessionsAreIndependent(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(saver, 20*time.Millisecond)

	d.Save(Snapshot{SessionID: "sess-a", TotalMinor: 100})
	d.Save(Snapshot{SessionID: "sess-b", TotalMinor: 200})

	require.Eventually(t, func() bool { return len(saver.all()) == 2 }, time.Second, 5*time.Millisecond)

	got := map[string]int64{}
	for _, s := range saver.all() {
		got[s.SessionID] = s.TotalMinor
	}
	assert.Equal(t, map[string]int64{"sess-a": 100, "sess-b": 200}, got)
}

func TestDebounce_FlushWritesPendingImmediately(t *testing.T) {
	saver := &recordingSaver{}
	d := NewDebouncer(saver, time.Hour) // would never fire on its own

	d.Save(Snapshot{SessionID: "sess-1", TotalMinor: 500})
	d.Flush()

	saves := saver.all()
	require.Len(t, saves, 1)
	assert.Equal(t, int64(500), saves[0].TotalMinor)
}

func TestDebounce_FlushWithNothingPending(t *testing.T) {
	d := NewDebouncer(&recordingSaver{}, time.Millisecond)
	d.Flush()
}
