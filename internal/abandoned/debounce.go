package abandoned

import (
	"context"
	"log"
	"sync"
	"time"
)

type Saver interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Debouncer collapses a burst of cart mutations into one trailing
// write per session: the timer restarts on every call and the write
// that eventually fires carries the latest snapshot. Bounds write
// amplification from rapid quantity changes.
type Debouncer struct {
	saver Saver
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Snapshot
	wg      sync.WaitGroup
}

func NewDebouncer(saver Saver, delay time.Duration) *Debouncer {
	return &Debouncer{
		saver:   saver,
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]Snapshot),
	}
}

func (d *Debouncer) Save(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[snap.SessionID] = snap
	if t, ok := d.timers[snap.SessionID]; ok {
		t.Stop()
	}
	sessionID := snap.SessionID
	d.timers[sessionID] = time.AfterFunc(d.delay, func() { d.fire(sessionID) })
}

func (d *Debouncer) fire(sessionID string) {
	d.mu.Lock()
	snap, ok := d.pending[sessionID]
	delete(d.pending, sessionID)
	delete(d.timers, sessionID)
	if ok {
		d.wg.Add(1)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.saver.Save(ctx, snap); err != nil {
		log.Printf("abandoned cart save for %s: %v", sessionID, err)
	}
}

// Flush writes everything still pending and waits for in-flight
// saves; called on shutdown so trailing timers are not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.pending))
	for _, t := range d.timers {
		t.Stop()
	}
	for id := range d.pending {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.fire(id)
	}
	d.wg.Wait()
}
