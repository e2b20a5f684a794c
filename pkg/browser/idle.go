package browser

import (
	"context"
	"sync"
	"time"
)

const idlePollInterval = 50 * time.Millisecond

// IdleTracker counts in-flight requests from network events.
type IdleTracker struct {
	mu         sync.Mutex
	inflight   map[string]struct{}
	lastChange time.Time
}

// NewIdleTracker creates an idle tracker with no requests in flight.
func NewIdleTracker() *IdleTracker {
	return &IdleTracker{inflight: make(map[string]struct{}), lastChange: time.Now()}
}

// Started records a request as in flight.
func (t *IdleTracker) Started(id string) {
	t.mu.Lock()
	t.inflight[id] = struct{}{}
	t.lastChange = time.Now()
	t.mu.Unlock()
}

// Finished records a request as done, whether it succeeded or failed.
func (t *IdleTracker) Finished(id string) {
	t.mu.Lock()
	if _, ok := t.inflight[id]; ok {
		delete(t.inflight, id)
		t.lastChange = time.Now()
	}
	t.mu.Unlock()
}

// Reset forgets every in-flight request. Used after navigation, when the
// previous document's requests will never report completion.
func (t *IdleTracker) Reset() {
	t.mu.Lock()
	t.inflight = make(map[string]struct{})
	t.lastChange = time.Now()
	t.mu.Unlock()
}

// InFlight returns the number of requests in flight.
func (t *IdleTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

func (t *IdleTracker) idleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflight) > 0 {
		return 0
	}
	return time.Since(t.lastChange)
}

// Wait blocks until the network has been quiet for idle, timeout passes, or
// ctx ends. It reports whether idle was reached.
func (t *IdleTracker) Wait(ctx context.Context, idle, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(idlePollInterval)
	defer tick.Stop()

	for {
		if t.idleFor() >= idle {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}
