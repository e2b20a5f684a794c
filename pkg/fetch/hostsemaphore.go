package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

type hostEntry struct {
	sem    *semaphore.Weighted
	active int64
}

// HostSemaphorePool caps concurrent sitemap fetches per host. One pool is
// shared by every scan the orchestrator runs so the limit holds across sites
// that share a CDN host.
type HostSemaphorePool struct {
	entries map[string]*hostEntry
	mu      sync.Mutex
	limit   int64
	log     *logrus.Entry
}

// NewHostSemaphorePool creates a new pool with the given per-host concurrency limit.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("per-host limit invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		entries: make(map[string]*hostEntry),
		limit:   limit,
		log:     log,
	}
}

// Acquire blocks until a permit for host is available or ctx is cancelled.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	p.mu.Lock()
	entry, exists := p.entries[host]
	if !exists {
		entry = &hostEntry{sem: semaphore.NewWeighted(p.limit)}
		p.entries[host] = entry
	}
	entry.active++
	p.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		p.release(host, entry, false)
		return fmt.Errorf("%w: host %s: %w", utils.ErrSemaphoreTimeout, host, err)
	}
	return nil
}

// Release returns one permit for host. Idle hosts are dropped from the pool.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	entry, exists := p.entries[host]
	p.mu.Unlock()
	if !exists {
		p.log.Errorf("hostsemaphore: Release called for unknown host: %s", host)
		return
	}
	p.release(host, entry, true)
}

func (p *HostSemaphorePool) release(host string, entry *hostEntry, held bool) {
	p.mu.Lock()
	entry.active--
	if entry.active == 0 {
		delete(p.entries, host)
	}
	p.mu.Unlock()
	if held {
		entry.sem.Release(1)
	}
}

// Len returns the number of hosts with held or pending permits.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
