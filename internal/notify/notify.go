// Package notify tells interested clients that a user's task counts moved.
// Delivery is best-effort and never awaited for correctness.
package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, userID uint64)
}

// LogPublisher is the default sink when no external publisher is wired.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, userID uint64) {
	log.Printf("[notify] user=%d tasks changed", userID)
}

// Debounced rate-limits per-user notifications. State is per-process and
// TTL-evicted; across multiple API replicas the debounce is not shared, so
// a client load-balanced across replicas can see bursts above the
// configured interval.
type Debounced struct {
	next     Publisher
	interval time.Duration
	ttl      time.Duration

	mu        sync.Mutex
	lastSent  map[uint64]time.Time
	lastSweep time.Time

	now func() time.Time // test hook
}

func NewDebounced(next Publisher, interval, ttl time.Duration) *Debounced {
	if ttl < interval {
		ttl = interval
	}
	return &Debounced{
		next:     next,
		interval: interval,
		ttl:      ttl,
		lastSent: make(map[uint64]time.Time),
		now:      time.Now,
	}
}

func (d *Debounced) Publish(ctx context.Context, userID uint64) {
	now := d.now()

	d.mu.Lock()
	d.sweepLocked(now)
	if last, ok := d.lastSent[userID]; ok && now.Sub(last) < d.interval {
		d.mu.Unlock()
		return
	}
	d.lastSent[userID] = now
	d.mu.Unlock()

	d.next.Publish(ctx, userID)
}

// sweepLocked evicts stale entries so the map stays bounded by the set of
// users active within one TTL.
func (d *Debounced) sweepLocked(now time.Time) {
	if now.Sub(d.lastSweep) < d.ttl {
		return
	}
	for u, last := range d.lastSent {
		if now.Sub(last) >= d.ttl {
			delete(d.lastSent, u)
		}
	}
	d.lastSweep = now
}
