package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingPublisher struct {
	mu    sync.Mutex
	calls map[uint64]int
}

func (p *countingPublisher) Publish(_ context.Context, userID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[uint64]int)
	}
	p.calls[userID]++
}

func (p *countingPublisher) count(userID uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[userID]
}

func TestDebounced_suppressesWithinInterval(t *testing.T) {
	ctx := context.Background()
	sink := &countingPublisher{}
	d := NewDebounced(sink, 30*time.Second, 5*time.Minute)

	clock := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	d.Publish(ctx, 1)
	d.Publish(ctx, 1)
	clock = clock.Add(10 * time.Second)
	d.Publish(ctx, 1)

	if got := sink.count(1); got != 1 {
		t.Errorf("publishes within interval = %d, want 1", got)
	}

	clock = clock.Add(30 * time.Second)
	d.Publish(ctx, 1)
	if got := sink.count(1); got != 2 {
		t.Errorf("publish after interval = %d, want 2", got)
	}
}

func TestDebounced_usersAreIndependent(t *testing.T) {
	ctx := context.Background()
	sink := &countingPublisher{}
	d := NewDebounced(sink, time.Minute, 5*time.Minute)

	d.Publish(ctx, 1)
	d.Publish(ctx, 2)

	if sink.count(1) != 1 || sink.count(2) != 1 {
		t.Errorf("users throttled each other: %v", sink.calls)
	}
}

func TestDebounced_ttlEviction(t *testing.T) {
	ctx := context.Background()
	sink := &countingPublisher{}
	d := NewDebounced(sink, 30*time.Second, time.Minute)

	clock := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	for u := uint64(1); u <= 50; u++ {
		d.Publish(ctx, u)
	}

	clock = clock.Add(2 * time.Minute)
	d.Publish(ctx, 99) // triggers a sweep

	d.mu.Lock()
	size := len(d.lastSent)
	d.mu.Unlock()
	if size != 1 {
		t.Errorf("lastSent holds %d entries after TTL, want 1", size)
	}
}
