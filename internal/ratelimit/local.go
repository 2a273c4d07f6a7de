package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// FixedWindow is the in-process strategy: a counter per key that resets when
// the window elapses. The window boundary is wall-clock relative to the
// first request in the window. State is strictly per instance, so this is a
// defense-in-depth fallback, not a global guarantee.
type FixedWindow struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*window

	stop chan struct{}
	once sync.Once
}

var _ Limiter = (*FixedWindow)(nil)

// NewFixedWindow creates a local limiter and starts a sweeper that drops
// expired buckets so the map does not grow without bound.
func NewFixedWindow(cfg Config) *FixedWindow {
	fw := &FixedWindow{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		buckets: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go fw.sweep()
	return fw
}

// Admit counts the request against the key's current window. The first
// request for a key always starts a fresh window and is admitted.
func (fw *FixedWindow) Admit(_ context.Context, key string) (Decision, error) {
	now := fw.now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	b, ok := fw.buckets[key]
	if !ok || !b.reset.After(now) {
		fw.buckets[key] = &window{count: 1, reset: now.Add(fw.cfg.Window)}
		return Decision{Allowed: true, Remaining: fw.cfg.Limit - 1}, nil
	}

	b.count++
	if b.count > fw.cfg.Limit {
		return Decision{Allowed: false, RetryAfter: b.reset.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: fw.cfg.Limit - b.count}, nil
}

// Close stops the sweeper goroutine.
func (fw *FixedWindow) Close() {
	fw.once.Do(func() { close(fw.stop) })
}

func (fw *FixedWindow) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-fw.stop:
			return
		case <-ticker.C:
			now := fw.now()
			fw.mu.Lock()
			for k, b := range fw.buckets {
				if !b.reset.After(now) {
					delete(fw.buckets, k)
				}
			}
			fw.mu.Unlock()
		}
	}
}
