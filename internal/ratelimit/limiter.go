// Package ratelimit implements fixed-window admission control for
// repeated actions, keyed by an arbitrary string such as a channel or
// user id.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// window is one key's active counting window.
type window struct {
	start time.Time
	count int
}

// Limiter admits at most max actions per key per window. Buckets are
// created lazily on first observation of a key and evicted by Sweep once
// their window has long expired, so the key set stays bounded.
type Limiter struct {
	max    int
	window time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	windows map[string]*window

	// now is swapped out in tests.
	now func() time.Time
}

// New creates a limiter admitting max actions per window for each key.
func New(max int, windowLength time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{
		max:     max,
		window:  windowLength,
		logger:  logger,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check records an attempt for key and reports whether it is admitted.
// Denied attempts return the time remaining until the key's window
// resets. The read-modify-write happens under one lock acquisition so
// concurrent checks against the same key cannot lose updates.
func (l *Limiter) Check(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
	}

	if now.Sub(w.start) >= l.window {
		w.start = now
		w.count = 0
	}

	w.count++
	if w.count > l.max {
		return false, w.start.Add(l.window).Sub(now)
	}

	return true, 0
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops keys whose window expired at least a full window ago.
// A key evicted here would be reset on its next Check anyway, so
// eviction never changes admission decisions.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.windows, key)
			evicted++
		}
	}
	return evicted
}

// StartSweepJob periodically sweeps stale keys until the context is
// canceled.
func (l *Limiter) StartSweepJob(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := l.Sweep(); evicted > 0 {
					l.logger.Debug("swept stale cooldown keys", zap.Int("evicted", evicted))
				}
			}
		}
	}()
}
