package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, max int, window time.Duration) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(max, window, zap.NewNop())
	limiter.now = clock.Now
	return limiter, clock
}

func TestCheck_AdmitsUpToMax(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, 20*time.Second)

	for i := 0; i < 3; i++ {
		allowed, retryAfter := limiter.Check("channel-1")
		assert.True(t, allowed, "attempt %d should be admitted", i+1)
		assert.Zero(t, retryAfter)
	}

	allowed, retryAfter := limiter.Check("channel-1")
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)
}

func TestCheck_WindowSemantics(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, 20*time.Second)

	allowed, _ := limiter.Check("channel-1")
	require.True(t, allowed)

	allowed, retryAfter := limiter.Check("channel-1")
	require.False(t, allowed)
	assert.Equal(t, 20*time.Second, retryAfter)

	// Just before the window resets the key is still denied.
	clock.Advance(retryAfter - time.Millisecond)
	allowed, remaining := limiter.Check("channel-1")
	assert.False(t, allowed)
	assert.Equal(t, time.Millisecond, remaining)

	// Just after, it is admitted again.
	clock.Advance(2 * time.Millisecond)
	allowed, _ = limiter.Check("channel-1")
	assert.True(t, allowed)
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 20*time.Second)

	allowed, _ := limiter.Check("channel-1")
	require.True(t, allowed)

	allowed, _ = limiter.Check("channel-1")
	require.False(t, allowed)

	allowed, _ = limiter.Check("channel-2")
	assert.True(t, allowed, "a saturated key must not affect other keys")
}

func TestCheck_ConcurrentSameKey(t *testing.T) {
	limiter := New(10, time.Minute, zap.NewNop())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Check("channel-1"); allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted, "exactly max checks must be admitted, no lost updates")
}

func TestSweep_EvictsLongExpiredKeys(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, 20*time.Second)

	limiter.Check("stale")
	clock.Advance(30 * time.Second)
	limiter.Check("fresh")

	// "stale" is 30s old: expired, but not by a full extra window yet.
	assert.Zero(t, limiter.Sweep())
	assert.Equal(t, 2, limiter.Len())

	clock.Advance(15 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())

	// Eviction must not change admission: the stale key starts a fresh
	// window either way.
	allowed, _ := limiter.Check("stale")
	assert.True(t, allowed)
}
