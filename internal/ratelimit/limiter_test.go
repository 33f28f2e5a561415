package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenLimiter(rps float64, burst int) (*Limiter, *time.Time) {
	l := NewLimiter(rps, burst)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestNewLimiter_DefaultBurst(t *testing.T) {
	assert.Equal(t, 3, NewLimiter(10, 3).defaultBurst)
	assert.Equal(t, DefaultBurst, NewLimiter(10, 0).defaultBurst)
	assert.Equal(t, DefaultBurst, NewLimiter(10, -1).defaultBurst)
}

func TestCheck_BurstThenDeny(t *testing.T) {
	l, _ := frozenLimiter(1, 2)

	assert.True(t, l.Check("owner-1").Allowed)
	assert.True(t, l.Check("owner-1").Allowed)

	denied := l.Check("owner-1")
	assert.False(t, denied.Allowed)
	assert.InDelta(t, time.Second.Seconds(), denied.RetryAfter.Seconds(), 0.01)

	// A denied check does not consume a token, so the wait does not grow.
	again := l.Check("owner-1")
	assert.InDelta(t, denied.RetryAfter.Seconds(), again.RetryAfter.Seconds(), 0.01)
}

func TestCheck_RefillsOverTime(t *testing.T) {
	l, now := frozenLimiter(2, 1)

	require.True(t, l.Allow("owner-1"))
	require.False(t, l.Allow("owner-1"))

	*now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("owner-1"))
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l, _ := frozenLimiter(1, 1)

	assert.True(t, l.Allow("owner-1"))
	assert.False(t, l.Allow("owner-1"))
	assert.True(t, l.Allow("owner-2"))
	assert.Equal(t, 2, l.Len())
}

func TestCheck_DisabledWhenRateNotPositive(t *testing.T) {
	l, _ := frozenLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("owner-1"))
	}
}

func TestSetKeyRate(t *testing.T) {
	l, _ := frozenLimiter(1, 1)
	l.SetKeyRate("vip", 100, 10)

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("vip"))
	}
	assert.False(t, l.Allow("vip"))
}

func TestCheck_Concurrent(t *testing.T) {
	l, _ := frozenLimiter(1, 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("owner-1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}
