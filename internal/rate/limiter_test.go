package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozen(l *Limiter) *time.Time {
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	l.stamp = now
	return &now
}

// ─── Limiter ──────────────────────────────────────────────────────────────────

func TestLimiter_AllowUpToBurst(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1, Burst: 3})
	frozen(lim)

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed, "burst caps immediate requests")
}

func TestLimiter_RefillUsesClock(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 2, Burst: 1})
	now := frozen(lim)

	require.True(t, lim.Allow())
	require.False(t, lim.Allow(), "bucket is empty")

	*now = now.Add(500 * time.Millisecond)
	assert.True(t, lim.Allow(), "half a second at 2 rps refills one token")
}

func TestLimiter_RefillCappedAtBurst(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 10, Burst: 2})
	now := frozen(lim)

	*now = now.Add(time.Hour)
	assert.True(t, lim.Allow())
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())
}

func TestLimiter_ReserveReportsDelay(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 4, Burst: 1})
	frozen(lim)

	assert.Zero(t, lim.reserve(true))
	assert.Equal(t, 250*time.Millisecond, lim.reserve(true))
	assert.Equal(t, 500*time.Millisecond, lim.reserve(true), "queued callers wait in turn")
}

func TestLimiter_UnlimitedAlwaysAllows(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 0})
	for i := 0; i < 100; i++ {
		require.True(t, lim.Allow())
	}
	require.NoError(t, lim.Wait(context.Background()))
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1, Burst: 1})
	frozen(lim)
	require.True(t, lim.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, lim.Wait(ctx), context.DeadlineExceeded)
	assert.InDelta(t, 0, lim.tokens, 1e-9, "abandoned reservation is returned")
}

func TestLimiter_WaitSleepsUntilDue(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 50, Burst: 1})
	require.True(t, lim.Allow())

	start := time.Now()
	require.NoError(t, lim.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

// ─── Manager ──────────────────────────────────────────────────────────────────

func TestManager_SeparateLimiterPerOp(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 1, Burst: 1})

	assert.Same(t, m.GetLimiter("list_studies"), m.GetLimiter("list_studies"))
	assert.NotSame(t, m.GetLimiter("list_studies"), m.GetLimiter("reserve_study"))

	require.True(t, m.GetLimiter("list_studies").Allow())
	assert.True(t, m.GetLimiter("reserve_study").Allow(), "ops do not share a bucket")
}

func TestManager_Override(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 1, Burst: 1})
	old := m.GetLimiter("reserve_study")

	m.Set("reserve_study", Config{})
	lim := m.GetLimiter("reserve_study")
	assert.NotSame(t, old, lim, "override replaces the bucket")
	for i := 0; i < 20; i++ {
		require.True(t, lim.Allow())
	}

	require.True(t, m.GetLimiter("list_studies").Allow())
	assert.False(t, m.GetLimiter("list_studies").Allow(), "other ops keep the defaults")
}
