package budget

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryTrackerExhaustsForRemainderOfDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tr := NewMemoryTracker(Limits{Daily: 0.05})
	tr.Now = fixedClock(now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := tr.Reserve(ctx, 0.01)
		require.NoError(t, err)
		require.True(t, ok, "reservation %d should fit", i)
	}
	ok, _ := tr.Reserve(ctx, 0.01)
	assert.False(t, ok)

	// a cheaper call no longer fits either: the window is exhausted
	ok, _ = tr.Reserve(ctx, 0)
	assert.False(t, ok)

	snap, _ := tr.Snapshot(ctx)
	assert.True(t, snap.Exhausted)
	assert.InDelta(t, 0.05, snap.DaySpent, 1e-9)

	tr.Now = fixedClock(now.Add(24 * time.Hour))
	ok, _ = tr.Reserve(ctx, 0.01)
	assert.True(t, ok, "next day opens a fresh window")
}

func TestMemoryTrackerMonthlyLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tr := NewMemoryTracker(Limits{Monthly: 0.02})
	tr.Now = fixedClock(now)
	ctx := context.Background()

	ok, _ := tr.Reserve(ctx, 0.02)
	require.True(t, ok)
	tr.Now = fixedClock(now.Add(48 * time.Hour))
	ok, _ = tr.Reserve(ctx, 0.01)
	assert.False(t, ok)
}

func TestMemoryTrackerSuspend(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tr := NewMemoryTracker(Limits{})
	tr.Now = fixedClock(now)
	ctx := context.Background()

	require.NoError(t, tr.Suspend(ctx, time.Minute))
	ok, _ := tr.Reserve(ctx, 0.01)
	assert.False(t, ok)

	tr.Now = fixedClock(now.Add(2 * time.Minute))
	ok, _ = tr.Reserve(ctx, 0.01)
	assert.True(t, ok)

	require.NoError(t, tr.Suspend(ctx, 0))
	tr.Now = fixedClock(now.Add(10 * time.Hour))
	ok, _ = tr.Reserve(ctx, 0.01)
	assert.False(t, ok, "suspension without a duration lasts until the end of the day")
}

func TestRedisTrackerIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	tr := NewRedisTracker(client, Limits{Daily: 0.02})
	tr.Prefix = "triage:test:" + time.Now().Format("150405.000") + ":"

	ok, err := tr.Reserve(ctx, 0.01)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = tr.Reserve(ctx, 0.01)
	assert.True(t, ok)
	ok, _ = tr.Reserve(ctx, 0.01)
	assert.False(t, ok)

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Exhausted)
	assert.InDelta(t, 0.02, snap.DaySpent, 1e-9)
}
