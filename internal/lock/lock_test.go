package lock

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSingleHolder(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "lane")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryAcquire(ctx, "lane"); ok {
		t.Fatalf("expected second acquire to fail while held")
	}
	if _, ok, _ := l.TryAcquire(ctx, "other"); !ok {
		t.Fatalf("expected independent key to be free")
	}
	release()
	release()
	if _, ok, _ := l.TryAcquire(ctx, "lane"); !ok {
		t.Fatalf("expected acquire after release")
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	var k KeyedMutex
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("staff-1")
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", counter)
	}
	if len(k.locks) != 0 {
		t.Fatalf("expected lock entries to be released, got %d", len(k.locks))
	}
}

func TestRedisLockerIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLocker(client, time.Minute, zerolog.Nop())
	l.Prefix = "triage:test:lock:" + time.Now().Format("150405.000") + ":"
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "lane")
	if err != nil || !ok {
		t.Fatalf("expected acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryAcquire(ctx, "lane"); ok {
		t.Fatalf("expected lane to be held")
	}
	release()
	if _, ok, _ := l.TryAcquire(ctx, "lane"); !ok {
		t.Fatalf("expected lane free after release")
	}
}

func newMiniLocker(t *testing.T, ttl time.Duration, logger zerolog.Logger) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client, ttl, logger)
	l.ReleaseTimeout = 200 * time.Millisecond
	return mr, l
}

func TestRedisLockerRefreshesWhileHeld(t *testing.T) {
	mr, l := newMiniLocker(t, 90*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "lane")
	require.NoError(t, err)
	require.True(t, ok)

	key := l.Prefix + "lane"
	mr.FastForward(60 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) == 90*time.Millisecond
	}, time.Second, 5*time.Millisecond, "holder should push the expiry forward")

	_, ok, err = l.TryAcquire(ctx, "lane")
	require.NoError(t, err)
	require.False(t, ok)

	release()
	release()
	require.False(t, mr.Exists(key))
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, l := newMiniLocker(t, time.Minute, zerolog.Nop())

	release, ok, err := l.TryAcquire(context.Background(), "lane")
	require.NoError(t, err)
	require.True(t, ok)

	key := l.Prefix + "lane"
	require.NoError(t, mr.Set(key, "another-holder"))
	release()

	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "another-holder", got)
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	var buf bytes.Buffer
	mr, l := newMiniLocker(t, time.Minute, zerolog.New(&buf))

	release, ok, err := l.TryAcquire(context.Background(), "lane")
	require.NoError(t, err)
	require.True(t, ok)

	mr.Close()
	start := time.Now()
	release()
	require.Less(t, time.Since(start), 2*time.Second)
	require.Contains(t, buf.String(), "failed to release lock")
}
