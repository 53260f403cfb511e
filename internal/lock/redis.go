package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker extends the lane across instances. TTL bounds how long a
// crashed holder can block the lane; a live holder refreshes it every TTL/3
// until release, so a pass may run longer than TTL.
type RedisLocker struct {
	Client         *redis.Client
	Prefix         string
	TTL            time.Duration
	ReleaseTimeout time.Duration
	Logger         zerolog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		Client:         client,
		Prefix:         "triage:lock:",
		TTL:            ttl,
		ReleaseTimeout: 3 * time.Second,
		Logger:         logger,
	}
}

func (r *RedisLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	token := uuid.NewString()
	k := r.Prefix + key
	ok, err := r.Client.SetNX(ctx, k, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.refresh(k, token, ttl, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			r.release(k, token)
		})
	}, true, nil
}

func (r *RedisLocker) refresh(k, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.releaseTimeout())
			n, err := refreshScript.Run(ctx, r.Client, []string{k}, token, ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.Logger.Warn().Err(err).Str("key", k).Msg("failed to refresh lock")
				continue
			}
			if n == 0 {
				r.Logger.Error().Str("key", k).Msg("lock lost before release")
				return
			}
		}
	}
}

func (r *RedisLocker) release(k, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.releaseTimeout())
	defer cancel()
	if err := releaseScript.Run(ctx, r.Client, []string{k}, token).Err(); err != nil {
		r.Logger.Error().Err(err).Str("key", k).Msg("failed to release lock")
	}
}

func (r *RedisLocker) releaseTimeout() time.Duration {
	if r.ReleaseTimeout <= 0 {
		return 3 * time.Second
	}
	return r.ReleaseTimeout
}
