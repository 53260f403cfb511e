package budget

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTracker shares the budget between every instance pointed at the same
// Redis database.
type RedisTracker struct {
	Client *redis.Client
	Limits Limits
	Prefix string
	Now    func() time.Time
}

func NewRedisTracker(client *redis.Client, limits Limits) *RedisTracker {
	return &RedisTracker{Client: client, Limits: limits, Prefix: "triage:ai:", Now: time.Now}
}

func (r *RedisTracker) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *RedisTracker) key(parts ...string) string {
	k := r.Prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (r *RedisTracker) Reserve(ctx context.Context, cost float64) (bool, error) {
	now := r.now()
	day, month := dayKey(now), monthKey(now)

	n, err := r.Client.Exists(ctx,
		r.key("suspended"),
		r.key("exhausted", "day", day),
		r.key("exhausted", "month", month),
	).Result()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	dayCost := r.key("cost", "day", day)
	monthCost := r.key("cost", "month", month)

	pipe := r.Client.TxPipeline()
	dayCmd := pipe.IncrByFloat(ctx, dayCost, cost)
	monthCmd := pipe.IncrByFloat(ctx, monthCost, cost)
	pipe.ExpireAt(ctx, dayCost, endOfDay(now).Add(24*time.Hour))
	pipe.ExpireAt(ctx, monthCost, endOfMonth(now).Add(24*time.Hour))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	var exhaustedKey string
	var until time.Time
	switch {
	case over(r.Limits.Daily, dayCmd.Val()):
		exhaustedKey, until = r.key("exhausted", "day", day), endOfDay(now)
	case over(r.Limits.Monthly, monthCmd.Val()):
		exhaustedKey, until = r.key("exhausted", "month", month), endOfMonth(now)
	default:
		return true, nil
	}

	rollback := r.Client.TxPipeline()
	rollback.IncrByFloat(ctx, dayCost, -cost)
	rollback.IncrByFloat(ctx, monthCost, -cost)
	rollback.Set(ctx, exhaustedKey, "1", until.Sub(now))
	if _, err := rollback.Exec(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (r *RedisTracker) Suspend(ctx context.Context, d time.Duration) error {
	now := r.now()
	if d <= 0 {
		d = endOfDay(now).Sub(now)
	}
	return r.Client.Set(ctx, r.key("suspended"), strconv.FormatInt(now.Add(d).Unix(), 10), d).Err()
}

func (r *RedisTracker) Snapshot(ctx context.Context) (Usage, error) {
	now := r.now()
	day, month := dayKey(now), monthKey(now)
	u := Usage{Day: day, Month: month, DailyLimit: r.Limits.Daily, MonthlyLimit: r.Limits.Monthly}

	var err error
	if u.DaySpent, err = r.getFloat(ctx, r.key("cost", "day", day)); err != nil {
		return Usage{}, err
	}
	if u.MonthSpent, err = r.getFloat(ctx, r.key("cost", "month", month)); err != nil {
		return Usage{}, err
	}
	n, err := r.Client.Exists(ctx, r.key("exhausted", "day", day), r.key("exhausted", "month", month)).Result()
	if err != nil {
		return Usage{}, err
	}
	u.Exhausted = n > 0

	v, err := r.Client.Get(ctx, r.key("suspended")).Result()
	if err != nil && err != redis.Nil {
		return Usage{}, err
	}
	if ts, convErr := strconv.ParseInt(v, 10, 64); err == nil && convErr == nil {
		until := time.Unix(ts, 0)
		u.SuspendedUntil = &until
	}
	return u, nil
}

func (r *RedisTracker) getFloat(ctx context.Context, key string) (float64, error) {
	v, err := r.Client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}
