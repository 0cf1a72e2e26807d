package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"swarmcore/internal/logging"
)

// redisBackend is the distributed Backend: a sorted-set sliding window per
// (agent,endpoint) key, guarded by a circuit breaker so a down Redis fails
// fast into the factory's fallback chain instead of blocking every call on
// a TCP timeout.
type redisBackend struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

// NewRedisBackend dials addr and wraps it with a circuit breaker that trips
// after repeated failures within circuitTimeout.
func NewRedisBackend(addr string, circuitTimeout time.Duration) Backend {
	client := redis.NewClient(&redis.Options{Addr: addr})

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     circuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.RateLimitWarn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &redisBackend{client: client, breaker: cb}
}

func sortedSetKey(agent, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s", agent, endpoint)
}

func (r *redisBackend) Record(ctx context.Context, agent, endpoint string, ts time.Time) error {
	key := sortedSetKey(agent, endpoint)
	score := float64(ts.UnixMilli())

	_, err := r.breaker.Execute(func() (interface{}, error) {
		pipe := r.client.TxPipeline()
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: ts.UnixNano()})
		pipe.Expire(ctx, key, 2*time.Hour) // safety TTL, 2x the larger (hour) window
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	return err
}

func (r *redisBackend) CountSince(ctx context.Context, agent, endpoint string, since time.Time) (int, time.Time, error) {
	key := sortedSetKey(agent, endpoint)
	min := fmt.Sprintf("%d", since.UnixMilli())

	result, err := r.breaker.Execute(func() (interface{}, error) {
		// opportunistic trim of entries older than the larger (hour) window
		// before counting, so a later hour-window query still sees them
		cutoff := time.Now().Add(-time.Hour)
		if since.Before(cutoff) {
			cutoff = since
		}
		if err := r.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff.UnixMilli())).Err(); err != nil {
			return nil, err
		}
		count, err := r.client.ZCount(ctx, key, min, "+inf").Result()
		if err != nil {
			return nil, err
		}
		oldestMembers, err := r.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: min, Max: "+inf", Count: 1}).Result()
		if err != nil {
			return nil, err
		}
		return struct {
			count  int64
			oldest float64
		}{count, oldestScore(oldestMembers)}, nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	data := result.(struct {
		count  int64
		oldest float64
	})
	var oldest time.Time
	if data.oldest > 0 {
		oldest = time.UnixMilli(int64(data.oldest))
	}
	return int(data.count), oldest, nil
}

func oldestScore(members []redis.Z) float64 {
	if len(members) == 0 {
		return 0
	}
	return members[0].Score
}
