package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"swarmcore/internal/logging"
)

// backoffSchedule is the exponential backoff the factory uses probing the
// distributed backend: 3 attempts at 100/500/1000ms.
var backoffSchedule = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}

var fallbackWarningOnce sync.Once

// FactoryConfig parameterizes NewFactory's backend selection.
type FactoryConfig struct {
	RedisAddr      string // empty disables the distributed backend
	CircuitTimeout time.Duration
	SQLitePath     string // empty disables the local-persistent backend
}

// NewFactory implements the documented selection policy: try distributed
// (circuit-breaker-wrapped Redis) with exponential backoff; on exhaustion,
// fall back to local-persistent if configured, else in-memory. The
// fallback warning is logged once per process via sync.Once.
func NewFactory(ctx context.Context, cfg FactoryConfig) Limiter {
	if cfg.RedisAddr != "" {
		if backend, ok := probeRedis(ctx, cfg.RedisAddr, cfg.CircuitTimeout); ok {
			logging.RateLimit("rate limiter using distributed (redis) backend at %s", cfg.RedisAddr)
			return NewLimiter(backend)
		}
	}

	fallbackWarningOnce.Do(func() {
		logging.RateLimitWarn("distributed rate-limit backend unavailable, falling back")
	})

	if cfg.SQLitePath != "" {
		backend, err := NewSQLBackend(cfg.SQLitePath)
		if err == nil {
			logging.RateLimit("rate limiter using local-persistent (sqlite) backend at %s", cfg.SQLitePath)
			return NewLimiter(backend)
		}
		logging.RateLimitWarn("failed to open local-persistent backend, falling back to in-memory: %v", err)
	}

	logging.RateLimit("rate limiter using in-memory backend")
	return NewLimiter(NewMemoryBackend())
}

// probeRedis attempts to reach addr with the documented backoff schedule,
// returning a usable Backend on the first successful PING.
func probeRedis(ctx context.Context, addr string, circuitTimeout time.Duration) (Backend, bool) {
	for attempt, delay := range backoffSchedule {
		client := redis.NewClient(&redis.Options{Addr: addr})
		pingCtx, cancel := context.WithTimeout(ctx, delay)
		err := client.Ping(pingCtx).Err()
		cancel()
		client.Close()

		if err == nil {
			return NewRedisBackend(addr, circuitTimeout), true
		}

		logging.RateLimitDebug("redis probe attempt %d failed: %v", attempt+1, err)
		if attempt < len(backoffSchedule)-1 {
			time.Sleep(delay)
		}
	}
	return nil, false
}
