package ratelimit

import (
	"context"
	"time"

	"swarmcore/internal/logging"
	"swarmcore/internal/swarmerr"
)

// backendLimiter is a Limiter built over a pluggable Backend, implementing
// dual sliding-window semantics: a request is allowed iff both the
// per-minute and per-hour windows admit it; remaining reports the tighter
// window; reset_at_ms derives from the oldest in-window record.
type backendLimiter struct {
	backend Backend
}

// NewLimiter wraps a Backend with the dual-window policy.
func NewLimiter(backend Backend) Limiter {
	return &backendLimiter{backend: backend}
}

func (l *backendLimiter) CheckLimit(ctx context.Context, agent, endpoint string) (Decision, error) {
	limits := resolveLimits(endpoint)
	now := time.Now()

	minuteCount, minuteOldest, err := l.backend.CountSince(ctx, agent, endpoint, now.Add(-time.Minute))
	if err != nil {
		return Decision{}, swarmerr.Wrap(swarmerr.SubsystemUnavailable, "ratelimit.CheckLimit", agent+"/"+endpoint, "backend unreachable", err)
	}
	hourCount, hourOldest, err := l.backend.CountSince(ctx, agent, endpoint, now.Add(-time.Hour))
	if err != nil {
		return Decision{}, swarmerr.Wrap(swarmerr.SubsystemUnavailable, "ratelimit.CheckLimit", agent+"/"+endpoint, "backend unreachable", err)
	}

	minuteRemaining := limits.PerMinute - minuteCount
	hourRemaining := limits.PerHour - hourCount

	allowed := minuteRemaining > 0 && hourRemaining > 0

	remaining := minuteRemaining
	resetAt := minuteOldest.Add(time.Minute)
	if hourRemaining < minuteRemaining {
		remaining = hourRemaining
		resetAt = hourOldest.Add(time.Hour)
	}
	if remaining < 0 {
		remaining = 0
	}

	decision := Decision{Allowed: allowed, Remaining: remaining}
	if !resetAt.IsZero() {
		decision.ResetAtMs = resetAt.UnixMilli()
	}

	if !allowed {
		logging.RateLimitDebug("rate limited agent=%s endpoint=%s minute=%d/%d hour=%d/%d",
			agent, endpoint, minuteCount, limits.PerMinute, hourCount, limits.PerHour)
	}

	return decision, nil
}

func (l *backendLimiter) RecordRequest(ctx context.Context, agent, endpoint string) error {
	if err := l.backend.Record(ctx, agent, endpoint, time.Now()); err != nil {
		return swarmerr.Wrap(swarmerr.SubsystemUnavailable, "ratelimit.RecordRequest", agent+"/"+endpoint, "backend unreachable", err)
	}
	return nil
}
