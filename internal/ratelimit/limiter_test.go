package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestCheckLimit_AllowsUpToPerMinuteCap(t *testing.T) {
	t.Setenv("OPENCODE_RATE_LIMIT_TESTEP_PER_MIN", "3")
	t.Setenv("OPENCODE_RATE_LIMIT_TESTEP_PER_HOUR", "1000")

	l := NewLimiter(NewMemoryBackend())
	ctx := context.Background()

	allowedCount := 0
	for i := 0; i < 5; i++ {
		decision, err := l.CheckLimit(ctx, "agent-1", "testep")
		if err != nil {
			t.Fatalf("CheckLimit() error = %v", err)
		}
		if decision.Allowed {
			allowedCount++
			if err := l.RecordRequest(ctx, "agent-1", "testep"); err != nil {
				t.Fatalf("RecordRequest() error = %v", err)
			}
		} else {
			if decision.Remaining != 0 {
				t.Errorf("expected remaining=0 when disallowed, got %d", decision.Remaining)
			}
		}
	}

	if allowedCount != 3 {
		t.Errorf("expected exactly 3 allowed requests (per-minute cap), got %d", allowedCount)
	}
}

func TestCheckLimit_IndependentAgentsIndependentCounters(t *testing.T) {
	t.Setenv("OPENCODE_RATE_LIMIT_ISOLATED_PER_MIN", "1")
	t.Setenv("OPENCODE_RATE_LIMIT_ISOLATED_PER_HOUR", "1000")

	l := NewLimiter(NewMemoryBackend())
	ctx := context.Background()

	_ = l.RecordRequest(ctx, "agent-a", "isolated")

	decisionA, _ := l.CheckLimit(ctx, "agent-a", "isolated")
	if decisionA.Allowed {
		t.Error("expected agent-a to be rate limited after hitting cap")
	}

	decisionB, _ := l.CheckLimit(ctx, "agent-b", "isolated")
	if !decisionB.Allowed {
		t.Error("expected agent-b to have an independent counter")
	}
}

func TestCheckLimit_ResetAtMsDerivedFromOldest(t *testing.T) {
	t.Setenv("OPENCODE_RATE_LIMIT_RESETEP_PER_MIN", "1")
	t.Setenv("OPENCODE_RATE_LIMIT_RESETEP_PER_HOUR", "1000")

	backend := NewMemoryBackend()
	l := NewLimiter(backend)
	ctx := context.Background()

	before := time.Now()
	_ = l.RecordRequest(ctx, "agent-1", "resetep")

	decision, err := l.CheckLimit(ctx, "agent-1", "resetep")
	if err != nil {
		t.Fatalf("CheckLimit() error = %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected request to be denied after hitting per-minute cap")
	}
	wantMax := before.Add(time.Minute).UnixMilli()
	if decision.ResetAtMs > wantMax+1000 {
		t.Errorf("expected reset_at_ms <= oldest+60000ms, got %d want<=%d", decision.ResetAtMs, wantMax)
	}
}

func TestResolveLimits_FallsBackOnInvalidEnv(t *testing.T) {
	t.Setenv("OPENCODE_RATE_LIMIT_BADEP_PER_MIN", "not-a-number")

	limits := resolveLimits("badep")
	if limits.PerMinute != DefaultLimits.PerMinute {
		t.Errorf("expected fallback to default PerMinute=%d, got %d", DefaultLimits.PerMinute, limits.PerMinute)
	}
}
