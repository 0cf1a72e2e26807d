package reservation

import (
	"context"
	"testing"
	"time"
)

func TestReserve_AlwaysGrantsEvenOnConflict(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, err := r.Reserve(ctx, "proj-1", "agent-a", []string{"src/x.ts"}, time.Minute, true, "working on x")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	result, err := r.Reserve(ctx, "proj-1", "agent-b", []string{"src/x.ts"}, time.Minute, true, "also working on x")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	if len(result.Granted) != 1 {
		t.Errorf("expected 1 grant, got %d", len(result.Granted))
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(result.Conflicts))
	}
	if len(result.Conflicts[0].Holders) != 1 || result.Conflicts[0].Holders[0].Agent != "agent-a" {
		t.Errorf("expected agent-a listed as holder, got %+v", result.Conflicts[0].Holders)
	}
}

func TestReserve_SharedReservationsDoNotConflict(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, _ = r.Reserve(ctx, "proj-1", "agent-a", []string{"src/y.ts"}, time.Minute, false, "")
	result, err := r.Reserve(ctx, "proj-1", "agent-b", []string{"src/y.ts"}, time.Minute, false, "")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("expected no conflict between two shared reservations, got %d", len(result.Conflicts))
	}
}

func TestReserve_SharedConflictsWithExclusive(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, _ = r.Reserve(ctx, "proj-1", "agent-a", []string{"src/z.ts"}, time.Minute, true, "")
	result, _ := r.Reserve(ctx, "proj-1", "agent-b", []string{"src/z.ts"}, time.Minute, false, "")

	if len(result.Conflicts) != 1 {
		t.Errorf("expected shared request to conflict with existing exclusive, got %d", len(result.Conflicts))
	}
}

func TestReserve_SameAgentNoSelfConflict(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, _ = r.Reserve(ctx, "proj-1", "agent-a", []string{"src/w.ts"}, time.Minute, true, "")
	result, _ := r.Reserve(ctx, "proj-1", "agent-a", []string{"src/w.ts"}, time.Minute, true, "")

	if len(result.Conflicts) != 0 {
		t.Errorf("expected no self-conflict for the same agent, got %d", len(result.Conflicts))
	}
}

func TestRelease_AllForAgent(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, _ = r.Reserve(ctx, "proj-1", "agent-a", []string{"a.ts", "b.ts"}, time.Minute, true, "")

	result, err := r.Release(ctx, "proj-1", "agent-a", nil)
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if result.Released != 2 {
		t.Errorf("expected 2 released, got %d", result.Released)
	}

	// idempotent: releasing again releases nothing further
	result2, err := r.Release(ctx, "proj-1", "agent-a", nil)
	if err != nil {
		t.Fatalf("Release() second call error = %v", err)
	}
	if result2.Released != 0 {
		t.Errorf("expected 0 released on repeat call, got %d", result2.Released)
	}
}

func TestReserve_ExpiredReservationTreatedAsAbsent(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, _ = r.Reserve(ctx, "proj-1", "agent-a", []string{"src/x.ts"}, -time.Second, true, "")

	result, err := r.Reserve(ctx, "proj-1", "agent-b", []string{"src/x.ts"}, time.Minute, true, "")
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("expected no conflict with an already-expired reservation, got %d", len(result.Conflicts))
	}
}

func TestOverlaps_GlobConservativeOverapproximation(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"src/x.ts", "src/x.ts", true},
		{"src/x.ts", "src/y.ts", false},
		{"src/*.ts", "src/x.ts", true},
		{"src/*.ts", "lib/*.ts", true}, // conservative: both non-trivial globs
	}
	for _, c := range cases {
		if got := overlaps(c.a, c.b); got != c.want {
			t.Errorf("overlaps(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestSweep_RemovesExpired(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	_, _ = r.Reserve(ctx, "proj-1", "agent-a", []string{"x.ts"}, -time.Second, true, "")
	_, _ = r.Reserve(ctx, "proj-2", "agent-b", []string{"y.ts"}, time.Minute, true, "")

	swept := r.Sweep(ctx)
	if swept != 1 {
		t.Errorf("expected 1 swept reservation, got %d", swept)
	}
}
