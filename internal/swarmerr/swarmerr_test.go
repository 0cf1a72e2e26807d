package swarmerr

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	e := New(NotFound, "cell.Get", "proj-abc.2", "cell does not exist").
		WithRemedy("use query(status=open) to list valid ids")

	msg := e.Error()
	for _, want := range []string{"cell.Get", "proj-abc.2", "cell does not exist", "use query"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error message to contain %q, got: %s", want, msg)
		}
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(SubsystemUnavailable, "bus.Send", "", "backend unreachable", cause)

	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
	if errors.Unwrap(e) != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestKindOf(t *testing.T) {
	e := New(RateLimited, "ratelimit.Check", "agent-1/endpoint-x", "limit exceeded")

	kind, ok := KindOf(e)
	if !ok || kind != RateLimited {
		t.Errorf("expected KindOf to return RateLimited, got %v, %v", kind, ok)
	}

	if !IsKind(e, RateLimited) {
		t.Error("expected IsKind(RateLimited) to be true")
	}
	if IsKind(e, Conflict) {
		t.Error("expected IsKind(Conflict) to be false")
	}

	if _, ok := KindOf(errors.New("plain error")); ok {
		t.Error("expected KindOf on a plain error to return false")
	}
}

func TestError_Is(t *testing.T) {
	a := New(Conflict, "reservation.Reserve", "src/x.ts", "exclusive conflict")
	b := New(Conflict, "bus.RegisterAgent", "agent-1", "duplicate name")
	c := New(NotFound, "cell.Get", "proj-1", "missing")

	if !errors.Is(a, b) {
		t.Error("expected two Conflict-kind errors to satisfy errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("expected Conflict and NotFound errors not to satisfy errors.Is")
	}
}
