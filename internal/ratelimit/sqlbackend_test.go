package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLBackend_RecordAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratelimit.db")
	backend, err := NewSQLBackend(path)
	if err != nil {
		t.Fatalf("NewSQLBackend() error = %v", err)
	}
	defer backend.(*sqlBackend).Close()

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		if err := backend.Record(ctx, "agent-1", "ep", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	count, oldest, err := backend.CountSince(ctx, "agent-1", "ep", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if count != 5 {
		t.Errorf("expected count=5, got %d", count)
	}
	if oldest.Unix() != now.Unix() {
		t.Errorf("expected oldest ~= now, got %v vs %v", oldest, now)
	}
}

func TestSQLBackend_CountSinceExcludesOlder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratelimit.db")
	backend, err := NewSQLBackend(path)
	if err != nil {
		t.Fatalf("NewSQLBackend() error = %v", err)
	}
	defer backend.(*sqlBackend).Close()

	ctx := context.Background()
	now := time.Now()

	_ = backend.Record(ctx, "agent-1", "ep", now.Add(-2*time.Hour))
	_ = backend.Record(ctx, "agent-1", "ep", now)

	count, _, err := backend.CountSince(ctx, "agent-1", "ep", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if count != 1 {
		t.Errorf("expected count=1 (only the recent hit), got %d", count)
	}
}
