package sqlitebus

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bus.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndSearch(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	if err := s.InsertMessage("m1", "proj-1", "alice", "database migration", "running it now", "", "normal", false, []string{"bob"}, now); err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}
	if err := s.InsertMessage("m2", "proj-1", "alice", "unrelated", "nothing here", "", "normal", false, []string{"bob"}, now.Add(time.Second)); err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}

	ids, err := s.SearchIDs("proj-1", "migration", 10)
	if err != nil {
		t.Fatalf("SearchIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "m1" {
		t.Errorf("expected [m1], got %v", ids)
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	if err := s.InsertMessage("m1", "proj-1", "alice", "s", "b", "", "normal", false, []string{"bob"}, now); err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}

	t1 := now.Add(time.Minute)
	if err := s.MarkRead("m1", "bob", t1); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	t2 := now.Add(2 * time.Minute)
	if err := s.MarkRead("m1", "bob", t2); err != nil {
		t.Fatalf("MarkRead() second call error = %v", err)
	}

	var readAt int64
	row := s.db.QueryRow(`SELECT read_at FROM message_recipients WHERE message_id = ? AND recipient = ?`, "m1", "bob")
	if err := row.Scan(&readAt); err != nil {
		t.Fatalf("scan read_at: %v", err)
	}
	if readAt != t1.UnixMilli() {
		t.Errorf("expected read_at to stay at first mark (%d), got %d", t1.UnixMilli(), readAt)
	}
}
