// Package sqlitebus is the durable message bus adapter: a SQLite-backed
// store with an index on message_recipients(project_key, recipient,
// message_id) and a secondary fts5 index over (subject, body). The
// recipient index does not include created_at, which lives only on the
// messages table.
package sqlitebus

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swarmcore/internal/logging"
)

// Store persists messages durably for the Message Bus.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at path, applying WAL pragmas
// tuned for single-writer durability.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryBus, "sqlitebus.Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.BusDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.BusDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.BusDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			project_key TEXT NOT NULL,
			sender TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			thread_id TEXT,
			importance TEXT NOT NULL,
			ack_required INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS message_recipients (
			message_id TEXT NOT NULL,
			recipient TEXT NOT NULL,
			project_key TEXT NOT NULL,
			read_at INTEGER,
			ack_at INTEGER,
			PRIMARY KEY (message_id, recipient)
		);
		CREATE INDEX IF NOT EXISTS idx_recipient_created
			ON message_recipients(project_key, recipient, message_id);
		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			message_id UNINDEXED, subject, body
		);
	`)
	return err
}

// InsertMessage persists a message and its per-recipient delivery rows,
// plus an fts5 row for search_messages.
func (s *Store) InsertMessage(id, projectKey, sender, subject, body, threadID, importance string, ackRequired bool, recipients []string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ackInt := 0
	if ackRequired {
		ackInt = 1
	}
	if _, err := tx.Exec(
		`INSERT INTO messages (id, project_key, sender, subject, body, thread_id, importance, ack_required, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectKey, sender, subject, body, threadID, importance, ackInt, createdAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, r := range recipients {
		if _, err := tx.Exec(
			`INSERT INTO message_recipients (message_id, recipient, project_key) VALUES (?, ?, ?)`,
			id, r, projectKey,
		); err != nil {
			return fmt.Errorf("insert recipient %s: %w", r, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO messages_fts (message_id, subject, body) VALUES (?, ?, ?)`,
		id, subject, body,
	); err != nil {
		return fmt.Errorf("insert fts row: %w", err)
	}

	return tx.Commit()
}

// MarkRead sets the read_at timestamp for (messageID, recipient) if not
// already set, preserving (M1) monotonic non-decreasing semantics.
func (s *Store) MarkRead(messageID, recipient string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE message_recipients SET read_at = ? WHERE message_id = ? AND recipient = ? AND read_at IS NULL`,
		at.UnixMilli(), messageID, recipient,
	)
	return err
}

// MarkAck sets the ack_at timestamp for (messageID, recipient) if not
// already set.
func (s *Store) MarkAck(messageID, recipient string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE message_recipients SET ack_at = ? WHERE message_id = ? AND recipient = ? AND ack_at IS NULL`,
		at.UnixMilli(), messageID, recipient,
	)
	return err
}

// SearchIDs returns message ids matching an fts5 query, most recent first.
func (s *Store) SearchIDs(projectKey, query string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT m.id FROM messages_fts f
		JOIN messages m ON m.id = f.message_id
		WHERE messages_fts MATCH ? AND m.project_key = ?
		ORDER BY m.created_at DESC
		LIMIT ?`, query, projectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
