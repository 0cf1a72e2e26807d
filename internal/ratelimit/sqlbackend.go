package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swarmcore/internal/logging"
)

// cleanupSampleRate is the probability that a write triggers opportunistic
// cleanup of expired rows.
const cleanupSampleRate = 0.02

// cleanupBatchSize and cleanupMaxBatches bound opportunistic cleanup cost:
// at most cleanupBatchSize rows deleted per batch, at most cleanupMaxBatches
// batches per invocation.
const (
	cleanupBatchSize  = 1000
	cleanupMaxBatches = 10
)

// sqlBackend is the local-persistent Backend, a tabular
// (agent,endpoint,ts) table with an index on that tuple, opened with WAL
// pragmas for single-writer durability. Rows carry no window column: both
// the minute and the hour window are counted from the same rows by ts.
type sqlBackend struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLBackend opens (or creates) a SQLite-backed rate-limit table at path.
func NewSQLBackend(path string) (Backend, error) {
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
		logging.RateLimitDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.RateLimitDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.RateLimitDebug("failed to set synchronous=NORMAL: %v", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_hits (
			agent TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			ts INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rate_limit_lookup
			ON rate_limit_hits(agent, endpoint, ts);
	`); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &sqlBackend{db: db}, nil
}

func (s *sqlBackend) Record(ctx context.Context, agent, endpoint string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_hits (agent, endpoint, ts) VALUES (?, ?, ?)`,
		agent, endpoint, ts.UnixMilli(),
	); err != nil {
		return fmt.Errorf("record hit: %w", err)
	}

	if rand.Float64() < cleanupSampleRate {
		s.cleanup(ctx)
	}
	return nil
}

func (s *sqlBackend) CountSince(ctx context.Context, agent, endpoint string, since time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(ts) FROM rate_limit_hits WHERE agent = ? AND endpoint = ? AND ts >= ?`,
		agent, endpoint, since.UnixMilli(),
	)

	var count int
	var minTS sql.NullInt64
	if err := row.Scan(&count, &minTS); err != nil {
		return 0, time.Time{}, fmt.Errorf("count since: %w", err)
	}

	var oldest time.Time
	if minTS.Valid {
		oldest = time.UnixMilli(minTS.Int64)
	}
	return count, oldest, nil
}

// cleanup deletes rows older than the larger (hour) window, in bounded
// batches, opportunistically on a sampled fraction of writes.
func (s *sqlBackend) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-time.Hour).UnixMilli()

	for i := 0; i < cleanupMaxBatches; i++ {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM rate_limit_hits WHERE rowid IN (
				SELECT rowid FROM rate_limit_hits WHERE ts < ? LIMIT ?
			)`, cutoff, cleanupBatchSize)
		if err != nil {
			logging.RateLimitWarn("opportunistic cleanup failed: %v", err)
			return
		}
		n, _ := res.RowsAffected()
		if n < cleanupBatchSize {
			return
		}
	}
}

// Close releases the underlying database handle.
func (s *sqlBackend) Close() error {
	return s.db.Close()
}
