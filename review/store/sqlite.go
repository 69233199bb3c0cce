package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/mozart/review"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file review.OutcomeStore backed by
// modernc.org/sqlite (no cgo).
//
// Each outcome is one row: the session id, mode and timestamps as columns
// for listing, and the full Record as JSON.
//
//	st, err := store.NewSQLiteStore("./mozart.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	outcomes := `
		CREATE TABLE IF NOT EXISTS review_outcomes (
			session_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			record TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, outcomes); err != nil {
		return fmt.Errorf("failed to create review_outcomes table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_outcomes_completed ON review_outcomes(completed_at)"); err != nil {
		return fmt.Errorf("failed to create idx_outcomes_completed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveOutcome inserts or replaces the record for rec.SessionID.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, rec review.Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO review_outcomes (session_id, mode, started_at, completed_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			mode = excluded.mode,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			record = excluded.record
	`
	_, err = s.db.ExecContext(ctx, query, rec.SessionID, rec.Mode,
		rec.StartedAt.UnixNano(), rec.CompletedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// LoadOutcome returns the record for sessionID or review.ErrRecordNotFound.
func (s *SQLiteStore) LoadOutcome(ctx context.Context, sessionID string) (review.Record, error) {
	if err := s.checkOpen(); err != nil {
		return review.Record{}, err
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM review_outcomes WHERE session_id = ?", sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Record{}, review.ErrRecordNotFound
	}
	if err != nil {
		return review.Record{}, fmt.Errorf("failed to load outcome: %w", err)
	}
	return decodeRecord(data)
}

// ListOutcomes returns records most recently completed first.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, limit int) ([]review.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	query := "SELECT record FROM review_outcomes ORDER BY completed_at DESC, session_id DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return scanRecords(rows)
}

// scanRecords decodes a single-column result set of record JSON and closes rows.
func scanRecords(rows *sql.Rows) ([]review.Record, error) {
	defer func() { _ = rows.Close() }()

	var out []review.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return out, nil
}

// Close closes the database. Calling Close twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
