package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/mozart/review"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore is a review.OutcomeStore backed by MySQL or MariaDB, for
// history shared between several mozart processes.
//
// The DSN format is the go-sql-driver one:
//
//	user:password@tcp(localhost:3306)/mozart
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to dsn, verifies the connection and creates the
// schema if needed.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	outcomes := `
		CREATE TABLE IF NOT EXISTS review_outcomes (
			session_id VARCHAR(64) NOT NULL PRIMARY KEY,
			mode VARCHAR(16) NOT NULL,
			started_at BIGINT NOT NULL,
			completed_at BIGINT NOT NULL,
			record JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_outcomes_completed (completed_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, outcomes); err != nil {
		return fmt.Errorf("failed to create review_outcomes table: %w", err)
	}
	return nil
}

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveOutcome inserts or replaces the record for rec.SessionID.
func (m *MySQLStore) SaveOutcome(ctx context.Context, rec review.Record) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO review_outcomes (session_id, mode, started_at, completed_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			mode = VALUES(mode),
			started_at = VALUES(started_at),
			completed_at = VALUES(completed_at),
			record = VALUES(record)
	`
	_, err = m.db.ExecContext(ctx, query, rec.SessionID, rec.Mode,
		rec.StartedAt.UnixNano(), rec.CompletedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// LoadOutcome returns the record for sessionID or review.ErrRecordNotFound.
func (m *MySQLStore) LoadOutcome(ctx context.Context, sessionID string) (review.Record, error) {
	if err := m.checkOpen(); err != nil {
		return review.Record{}, err
	}

	var data string
	err := m.db.QueryRowContext(ctx,
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
func (m *MySQLStore) ListOutcomes(ctx context.Context, limit int) ([]review.Record, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	query := "SELECT record FROM review_outcomes ORDER BY completed_at DESC, session_id DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return scanRecords(rows)
}

// Close closes the connection pool. Calling Close twice is a no-op.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}
