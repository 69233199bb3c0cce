package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dshills/mozart/review"
)

// TestNewMySQLStore_InvalidDSN verifies DSN errors surface before any
// network access.
func TestNewMySQLStore_InvalidDSN(t *testing.T) {
	if _, err := NewMySQLStore("not a dsn"); err == nil {
		t.Error("expected error for invalid DSN")
	}
}

// TestMySQLStore runs the OutcomeStore contract against a real server.
//
// Set TEST_MYSQL_DSN, e.g. "user:password@tcp(localhost:3306)/mozart_test".
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL test: set TEST_MYSQL_DSN to run")
	}

	testOutcomeStore(t, func(t *testing.T) review.OutcomeStore {
		st, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("NewMySQLStore: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := st.db.ExecContext(ctx, "DELETE FROM review_outcomes"); err != nil {
			t.Fatalf("reset table: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}
