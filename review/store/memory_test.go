package store

import (
	"context"
	"testing"

	"github.com/dshills/mozart/review"
)

// TestMemStore verifies MemStore satisfies the OutcomeStore contract.
func TestMemStore(t *testing.T) {
	testOutcomeStore(t, func(t *testing.T) review.OutcomeStore {
		return NewMemStore()
	})
}

// TestMemStore_Isolation verifies callers cannot mutate stored records.
func TestMemStore_Isolation(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()
	rec := sampleRecord("s-1", 0)
	if err := st.SaveOutcome(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Criteria[0] = "mutated"

	got, _ := st.LoadOutcome(ctx, "s-1")
	if got.Criteria[0] != "correctness" {
		t.Errorf("stored record was mutated: %v", got.Criteria)
	}
	got.Criteria[1] = "mutated"
	again, _ := st.LoadOutcome(ctx, "s-1")
	if again.Criteria[1] != "security" {
		t.Errorf("loaded record shares storage: %v", again.Criteria)
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
}

// TestOpen verifies dsn dispatch.
func TestOpen(t *testing.T) {
	for _, dsn := range []string{"", "memory"} {
		st, err := Open(dsn)
		if err != nil {
			t.Fatalf("Open(%q): %v", dsn, err)
		}
		if _, ok := st.(*MemStore); !ok {
			t.Errorf("Open(%q) = %T, want *MemStore", dsn, st)
		}
	}

	st, err := Open("sqlite::memory:")
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite::memory:) = %T", st)
	}

	if _, err := Open("postgres://localhost/x"); err == nil {
		t.Error("expected error for unsupported dsn")
	}
}
