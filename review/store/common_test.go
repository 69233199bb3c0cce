package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dshills/mozart/review"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sampleRecord builds a record completed offset after baseTime.
func sampleRecord(id string, offset time.Duration) review.Record {
	return review.Record{
		SessionID: id,
		Mode:      "fast",
		Criteria:  []string{"correctness", "security"},
		Reviewers: []review.ReviewerRecord{{
			ReviewerID: "a",
			Provider:   "openai",
			Model:      "gpt-4o",
			Criteria: []review.CriterionRecord{
				{Criterion: "correctness", Score: 90, Rationale: "ok", Suggestions: []string{"add tests"}},
				{Criterion: "security", Score: 70, Rationale: "meh", Suggestions: []string{}},
			},
			OverallScore: 80,
			Latency:      "1.5s",
			Status:       "ok",
			Warnings:     []string{},
			InputTokens:  100,
			OutputTokens: 20,
		}},
		Failures:    []review.FailureRecord{{ReviewerID: "b", Kind: "timeout", Detail: "no reply within 60s", Latency: "1m0s"}},
		Comparison:  []review.ComparisonRecord{},
		Leader:      "a",
		Degraded:    true,
		StartedAt:   baseTime.Add(offset - time.Second),
		CompletedAt: baseTime.Add(offset),
	}
}

// testOutcomeStore runs the OutcomeStore contract against a fresh store.
func testOutcomeStore(t *testing.T, newStore func(t *testing.T) review.OutcomeStore) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		st := newStore(t)
		want := sampleRecord("s-1", 0)
		if err := st.SaveOutcome(ctx, want); err != nil {
			t.Fatalf("SaveOutcome: %v", err)
		}
		got, err := st.LoadOutcome(ctx, "s-1")
		if err != nil {
			t.Fatalf("LoadOutcome: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("LoadOutcome mismatch\ngot:  %+v\nwant: %+v", got, want)
		}
	})

	t.Run("not found", func(t *testing.T) {
		st := newStore(t)
		if _, err := st.LoadOutcome(ctx, "missing"); !errors.Is(err, review.ErrRecordNotFound) {
			t.Errorf("err = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		st := newStore(t)
		rec := sampleRecord("s-1", 0)
		_ = st.SaveOutcome(ctx, rec)
		rec.Solution = "patched"
		if err := st.SaveOutcome(ctx, rec); err != nil {
			t.Fatalf("SaveOutcome: %v", err)
		}
		got, err := st.LoadOutcome(ctx, "s-1")
		if err != nil {
			t.Fatalf("LoadOutcome: %v", err)
		}
		if got.Solution != "patched" {
			t.Errorf("Solution = %q, want patched", got.Solution)
		}
		all, _ := st.ListOutcomes(ctx, 0)
		if len(all) != 1 {
			t.Errorf("ListOutcomes len = %d, want 1", len(all))
		}
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		st := newStore(t)
		for i, id := range []string{"s-1", "s-3", "s-2"} {
			offset := map[string]time.Duration{"s-1": time.Minute, "s-2": 2 * time.Minute, "s-3": 3 * time.Minute}[id]
			if err := st.SaveOutcome(ctx, sampleRecord(id, offset)); err != nil {
				t.Fatalf("SaveOutcome %d: %v", i, err)
			}
		}
		got, err := st.ListOutcomes(ctx, 2)
		if err != nil {
			t.Fatalf("ListOutcomes: %v", err)
		}
		var ids []string
		for _, r := range got {
			ids = append(ids, r.SessionID)
		}
		if want := []string{"s-3", "s-2"}; !reflect.DeepEqual(ids, want) {
			t.Errorf("ids = %v, want %v", ids, want)
		}
	})

	t.Run("empty session id", func(t *testing.T) {
		st := newStore(t)
		if err := st.SaveOutcome(ctx, review.Record{}); err == nil {
			t.Error("expected error for record without session id")
		}
	})

	t.Run("concurrent saves", func(t *testing.T) {
		st := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := st.SaveOutcome(ctx, sampleRecord(fmt.Sprintf("c-%02d", i), time.Duration(i)*time.Second)); err != nil {
					t.Errorf("SaveOutcome: %v", err)
				}
			}(i)
		}
		wg.Wait()
		all, err := st.ListOutcomes(ctx, 0)
		if err != nil {
			t.Fatalf("ListOutcomes: %v", err)
		}
		if len(all) != 10 {
			t.Errorf("len = %d, want 10", len(all))
		}
	})

	t.Run("closed", func(t *testing.T) {
		st := newStore(t)
		if err := st.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := st.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
		if err := st.SaveOutcome(ctx, sampleRecord("s-1", 0)); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("SaveOutcome after Close = %v, want ErrStoreClosed", err)
		}
	})
}
