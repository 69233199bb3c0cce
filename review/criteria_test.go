package review

import (
	"errors"
	"testing"
)

// TestParseCriterion verifies user spellings normalize to catalog ids.
func TestParseCriterion(t *testing.T) {
	tests := []struct {
		in      string
		want    CriterionID
		wantErr bool
	}{
		{"correctness", Correctness, false},
		{"Error Handling", ErrorHandling, false},
		{"error-handling", ErrorHandling, false},
		{"  SECURITY ", Security, false},
		{"style", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCriterion(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCriterion(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCriterion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestCatalog verifies every catalog entry is valid and described.
func TestCatalog(t *testing.T) {
	ids := Catalog()
	if len(ids) != 11 {
		t.Fatalf("len(Catalog()) = %d, want 11", len(ids))
	}
	for _, c := range ids {
		if !c.Valid() {
			t.Errorf("%q not valid", c)
		}
		if c.Description() == "" {
			t.Errorf("%q has no description", c)
		}
	}
	if got := ErrorHandling.Title(); got != "Error Handling" {
		t.Errorf("Title() = %q, want %q", got, "Error Handling")
	}
	if CriterionID("nope").Description() != "" {
		t.Error("unknown criterion should have empty description")
	}
}

// TestNewReviewRequest verifies validation and catalog ordering.
func TestNewReviewRequest(t *testing.T) {
	t.Run("orders criteria", func(t *testing.T) {
		req, err := NewReviewRequest(RequestParams{
			Code:     "x := 1",
			Criteria: []CriterionID{Design, Correctness, Testing},
			Mode:     ModeFull,
		})
		if err != nil {
			t.Fatal(err)
		}
		got := req.Criteria()
		want := []CriterionID{Correctness, Testing, Design}
		if len(got) != len(want) {
			t.Fatalf("Criteria() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Criteria()[%d] = %q, want %q", i, got[i], want[i])
			}
		}
		got[0] = Security
		if req.Criteria()[0] != Correctness {
			t.Error("Criteria() must return a copy")
		}
	})

	invalid := []struct {
		name string
		p    RequestParams
	}{
		{"empty code", RequestParams{Code: "  ", Criteria: []CriterionID{Correctness}}},
		{"no criteria", RequestParams{Code: "x"}},
		{"unknown criterion", RequestParams{Code: "x", Criteria: []CriterionID{"style"}}},
		{"duplicate criterion", RequestParams{Code: "x", Criteria: []CriterionID{Security, Security}}},
		{"bad mode", RequestParams{Code: "x", Criteria: []CriterionID{Security}, Mode: Mode(7)}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReviewRequest(tt.p)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
			var sf *SessionFailure
			if !errors.As(err, &sf) || sf.Kind != InvalidRequest {
				t.Errorf("err = %#v, want *SessionFailure{InvalidRequest}", err)
			}
		})
	}
}

// TestParseMode verifies mode parsing round-trips String.
func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeFast, ModeFull} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("slow"); err == nil {
		t.Error("ParseMode(slow) should fail")
	}
}
