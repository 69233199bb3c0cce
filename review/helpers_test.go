package review

import (
	"testing"
)

func mustRequest(t testing.TB, mode Mode, criteria ...CriterionID) ReviewRequest {
	t.Helper()
	if len(criteria) == 0 {
		criteria = []CriterionID{Correctness, Security}
	}
	req, err := NewReviewRequest(RequestParams{
		Code:     "func add(a, b int) int { return a + b }",
		Goal:     "review the adder",
		Criteria: criteria,
		Mode:     mode,
	})
	if err != nil {
		t.Fatalf("NewReviewRequest: %v", err)
	}
	return req
}

// scoredBackend returns a mock whose scores per criterion come from scores.
func scoredBackend(id string, scores map[CriterionID]int, suggestions ...string) *MockBackend {
	return &MockBackend{
		BackendID: id,
		ResultFunc: func(req ReviewRequest) ReviewerResult {
			out := make(map[CriterionID]CriterionScore)
			for _, c := range req.Criteria() {
				out[c] = CriterionScore{Score: scores[c], Rationale: id + " on " + string(c), Suggestions: suggestions}
			}
			return ReviewerResult{Criteria: out, Model: "mock-1"}
		},
	}
}
