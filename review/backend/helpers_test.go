package backend

import (
	"testing"

	"github.com/dshills/mozart/review"
)

func mustRequest(t *testing.T, mode review.Mode, criteria ...review.CriterionID) review.ReviewRequest {
	t.Helper()
	req, err := review.NewReviewRequest(review.RequestParams{
		Code:     "func add(a, b int) int { return a + b }",
		Goal:     "add two integers",
		Context:  "hot path",
		Criteria: criteria,
		Mode:     mode,
	})
	if err != nil {
		t.Fatalf("NewReviewRequest: %v", err)
	}
	return req
}
