package review

import (
	"fmt"
	"time"
)

// Status is the terminal status of one reviewer call.
type Status int

const (
	StatusOK Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timed_out"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "ok":
		return StatusOK, nil
	case "timed_out":
		return StatusTimedOut, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusFailed, fmt.Errorf("unknown status %q", s)
	}
}

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// CriterionScore is one reviewer's assessment of one criterion.
type CriterionScore struct {
	Score       int
	Rationale   string
	Suggestions []string
}

// TokenUsage counts tokens consumed by one provider call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ReviewerResult is the normalized reply of one reviewer backend.
//
// For results that reach an Outcome, Criteria holds exactly the requested
// criteria, every Score is in [MinScore, MaxScore], and OverallScore equals
// ComputeOverall over those criteria.
type ReviewerResult struct {
	ReviewerID   string
	DisplayName  string
	ProviderName string
	Model        string

	Criteria     map[CriterionID]CriterionScore
	OverallScore int

	Summary string
	// Grade is "approve", "revise" or empty.
	Grade string

	Latency time.Duration
	Status  Status
	Reason  string

	// Warnings lists non-fatal normalization notes (rounded or clamped
	// scores and similar).
	Warnings []string

	Usage TokenUsage
}

// Suggestions returns the result's suggestions in criterion catalog order.
func (r ReviewerResult) Suggestions(criteria []CriterionID) []string {
	var out []string
	for _, c := range criteria {
		out = append(out, r.Criteria[c].Suggestions...)
	}
	return out
}

// ComputeOverall returns the unweighted mean of the scores for criteria,
// rounded half-up. Missing criteria count as zero. It returns 0 for an empty
// criteria list.
func ComputeOverall(scores map[CriterionID]CriterionScore, criteria []CriterionID) int {
	n := len(criteria)
	if n == 0 {
		return 0
	}
	sum := 0
	for _, c := range criteria {
		sum += scores[c].Score
	}
	return roundHalfUpDiv(sum, n)
}

// roundHalfUpDiv computes round(sum/n) with halves rounded up, for n > 0.
func roundHalfUpDiv(sum, n int) int {
	num := 2*sum + n
	den := 2 * n
	q := num / den
	if num%den != 0 && num < 0 {
		q--
	}
	return q
}

// ClampScore bounds v to [MinScore, MaxScore] and reports whether it moved.
func ClampScore(v int) (int, bool) {
	switch {
	case v < MinScore:
		return MinScore, true
	case v > MaxScore:
		return MaxScore, true
	default:
		return v, false
	}
}
