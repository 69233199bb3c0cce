package review

import (
	"fmt"
	"sort"
	"strings"
)

// Mode selects the arbitration algorithm.
type Mode int

const (
	// ModeFast returns reviewer results side by side.
	ModeFast Mode = iota
	// ModeFull reconciles reviewer results through a judge backend.
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "fast" or "full" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return ModeFast, nil
	case "full":
		return ModeFull, nil
	default:
		return ModeFast, fmt.Errorf("unknown mode %q (want fast or full)", s)
	}
}

// RequestParams are the inputs to NewReviewRequest.
type RequestParams struct {
	Code     string
	Goal     string
	Context  string
	Criteria []CriterionID
	Mode     Mode

	// Solution asks for an improved final answer after arbitration.
	// Requires a solver backend in the SessionConfig.
	Solution bool
}

// ReviewRequest is an immutable review request. Build one with
// NewReviewRequest.
type ReviewRequest struct {
	code     string
	goal     string
	context  string
	criteria []CriterionID
	mode     Mode
	solution bool
}

// NewReviewRequest validates p and returns a ReviewRequest.
//
// Criteria are kept in catalog order. An empty code payload, an empty or
// repeated criterion set, or an unknown criterion returns a *SessionFailure
// of kind InvalidRequest.
func NewReviewRequest(p RequestParams) (ReviewRequest, error) {
	if strings.TrimSpace(p.Code) == "" {
		return ReviewRequest{}, invalidRequest("code payload is empty")
	}
	if len(p.Criteria) == 0 {
		return ReviewRequest{}, invalidRequest("criteria set is empty")
	}
	if p.Mode != ModeFast && p.Mode != ModeFull {
		return ReviewRequest{}, invalidRequest(fmt.Sprintf("unknown mode %d", int(p.Mode)))
	}

	seen := make(map[CriterionID]bool, len(p.Criteria))
	criteria := make([]CriterionID, 0, len(p.Criteria))
	for _, c := range p.Criteria {
		if !c.Valid() {
			return ReviewRequest{}, invalidRequest(fmt.Sprintf("unknown criterion %q", c))
		}
		if seen[c] {
			return ReviewRequest{}, invalidRequest(fmt.Sprintf("duplicate criterion %q", c))
		}
		seen[c] = true
		criteria = append(criteria, c)
	}
	sort.Slice(criteria, func(i, j int) bool {
		return catalogIndex(criteria[i]) < catalogIndex(criteria[j])
	})

	return ReviewRequest{
		code:     p.Code,
		goal:     strings.TrimSpace(p.Goal),
		context:  strings.TrimSpace(p.Context),
		criteria: criteria,
		mode:     p.Mode,
		solution: p.Solution,
	}, nil
}

// Code returns the code under review.
func (r ReviewRequest) Code() string { return r.code }

// Goal returns the review goal.
func (r ReviewRequest) Goal() string { return r.goal }

// Context returns the free-text context.
func (r ReviewRequest) Context() string { return r.context }

// Mode returns the arbitration mode.
func (r ReviewRequest) Mode() Mode { return r.mode }

// WantSolution reports whether a solution step was requested.
func (r ReviewRequest) WantSolution() bool { return r.solution }

// Criteria returns a copy of the requested criteria in catalog order.
func (r ReviewRequest) Criteria() []CriterionID {
	out := make([]CriterionID, len(r.criteria))
	copy(out, r.criteria)
	return out
}

// HasCriterion reports whether c was requested.
func (r ReviewRequest) HasCriterion(c CriterionID) bool {
	for _, rc := range r.criteria {
		if rc == c {
			return true
		}
	}
	return false
}
