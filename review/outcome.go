package review

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FastModeOutcome is the side-by-side result of a Fast-mode session. It
// carries no blended score.
type FastModeOutcome struct {
	Results    []ReviewerResult
	Failures   []BackendFailure
	Comparison []CriterionComparison

	// Leader is the reviewer with the highest overall score (earliest
	// registered on a tie). It only selects the solution basis.
	Leader string

	// Degraded is set when exactly one reviewer succeeded.
	Degraded bool
}

// FullModeOutcome is the judged result of a Full-mode session.
type FullModeOutcome struct {
	Results    []ReviewerResult
	Failures   []BackendFailure
	Comparison []CriterionComparison

	// Verdict is absent when the judge failed.
	Verdict      fn.Option[JudgeVerdict]
	JudgeFailure *BackendFailure

	// Degraded is set when fewer than two reviewers succeeded or the judge
	// failed.
	Degraded bool
}

// Outcome is the terminal result of a successful session. Exactly one of
// Fast and Full is set, matching Mode.
type Outcome struct {
	SessionID string
	Mode      Mode
	Criteria  []CriterionID

	Fast *FastModeOutcome
	Full *FullModeOutcome

	// Solution is the improved final answer, when one was requested.
	Solution        string
	SolutionFailure *BackendFailure

	StartedAt   time.Time
	CompletedAt time.Time
}

// Results returns the successful reviewer results in registration order.
func (o Outcome) Results() []ReviewerResult {
	switch {
	case o.Fast != nil:
		return o.Fast.Results
	case o.Full != nil:
		return o.Full.Results
	}
	return nil
}

// Failures returns the reviewer failures in registration order.
func (o Outcome) Failures() []BackendFailure {
	switch {
	case o.Fast != nil:
		return o.Fast.Failures
	case o.Full != nil:
		return o.Full.Failures
	}
	return nil
}

// Comparison returns the per-criterion comparison rows.
func (o Outcome) Comparison() []CriterionComparison {
	switch {
	case o.Fast != nil:
		return o.Fast.Comparison
	case o.Full != nil:
		return o.Full.Comparison
	}
	return nil
}

// Verdict returns the judge verdict, if any.
func (o Outcome) Verdict() fn.Option[JudgeVerdict] {
	if o.Full == nil {
		return fn.None[JudgeVerdict]()
	}
	return o.Full.Verdict
}

// Degraded reports whether the outcome was produced with reduced input.
func (o Outcome) Degraded() bool {
	switch {
	case o.Fast != nil:
		return o.Fast.Degraded
	case o.Full != nil:
		return o.Full.Degraded
	}
	return false
}

// Result returns the successful result of reviewerID.
func (o Outcome) Result(reviewerID string) (ReviewerResult, bool) {
	for _, r := range o.Results() {
		if r.ReviewerID == reviewerID {
			return r, true
		}
	}
	return ReviewerResult{}, false
}
