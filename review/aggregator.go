package review

// ComparisonEntry is one reviewer's view of one criterion.
type ComparisonEntry struct {
	ReviewerID  string
	Score       int
	Rationale   string
	Suggestions []string
}

// CriterionComparison lines up every reviewer's assessment of one criterion.
type CriterionComparison struct {
	Criterion CriterionID
	// Entries are in reviewer registration order.
	Entries []ComparisonEntry
}

// ScoreAggregator builds Fast-mode outcomes. It is pure: no I/O and no
// clock, so it is safe to reuse across sessions.
type ScoreAggregator struct{}

// Combine lines up results criterion by criterion, without blending scores
// across reviewers. results must be the successful results in registration
// order.
func (ScoreAggregator) Combine(req ReviewRequest, results []ReviewerResult, failures []BackendFailure) FastModeOutcome {
	return FastModeOutcome{
		Results:    results,
		Failures:   failures,
		Comparison: compare(req.Criteria(), results),
		Leader:     leader(results),
		Degraded:   len(results) == 1,
	}
}

func compare(criteria []CriterionID, results []ReviewerResult) []CriterionComparison {
	if len(results) == 0 {
		return nil
	}
	rows := make([]CriterionComparison, len(criteria))
	for i, c := range criteria {
		entries := make([]ComparisonEntry, len(results))
		for j, r := range results {
			cs := r.Criteria[c]
			entries[j] = ComparisonEntry{
				ReviewerID:  r.ReviewerID,
				Score:       cs.Score,
				Rationale:   cs.Rationale,
				Suggestions: cs.Suggestions,
			}
		}
		rows[i] = CriterionComparison{Criterion: c, Entries: entries}
	}
	return rows
}

// leader returns the reviewer with the highest overall score; ties go to the
// earliest registered.
func leader(results []ReviewerResult) string {
	best := -1
	id := ""
	for _, r := range results {
		if r.OverallScore > best {
			best = r.OverallScore
			id = r.ReviewerID
		}
	}
	return id
}

// scoreWinner returns the reviewer with the highest score for c; an exact
// tie goes to the earliest registered.
func scoreWinner(c CriterionID, results []ReviewerResult) string {
	best := -1
	id := ""
	for _, r := range results {
		if s := r.Criteria[c].Score; s > best {
			best = s
			id = r.ReviewerID
		}
	}
	return id
}
