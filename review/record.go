package review

import (
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Record is the flat, serialization-friendly form of an Outcome. The JSON
// field names are stable.
type Record struct {
	SessionID       string             `json:"session_id"`
	Mode            string             `json:"mode"`
	Criteria        []string           `json:"criteria"`
	Reviewers       []ReviewerRecord   `json:"reviewers"`
	Failures        []FailureRecord    `json:"failures"`
	Comparison      []ComparisonRecord `json:"comparison"`
	Leader          string             `json:"leader,omitempty"`
	Degraded        bool               `json:"degraded"`
	Verdict         *VerdictRecord     `json:"verdict,omitempty"`
	JudgeFailure    *FailureRecord     `json:"judge_failure,omitempty"`
	Solution        string             `json:"solution,omitempty"`
	SolutionFailure *FailureRecord     `json:"solution_failure,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
}

// ReviewerRecord is a flat ReviewerResult.
type ReviewerRecord struct {
	ReviewerID   string            `json:"reviewer_id"`
	DisplayName  string            `json:"display_name,omitempty"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model,omitempty"`
	Criteria     []CriterionRecord `json:"criteria"`
	OverallScore int               `json:"overall_score"`
	Summary      string            `json:"summary,omitempty"`
	Grade        string            `json:"grade,omitempty"`
	Latency      string            `json:"latency"`
	Status       string            `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	Warnings     []string          `json:"warnings"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
}

// CriterionRecord is a flat CriterionScore.
type CriterionRecord struct {
	Criterion   string   `json:"criterion"`
	Score       int      `json:"score"`
	Rationale   string   `json:"rationale"`
	Suggestions []string `json:"suggestions"`
}

// FailureRecord is a flat BackendFailure.
type FailureRecord struct {
	ReviewerID string `json:"reviewer_id"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	Latency    string `json:"latency"`
}

// ComparisonRecord is a flat CriterionComparison.
type ComparisonRecord struct {
	Criterion string        `json:"criterion"`
	Entries   []EntryRecord `json:"entries"`
}

// EntryRecord is a flat ComparisonEntry.
type EntryRecord struct {
	ReviewerID  string   `json:"reviewer_id"`
	Score       int      `json:"score"`
	Rationale   string   `json:"rationale"`
	Suggestions []string `json:"suggestions"`
}

// VerdictRecord is a flat JudgeVerdict.
type VerdictRecord struct {
	JudgeID             string         `json:"judge_id"`
	Summary             string         `json:"summary,omitempty"`
	CombinedSuggestions []string       `json:"combined_suggestions"`
	Winners             []WinnerRecord `json:"winners"`
	SynthesizedScore    int            `json:"synthesized_score"`
	Rationale           string         `json:"rationale"`
	Warnings            []string       `json:"warnings"`
}

// WinnerRecord is one criterion's winner. Override is set when the judge's
// stated winner replaced the score-based one.
type WinnerRecord struct {
	Criterion         string `json:"criterion"`
	Winner            string `json:"winner"`
	Override          bool   `json:"override,omitempty"`
	OverrideRationale string `json:"override_rationale,omitempty"`
}

// ToRecord flattens o. Map-valued fields are emitted in criterion order.
func ToRecord(o Outcome) Record {
	rec := Record{
		SessionID:       o.SessionID,
		Mode:            o.Mode.String(),
		Criteria:        criterionStrings(o.Criteria),
		Solution:        o.Solution,
		SolutionFailure: failureRecordPtr(o.SolutionFailure),
		StartedAt:       o.StartedAt,
		CompletedAt:     o.CompletedAt,
		Reviewers:       reviewerRecords(o.Results()),
		Failures:        failureRecords(o.Failures()),
		Comparison:      comparisonRecords(o.Comparison()),
		Degraded:        o.Degraded(),
	}
	if o.Fast != nil {
		rec.Leader = o.Fast.Leader
	}
	if o.Full != nil {
		rec.JudgeFailure = failureRecordPtr(o.Full.JudgeFailure)
		o.Full.Verdict.WhenSome(func(v JudgeVerdict) {
			rec.Verdict = verdictRecord(v)
		})
	}
	return rec
}

// FromRecord rebuilds the Outcome that ToRecord flattened.
func FromRecord(rec Record) (Outcome, error) {
	mode, err := ParseMode(rec.Mode)
	if err != nil {
		return Outcome{}, err
	}
	criteria, err := parseCriterionStrings(rec.Criteria)
	if err != nil {
		return Outcome{}, err
	}
	results, err := reviewerResults(rec.Reviewers)
	if err != nil {
		return Outcome{}, err
	}
	failures, err := backendFailures(rec.Failures)
	if err != nil {
		return Outcome{}, err
	}
	comparison, err := criterionComparisons(rec.Comparison)
	if err != nil {
		return Outcome{}, err
	}
	solutionFailure, err := backendFailurePtr(rec.SolutionFailure)
	if err != nil {
		return Outcome{}, err
	}

	o := Outcome{
		SessionID:       rec.SessionID,
		Mode:            mode,
		Criteria:        criteria,
		Solution:        rec.Solution,
		SolutionFailure: solutionFailure,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
	}

	switch mode {
	case ModeFast:
		if rec.Verdict != nil || rec.JudgeFailure != nil {
			return Outcome{}, fmt.Errorf("fast mode record %s carries judge data", rec.SessionID)
		}
		o.Fast = &FastModeOutcome{
			Results:    results,
			Failures:   failures,
			Comparison: comparison,
			Leader:     rec.Leader,
			Degraded:   rec.Degraded,
		}
	case ModeFull:
		judgeFailure, err := backendFailurePtr(rec.JudgeFailure)
		if err != nil {
			return Outcome{}, err
		}
		verdict := fn.None[JudgeVerdict]()
		if rec.Verdict != nil {
			v, err := judgeVerdict(*rec.Verdict)
			if err != nil {
				return Outcome{}, err
			}
			verdict = fn.Some(v)
		}
		o.Full = &FullModeOutcome{
			Results:      results,
			Failures:     failures,
			Comparison:   comparison,
			Verdict:      verdict,
			JudgeFailure: judgeFailure,
			Degraded:     rec.Degraded,
		}
	}
	return o, nil
}

func criterionStrings(ids []CriterionID) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	for i, c := range ids {
		out[i] = string(c)
	}
	return out
}

func parseCriterionStrings(list []string) ([]CriterionID, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]CriterionID, len(list))
	for i, s := range list {
		c := CriterionID(s)
		if !c.Valid() {
			return nil, fmt.Errorf("record: unknown criterion %q", s)
		}
		out[i] = c
	}
	return out, nil
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func formatLatency(d time.Duration) string {
	return d.String()
}

func parseLatency(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("record: bad latency %q: %w", s, err)
	}
	return d, nil
}

// criteriaOrder returns the keys of scores in catalog order.
func criteriaOrder(scores map[CriterionID]CriterionScore) []CriterionID {
	var out []CriterionID
	for _, c := range Catalog() {
		if _, ok := scores[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func reviewerRecords(results []ReviewerResult) []ReviewerRecord {
	if results == nil {
		return nil
	}
	out := make([]ReviewerRecord, len(results))
	for i, r := range results {
		var crit []CriterionRecord
		if r.Criteria != nil {
			crit = []CriterionRecord{}
			for _, c := range criteriaOrder(r.Criteria) {
				cs := r.Criteria[c]
				crit = append(crit, CriterionRecord{
					Criterion:   string(c),
					Score:       cs.Score,
					Rationale:   cs.Rationale,
					Suggestions: cloneStrings(cs.Suggestions),
				})
			}
		}
		out[i] = ReviewerRecord{
			ReviewerID:   r.ReviewerID,
			DisplayName:  r.DisplayName,
			Provider:     r.ProviderName,
			Model:        r.Model,
			Criteria:     crit,
			OverallScore: r.OverallScore,
			Summary:      r.Summary,
			Grade:        r.Grade,
			Latency:      formatLatency(r.Latency),
			Status:       r.Status.String(),
			Reason:       r.Reason,
			Warnings:     cloneStrings(r.Warnings),
			InputTokens:  r.Usage.InputTokens,
			OutputTokens: r.Usage.OutputTokens,
		}
	}
	return out
}

func reviewerResults(recs []ReviewerRecord) ([]ReviewerResult, error) {
	if recs == nil {
		return nil, nil
	}
	out := make([]ReviewerResult, len(recs))
	for i, rr := range recs {
		status, err := ParseStatus(rr.Status)
		if err != nil {
			return nil, err
		}
		latency, err := parseLatency(rr.Latency)
		if err != nil {
			return nil, err
		}
		var scores map[CriterionID]CriterionScore
		if rr.Criteria != nil {
			scores = make(map[CriterionID]CriterionScore, len(rr.Criteria))
			for _, cr := range rr.Criteria {
				c := CriterionID(cr.Criterion)
				if !c.Valid() {
					return nil, fmt.Errorf("record: reviewer %s: unknown criterion %q", rr.ReviewerID, cr.Criterion)
				}
				scores[c] = CriterionScore{
					Score:       cr.Score,
					Rationale:   cr.Rationale,
					Suggestions: cloneStrings(cr.Suggestions),
				}
			}
		}
		out[i] = ReviewerResult{
			ReviewerID:   rr.ReviewerID,
			DisplayName:  rr.DisplayName,
			ProviderName: rr.Provider,
			Model:        rr.Model,
			Criteria:     scores,
			OverallScore: rr.OverallScore,
			Summary:      rr.Summary,
			Grade:        rr.Grade,
			Latency:      latency,
			Status:       status,
			Reason:       rr.Reason,
			Warnings:     cloneStrings(rr.Warnings),
			Usage:        TokenUsage{InputTokens: rr.InputTokens, OutputTokens: rr.OutputTokens},
		}
	}
	return out, nil
}

func failureRecord(f BackendFailure) FailureRecord {
	return FailureRecord{
		ReviewerID: f.ReviewerID,
		Kind:       f.Kind.String(),
		Detail:     f.Detail,
		Latency:    formatLatency(f.Latency),
	}
}

func failureRecordPtr(f *BackendFailure) *FailureRecord {
	if f == nil {
		return nil
	}
	r := failureRecord(*f)
	return &r
}

func failureRecords(fs []BackendFailure) []FailureRecord {
	if fs == nil {
		return nil
	}
	out := make([]FailureRecord, len(fs))
	for i, f := range fs {
		out[i] = failureRecord(f)
	}
	return out
}

func backendFailure(fr FailureRecord) (BackendFailure, error) {
	kind, err := ParseFailureKind(fr.Kind)
	if err != nil {
		return BackendFailure{}, err
	}
	latency, err := parseLatency(fr.Latency)
	if err != nil {
		return BackendFailure{}, err
	}
	return BackendFailure{ReviewerID: fr.ReviewerID, Kind: kind, Detail: fr.Detail, Latency: latency}, nil
}

func backendFailurePtr(fr *FailureRecord) (*BackendFailure, error) {
	if fr == nil {
		return nil, nil
	}
	f, err := backendFailure(*fr)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func backendFailures(recs []FailureRecord) ([]BackendFailure, error) {
	if recs == nil {
		return nil, nil
	}
	out := make([]BackendFailure, len(recs))
	for i, fr := range recs {
		f, err := backendFailure(fr)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func comparisonRecords(rows []CriterionComparison) []ComparisonRecord {
	if rows == nil {
		return nil
	}
	out := make([]ComparisonRecord, len(rows))
	for i, row := range rows {
		var entries []EntryRecord
		if row.Entries != nil {
			entries = make([]EntryRecord, len(row.Entries))
			for j, e := range row.Entries {
				entries[j] = EntryRecord{
					ReviewerID:  e.ReviewerID,
					Score:       e.Score,
					Rationale:   e.Rationale,
					Suggestions: cloneStrings(e.Suggestions),
				}
			}
		}
		out[i] = ComparisonRecord{Criterion: string(row.Criterion), Entries: entries}
	}
	return out
}

func criterionComparisons(recs []ComparisonRecord) ([]CriterionComparison, error) {
	if recs == nil {
		return nil, nil
	}
	out := make([]CriterionComparison, len(recs))
	for i, cr := range recs {
		c := CriterionID(cr.Criterion)
		if !c.Valid() {
			return nil, fmt.Errorf("record: comparison: unknown criterion %q", cr.Criterion)
		}
		var entries []ComparisonEntry
		if cr.Entries != nil {
			entries = make([]ComparisonEntry, len(cr.Entries))
			for j, e := range cr.Entries {
				entries[j] = ComparisonEntry{
					ReviewerID:  e.ReviewerID,
					Score:       e.Score,
					Rationale:   e.Rationale,
					Suggestions: cloneStrings(e.Suggestions),
				}
			}
		}
		out[i] = CriterionComparison{Criterion: c, Entries: entries}
	}
	return out, nil
}

func verdictRecord(v JudgeVerdict) *VerdictRecord {
	var winners []WinnerRecord
	if v.PerCriterionWinner != nil {
		winners = []WinnerRecord{}
		for _, c := range Catalog() {
			w, ok := v.PerCriterionWinner[c]
			if !ok {
				continue
			}
			rationale, override := v.Overrides[c]
			winners = append(winners, WinnerRecord{
				Criterion:         string(c),
				Winner:            w,
				Override:          override,
				OverrideRationale: rationale,
			})
		}
	}
	return &VerdictRecord{
		JudgeID:             v.JudgeID,
		Summary:             v.Summary,
		CombinedSuggestions: cloneStrings(v.CombinedSuggestions),
		Winners:             winners,
		SynthesizedScore:    v.SynthesizedScore,
		Rationale:           v.Rationale,
		Warnings:            cloneStrings(v.Warnings),
	}
}

func judgeVerdict(vr VerdictRecord) (JudgeVerdict, error) {
	v := JudgeVerdict{
		JudgeID:             vr.JudgeID,
		Summary:             vr.Summary,
		CombinedSuggestions: cloneStrings(vr.CombinedSuggestions),
		SynthesizedScore:    vr.SynthesizedScore,
		Rationale:           vr.Rationale,
		Warnings:            cloneStrings(vr.Warnings),
	}
	if vr.Winners != nil {
		v.PerCriterionWinner = make(map[CriterionID]string, len(vr.Winners))
	}
	for _, w := range vr.Winners {
		c := CriterionID(w.Criterion)
		if !c.Valid() {
			return JudgeVerdict{}, fmt.Errorf("record: verdict: unknown criterion %q", w.Criterion)
		}
		v.PerCriterionWinner[c] = w.Winner
		if w.Override {
			if v.Overrides == nil {
				v.Overrides = make(map[CriterionID]string)
			}
			v.Overrides[c] = w.OverrideRationale
		}
	}
	return v, nil
}
