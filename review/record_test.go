package review

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"pgregory.net/rapid"
)

var textGen = rapid.StringMatching(`[a-zA-Z0-9 .,]{0,24}`)

func drawStrings(t *rapid.T, label string) []string {
	if rapid.Bool().Draw(t, label+"_nil") {
		return nil
	}
	return rapid.SliceOfN(textGen, 0, 3).Draw(t, label)
}

func drawCriteria(t *rapid.T) []CriterionID {
	var out []CriterionID
	for _, c := range Catalog() {
		if rapid.Bool().Draw(t, "use_"+string(c)) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = []CriterionID{Correctness}
	}
	return out
}

func drawFailure(t *rapid.T, id string) BackendFailure {
	return BackendFailure{
		ReviewerID: id,
		Kind:       FailureKind(rapid.IntRange(0, int(FailureRateLimited)).Draw(t, "kind")),
		Detail:     textGen.Draw(t, "detail"),
		Latency:    time.Duration(rapid.Int64Range(0, int64(time.Hour)).Draw(t, "latency")),
	}
}

func drawOutcome(t *rapid.T) Outcome {
	criteria := drawCriteria(t)
	n := rapid.IntRange(1, 4).Draw(t, "reviewers")
	var results []ReviewerResult
	for i := 0; i < n; i++ {
		scores := make(map[CriterionID]CriterionScore)
		for _, c := range criteria {
			scores[c] = CriterionScore{
				Score:       rapid.IntRange(MinScore, MaxScore).Draw(t, "score"),
				Rationale:   textGen.Draw(t, "rationale"),
				Suggestions: drawStrings(t, "suggestions"),
			}
		}
		results = append(results, ReviewerResult{
			ReviewerID:   "rev-" + string(rune('a'+i)),
			DisplayName:  textGen.Draw(t, "display"),
			ProviderName: rapid.SampledFrom([]string{"openai", "deepseek", "anthropic", "google"}).Draw(t, "provider"),
			Model:        textGen.Draw(t, "model"),
			Criteria:     scores,
			OverallScore: ComputeOverall(scores, criteria),
			Summary:      textGen.Draw(t, "summary"),
			Grade:        rapid.SampledFrom([]string{"", "approve", "revise"}).Draw(t, "grade"),
			Latency:      time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "latency")),
			Status:       StatusOK,
			Warnings:     drawStrings(t, "warnings"),
			Usage: TokenUsage{
				InputTokens:  rapid.IntRange(0, 100000).Draw(t, "in"),
				OutputTokens: rapid.IntRange(0, 100000).Draw(t, "out"),
			},
		})
	}
	var failures []BackendFailure
	for i := 0; i < rapid.IntRange(0, 2).Draw(t, "failures"); i++ {
		failures = append(failures, drawFailure(t, "fail-"+string(rune('a'+i))))
	}

	started := time.Unix(rapid.Int64Range(1600000000, 1900000000).Draw(t, "start"), rapid.Int64Range(0, 999999999).Draw(t, "nsec")).UTC()
	out := Outcome{
		SessionID:   strings.ToUpper(rapid.StringMatching(`[0-9a-z]{26}`).Draw(t, "sid")),
		Criteria:    criteria,
		StartedAt:   started,
		CompletedAt: started.Add(time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "dur"))),
	}
	if rapid.Bool().Draw(t, "solution") {
		out.Solution = textGen.Draw(t, "solution_text")
	} else if rapid.Bool().Draw(t, "solution_failed") {
		f := drawFailure(t, "solver")
		out.SolutionFailure = &f
	}

	req := ReviewRequest{criteria: criteria}
	if rapid.Bool().Draw(t, "full") {
		out.Mode = ModeFull
		full := FullModeOutcome{
			Results:    results,
			Failures:   failures,
			Comparison: compare(criteria, results),
			Verdict:    fn.None[JudgeVerdict](),
		}
		if rapid.Bool().Draw(t, "judge_ok") {
			v := JudgeVerdict{
				JudgeID:             "judge",
				Summary:             textGen.Draw(t, "jsummary"),
				CombinedSuggestions: drawStrings(t, "combined"),
				PerCriterionWinner:  make(map[CriterionID]string),
				SynthesizedScore:    rapid.IntRange(MinScore, MaxScore).Draw(t, "synth"),
				Rationale:           textGen.Draw(t, "jrationale"),
				Warnings:            drawStrings(t, "jwarnings"),
			}
			for _, c := range criteria {
				v.PerCriterionWinner[c] = scoreWinner(c, results)
				if rapid.Bool().Draw(t, "override") {
					if v.Overrides == nil {
						v.Overrides = make(map[CriterionID]string)
					}
					v.PerCriterionWinner[c] = Tie
					v.Overrides[c] = textGen.Draw(t, "override_rationale")
				}
			}
			full.Verdict = fn.Some(v)
		} else {
			f := drawFailure(t, "judge")
			full.JudgeFailure = &f
		}
		full.Degraded = len(results) < 2 || full.JudgeFailure != nil
		out.Full = &full
	} else {
		out.Mode = ModeFast
		fast := ScoreAggregator{}.Combine(req, results, failures)
		out.Fast = &fast
	}
	return out
}

// TestRecordRoundTrip verifies Outcome -> Record -> JSON -> Record ->
// Outcome is the identity.
func TestRecordRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := drawOutcome(t)

		data, err := json.Marshal(ToRecord(want))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got, err := FromRecord(rec)
		if err != nil {
			t.Fatalf("FromRecord: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v\njson: %s", got, want, data)
		}
	})
}

// TestRecordFieldNames verifies the stable JSON field names.
func TestRecordFieldNames(t *testing.T) {
	req := mustRequest(t, ModeFast, Correctness)
	results := []ReviewerResult{{ReviewerID: "a", Criteria: map[CriterionID]CriterionScore{Correctness: {Score: 70, Rationale: "fine"}}, OverallScore: 70}}
	fast := ScoreAggregator{}.Combine(req, results, []BackendFailure{{ReviewerID: "b", Kind: FailureTimeout}})
	data, err := json.Marshal(ToRecord(Outcome{SessionID: "s1", Mode: ModeFast, Criteria: req.Criteria(), Fast: &fast}))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"session_id":"s1"`, `"mode":"fast"`, `"reviewer_id":"a"`, `"criterion":"correctness"`, `"score":70`, `"rationale":"fine"`, `"suggestions":null`, `"overall_score":70`, `"failures":[`, `"kind":"timeout"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("record JSON missing %s: %s", key, data)
		}
	}
	if strings.Contains(string(data), `"verdict"`) {
		t.Errorf("fast record should have no verdict: %s", data)
	}
}

// TestFromRecordErrors verifies malformed records are rejected.
func TestFromRecordErrors(t *testing.T) {
	bad := []Record{
		{Mode: "slow"},
		{Mode: "fast", Criteria: []string{"style"}},
		{Mode: "fast", Reviewers: []ReviewerRecord{{ReviewerID: "a", Status: "meh"}}},
		{Mode: "fast", Failures: []FailureRecord{{Kind: "boom"}}},
		{Mode: "fast", Verdict: &VerdictRecord{}},
		{Mode: "full", Verdict: &VerdictRecord{Winners: []WinnerRecord{{Criterion: "style"}}}},
		{Mode: "fast", Reviewers: []ReviewerRecord{{Status: "ok", Latency: "soon"}}},
	}
	for i, rec := range bad {
		if _, err := FromRecord(rec); err == nil {
			t.Errorf("record %d: expected error", i)
		}
	}
}
