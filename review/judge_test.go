package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/mozart/review/emit"
)

func judgeResults() []ReviewerResult {
	return []ReviewerResult{
		{ReviewerID: "a", Criteria: map[CriterionID]CriterionScore{
			Correctness: {Score: 80, Suggestions: []string{"Check nil maps before writing"}},
			Security:    {Score: 60, Suggestions: []string{"Escape SQL parameters"}},
		}},
		{ReviewerID: "b", Criteria: map[CriterionID]CriterionScore{
			Correctness: {Score: 80, Suggestions: []string{"check nil maps before writing!"}},
			Security:    {Score: 90, Suggestions: []string{"Rotate API keys"}},
		}},
	}
}

func newTestArbiter(t *testing.T, j JudgeBackend, opts ...Option) *JudgeArbiter {
	t.Helper()
	a, err := NewJudgeArbiter(j, time.Second, opts...)
	if err != nil {
		t.Fatalf("NewJudgeArbiter: %v", err)
	}
	return a
}

// TestReconcileScoreWinners verifies winners follow score, with exact ties
// going to the earliest registered reviewer.
func TestReconcileScoreWinners(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Reply: JudgeReply{Score: 84, Rationale: "b is safer", RecommendedChanges: []string{"Add fuzz tests"}}}

	out := newTestArbiter(t, j).Reconcile(context.Background(), req, judgeResults(), nil)
	if out.Verdict.IsNone() {
		t.Fatal("no verdict")
	}
	v := out.Verdict.UnwrapOr(JudgeVerdict{})
	if got := v.PerCriterionWinner[Correctness]; got != "a" {
		t.Errorf("correctness winner = %q, want a (tie to earliest)", got)
	}
	if got := v.PerCriterionWinner[Security]; got != "b" {
		t.Errorf("security winner = %q, want b", got)
	}
	if v.SynthesizedScore != 84 {
		t.Errorf("SynthesizedScore = %d, want 84", v.SynthesizedScore)
	}
	if v.Overrides != nil {
		t.Errorf("Overrides = %v, want nil", v.Overrides)
	}
	if v.JudgeID != "judge" {
		t.Errorf("JudgeID = %q", v.JudgeID)
	}
	want := []string{"Add fuzz tests", "Check nil maps before writing", "Escape SQL parameters", "Rotate API keys"}
	if strings.Join(v.CombinedSuggestions, "|") != strings.Join(want, "|") {
		t.Errorf("CombinedSuggestions = %q, want %q", v.CombinedSuggestions, want)
	}
	if out.Degraded {
		t.Error("two inputs and a verdict should not be degraded")
	}
	if len(j.Inputs()) != 1 || len(j.Inputs()[0].Results) != 2 {
		t.Errorf("judge inputs = %+v", j.Inputs())
	}
}

// TestReconcileOverride verifies the judge's stated winner only overrides
// with a rationale and a valid reviewer id.
func TestReconcileOverride(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Reply: JudgeReply{
		Score: 70,
		Winners: map[CriterionID]JudgeWinner{
			Correctness: {ReviewerID: "b", Rationale: "a missed the overflow"},
			Security:    {ReviewerID: "a"},
		},
	}}
	v := newTestArbiter(t, j).Reconcile(context.Background(), req, judgeResults(), nil).Verdict.UnwrapOr(JudgeVerdict{})
	if v.PerCriterionWinner[Correctness] != "b" {
		t.Errorf("correctness = %q, want b (override)", v.PerCriterionWinner[Correctness])
	}
	if v.PerCriterionWinner[Security] != "b" {
		t.Errorf("security = %q, want b (no rationale, no override)", v.PerCriterionWinner[Security])
	}
	if v.Overrides[Correctness] != "a missed the overflow" || len(v.Overrides) != 1 {
		t.Errorf("Overrides = %v", v.Overrides)
	}

	j.Reply.Winners = map[CriterionID]JudgeWinner{
		Correctness: {ReviewerID: "zed", Rationale: "unknown id"},
		Security:    {ReviewerID: Tie, Rationale: "both adequate"},
	}
	v = newTestArbiter(t, j).Reconcile(context.Background(), req, judgeResults(), nil).Verdict.UnwrapOr(JudgeVerdict{})
	if v.PerCriterionWinner[Correctness] != "a" {
		t.Errorf("unknown judge winner should be ignored, got %q", v.PerCriterionWinner[Correctness])
	}
	if v.PerCriterionWinner[Security] != Tie {
		t.Errorf("security = %q, want tie", v.PerCriterionWinner[Security])
	}
}

// TestReconcileJudgeFailure verifies a failed judge keeps reviewer data.
func TestReconcileJudgeFailure(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Err: errors.New("connection refused")}
	failures := []BackendFailure{{ReviewerID: "c", Kind: FailureAuth}}

	out := newTestArbiter(t, j).Reconcile(context.Background(), req, judgeResults(), failures)
	if out.Verdict.IsSome() {
		t.Error("verdict should be absent")
	}
	if out.JudgeFailure == nil || out.JudgeFailure.Kind != FailureTransport {
		t.Errorf("JudgeFailure = %+v", out.JudgeFailure)
	}
	if len(out.Results) != 2 || len(out.Failures) != 1 {
		t.Errorf("results/failures = %d/%d, want 2/1", len(out.Results), len(out.Failures))
	}
	if len(out.Comparison) != 2 {
		t.Errorf("comparison rows = %d, want 2", len(out.Comparison))
	}
	if !out.Degraded {
		t.Error("judge failure should degrade")
	}
}

// TestReconcileJudgeTimeout verifies a slow judge is a Timeout failure.
func TestReconcileJudgeTimeout(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Delay: time.Second}
	a, err := NewJudgeArbiter(j, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	out := a.Reconcile(context.Background(), req, judgeResults(), nil)
	if out.JudgeFailure == nil || out.JudgeFailure.Kind != FailureTimeout {
		t.Errorf("JudgeFailure = %+v, want timeout", out.JudgeFailure)
	}
}

// TestReconcileSingleInput verifies the rationale records that no
// arbitration happened.
func TestReconcileSingleInput(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Reply: JudgeReply{Score: 150, Rationale: "fine"}}
	out := newTestArbiter(t, j).Reconcile(context.Background(), req, judgeResults()[:1], nil)
	v := out.Verdict.UnwrapOr(JudgeVerdict{})
	if !strings.HasPrefix(v.Rationale, singleInputNote) || !strings.HasSuffix(v.Rationale, "fine") {
		t.Errorf("Rationale = %q", v.Rationale)
	}
	if v.SynthesizedScore != 100 {
		t.Errorf("SynthesizedScore = %d, want clamped 100", v.SynthesizedScore)
	}
	if !out.Degraded {
		t.Error("single input should be degraded")
	}
	if v.PerCriterionWinner[Security] != "a" {
		t.Errorf("winner = %q, want a", v.PerCriterionWinner[Security])
	}
}

// TestReconcileClampsJudgeScore verifies an out-of-range judge score is
// clamped and the clamp is recorded on the verdict, the emitter and metrics.
func TestReconcileClampsJudgeScore(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Reply: JudgeReply{Score: 150, Rationale: "generous", Warnings: []string{"score 149.6 rounded to 150"}}}
	buf := emit.NewBufferedEmitter()
	reg := prometheus.NewRegistry()

	out := newTestArbiter(t, j, WithEmitter(buf), WithMetrics(NewPrometheusMetrics(reg))).
		Reconcile(context.Background(), req, judgeResults(), nil)
	v := out.Verdict.UnwrapOr(JudgeVerdict{})
	if v.SynthesizedScore != 100 {
		t.Errorf("SynthesizedScore = %d, want 100", v.SynthesizedScore)
	}
	want := []string{"score 149.6 rounded to 150", "synthesized score 150 clamped to 100"}
	if strings.Join(v.Warnings, "|") != strings.Join(want, "|") {
		t.Errorf("Warnings = %q, want %q", v.Warnings, want)
	}

	var clamps []emit.Event
	for _, e := range buf.GetHistory("") {
		if e.Msg == "clamp_warning" {
			clamps = append(clamps, e)
		}
	}
	if len(clamps) != 1 {
		t.Fatalf("clamp_warning events = %d, want 1", len(clamps))
	}
	if clamps[0].BackendID != "judge" || clamps[0].Meta["raw"] != 150 || clamps[0].Meta["clamped"] != 100 {
		t.Errorf("clamp event = %+v", clamps[0])
	}

	if got, _ := metricValue(t, reg, "mozart_clamped_scores_total", map[string]string{"backend": "judge"}); got != 1 {
		t.Errorf("clamped_scores_total = %v, want 1", got)
	}

	rec := ToRecord(Outcome{Mode: ModeFull, Criteria: req.Criteria(), Full: &out})
	if rec.Verdict == nil || len(rec.Verdict.Warnings) != 2 {
		t.Errorf("record verdict warnings = %+v", rec.Verdict)
	}
}

// TestReconcileInRangeScoreHasNoWarnings verifies no clamp is reported for
// a valid score.
func TestReconcileInRangeScoreHasNoWarnings(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{Reply: JudgeReply{Score: 70, Rationale: "ok"}}
	buf := emit.NewBufferedEmitter()

	out := newTestArbiter(t, j, WithEmitter(buf)).Reconcile(context.Background(), req, judgeResults(), nil)
	v := out.Verdict.UnwrapOr(JudgeVerdict{})
	if v.Warnings != nil {
		t.Errorf("Warnings = %q, want nil", v.Warnings)
	}
	for _, e := range buf.GetHistory("") {
		if e.Msg == "clamp_warning" {
			t.Errorf("unexpected clamp_warning: %+v", e)
		}
	}
}

// TestReconcileJudgePanic verifies a panicking judge becomes a transport
// failure instead of crashing the session.
func TestReconcileJudgePanic(t *testing.T) {
	req := mustRequest(t, ModeFull, Correctness, Security)
	j := &MockJudge{ReplyFunc: func(JudgeInput) JudgeReply { panic("judge exploded") }}

	out := newTestArbiter(t, j).Reconcile(context.Background(), req, judgeResults(), nil)
	if out.Verdict.IsSome() {
		t.Error("verdict should be absent")
	}
	if out.JudgeFailure == nil || out.JudgeFailure.Kind != FailureTransport {
		t.Fatalf("JudgeFailure = %+v, want transport", out.JudgeFailure)
	}
	if !strings.Contains(out.JudgeFailure.Detail, "judge exploded") {
		t.Errorf("Detail = %q", out.JudgeFailure.Detail)
	}
	if len(out.Results) != 2 {
		t.Errorf("results = %d, want 2", len(out.Results))
	}
}

// TestNewJudgeArbiterValidation verifies constructor checks.
func TestNewJudgeArbiterValidation(t *testing.T) {
	if _, err := NewJudgeArbiter(nil, time.Second); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil judge err = %v", err)
	}
	if _, err := NewJudgeArbiter(&MockJudge{}, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero timeout err = %v", err)
	}
	if _, err := NewJudgeArbiter(&MockJudge{}, time.Second, WithSuggestionSimilarity(2)); err == nil {
		t.Error("bad similarity should fail")
	}
}
