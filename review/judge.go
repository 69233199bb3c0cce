package review

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/mozart/review/emit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Tie is the PerCriterionWinner value when the judge declares no winner.
const Tie = "tie"

// singleInputNote prefixes the rationale of a verdict built from one result.
const singleInputNote = "Single reviewer input: no arbitration was performed; the verdict echoes the only successful review."

// JudgeVerdict is the reconciled view of all successful reviewer results.
type JudgeVerdict struct {
	JudgeID string
	Summary string

	// CombinedSuggestions are deduplicated in first-seen order.
	CombinedSuggestions []string

	// PerCriterionWinner maps each requested criterion to a reviewer id or
	// Tie.
	PerCriterionWinner map[CriterionID]string

	// Overrides holds the judge's rationale for every criterion where its
	// stated winner replaced the score-based one. Nil when there are none.
	Overrides map[CriterionID]string

	// SynthesizedScore is the judge-stated score, clamped to [0,100].
	SynthesizedScore int

	Rationale string

	// Warnings lists non-fatal adjustments made to the judge's reply, such
	// as a rounded or clamped score.
	Warnings []string
}

// JudgeArbiter reconciles reviewer results through one judge call.
type JudgeArbiter struct {
	judge      JudgeBackend
	timeout    time.Duration
	similarity float64
	mon        *monitor
	now        func() time.Time
}

// NewJudgeArbiter returns an arbiter that calls judge with the given
// timeout. Only the emitter, metrics, cost tracker, similarity and clock
// options apply.
func NewJudgeArbiter(judge JudgeBackend, timeout time.Duration, opts ...Option) (*JudgeArbiter, error) {
	if judge == nil {
		return nil, fmt.Errorf("%w: judge backend is nil", ErrInvalidConfig)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: judge timeout must be positive", ErrInvalidConfig)
	}
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return newJudgeArbiter(judge, timeout, &cfg, newMonitor("", &cfg)), nil
}

func newJudgeArbiter(judge JudgeBackend, timeout time.Duration, cfg *engineConfig, mon *monitor) *JudgeArbiter {
	return &JudgeArbiter{
		judge:      judge,
		timeout:    timeout,
		similarity: cfg.similarity,
		mon:        mon,
		now:        cfg.now,
	}
}

// Reconcile issues exactly one judge call over results and merges its reply.
// A judge failure leaves Verdict absent and sets JudgeFailure; results and
// failures are always carried through.
func (a *JudgeArbiter) Reconcile(ctx context.Context, req ReviewRequest, results []ReviewerResult, failures []BackendFailure) FullModeOutcome {
	out := FullModeOutcome{
		Results:    results,
		Failures:   failures,
		Comparison: compare(req.Criteria(), results),
		Verdict:    fn.None[JudgeVerdict](),
		Degraded:   len(results) < 2,
	}
	if len(results) == 0 {
		return out
	}

	id := a.judge.ID()
	a.mon.emit(emit.LevelInfo, "judge_start", id, map[string]interface{}{"inputs": len(results)})

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := a.now()
	reply, err := a.call(callCtx, JudgeInput{Request: req, Results: results})
	latency := a.now().Sub(start)
	if err != nil {
		f := ClassifyError(id, err)
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			f.Kind = FailureTimeout
		}
		f.Latency = latency
		out.JudgeFailure = f
		out.Degraded = true
		a.mon.prometheus().IncrementJudgeCalls("failed")
		a.mon.emit(emit.LevelWarn, "judge_failure", id, map[string]interface{}{
			"kind":  f.Kind.String(),
			"error": f.Detail,
		})
		return out
	}

	verdict, clamped := a.merge(req, results, reply)
	verdict.JudgeID = id
	out.Verdict = fn.Some(verdict)

	if clamped {
		a.mon.prometheus().IncrementClamped(id)
		a.mon.emit(emit.LevelWarn, "clamp_warning", id, map[string]interface{}{
			"criterion": "synthesized_score",
			"raw":       reply.Score,
			"clamped":   verdict.SynthesizedScore,
		})
	}

	a.mon.prometheus().IncrementJudgeCalls("ok")
	cost := a.mon.recordUsage(id, reply.Model, reply.Usage)
	a.mon.emit(emit.LevelInfo, "judge_end", id, map[string]interface{}{
		"latency_ms":        latency.Milliseconds(),
		"synthesized_score": verdict.SynthesizedScore,
		"overrides":         len(verdict.Overrides),
		"model":             reply.Model,
		"tokens_in":         reply.Usage.InputTokens,
		"tokens_out":        reply.Usage.OutputTokens,
		"cost_usd":          cost,
	})
	return out
}

// call invokes the judge, turning a panic into a transport failure.
func (a *JudgeArbiter) call(ctx context.Context, in JudgeInput) (reply JudgeReply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewBackendFailure(a.judge.ID(), FailureTransport, fmt.Sprintf("judge panicked: %v", r))
		}
	}()
	return a.judge.Judge(withMonitor(ctx, a.mon), in)
}

// merge builds the verdict and reports whether the judge's score was
// clamped.
func (a *JudgeArbiter) merge(req ReviewRequest, results []ReviewerResult, reply JudgeReply) (JudgeVerdict, bool) {
	criteria := req.Criteria()
	valid := make(map[string]bool, len(results)+1)
	for _, r := range results {
		valid[r.ReviewerID] = true
	}
	valid[Tie] = true

	winners := make(map[CriterionID]string, len(criteria))
	var overrides map[CriterionID]string
	for _, c := range criteria {
		w := scoreWinner(c, results)
		if jw, ok := reply.Winners[c]; ok && jw.Rationale != "" && valid[jw.ReviewerID] && jw.ReviewerID != w {
			w = jw.ReviewerID
			if overrides == nil {
				overrides = make(map[CriterionID]string)
			}
			overrides[c] = jw.Rationale
		}
		winners[c] = w
	}

	pool := append([]string(nil), reply.RecommendedChanges...)
	for _, r := range results {
		pool = append(pool, r.Suggestions(criteria)...)
	}

	score, clamped := ClampScore(reply.Score)
	var warnings []string
	if len(reply.Warnings) > 0 {
		warnings = append(warnings, reply.Warnings...)
	}
	if clamped {
		warnings = append(warnings, fmt.Sprintf("synthesized score %d clamped to %d", reply.Score, score))
	}

	rationale := reply.Rationale
	if len(results) == 1 {
		if rationale == "" {
			rationale = singleInputNote
		} else {
			rationale = singleInputNote + " " + rationale
		}
	}

	return JudgeVerdict{
		Summary:             reply.Summary,
		CombinedSuggestions: DedupSuggestions(pool, a.similarity),
		PerCriterionWinner:  winners,
		Overrides:           overrides,
		SynthesizedScore:    score,
		Rationale:           rationale,
		Warnings:            warnings,
	}, clamped
}
