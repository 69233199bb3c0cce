package review

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/mozart/review/emit"
)

// Session runs one review request to completion. Sessions are created by
// Engine.StartReview; a Session is single-use.
type Session struct {
	id      string
	req     ReviewRequest
	timeout time.Duration

	reviewers []ReviewerBackend
	judge     JudgeBackend
	solver    SolutionBackend

	dispatcher *Dispatcher
	aggregator ScoreAggregator
	arbiter    *JudgeArbiter

	mon *monitor
	now func() time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Request returns the session's request.
func (s *Session) Request() ReviewRequest { return s.req }

// Run dispatches the request, arbitrates, and runs the optional solution
// step. It returns exactly one Outcome when at least one reviewer
// succeeded; otherwise a *SessionFailure. Cancelling ctx yields a
// Cancelled failure rather than a partial Outcome.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	started := s.now().UTC().Round(0)
	mode := s.req.Mode()
	s.mon.emit(emit.LevelInfo, "session_start", "", map[string]interface{}{
		"mode":      mode.String(),
		"reviewers": len(s.reviewers),
		"criteria":  criterionStrings(s.req.Criteria()),
	})

	results, failures := s.dispatcher.FetchAll(ctx, s.reviewers, s.req, s.timeout)
	if ctx.Err() != nil {
		return Outcome{}, s.cancelled(ctx)
	}
	if len(results) == 0 {
		sf := &SessionFailure{Kind: AllBackendsFailed, Reasons: failures}
		s.mon.prometheus().IncrementSessions(mode, "failed")
		s.mon.emit(emit.LevelError, "session_end", "", map[string]interface{}{
			"status": "failed",
			"error":  sf.Error(),
		})
		return Outcome{}, sf
	}

	out := Outcome{
		SessionID: s.id,
		Mode:      mode,
		Criteria:  s.req.Criteria(),
		StartedAt: started,
	}
	var basis SolutionInput
	switch mode {
	case ModeFull:
		full := s.arbiter.Reconcile(ctx, s.req, results, failures)
		out.Full = &full
		basis = SolutionInput{Request: s.req, Results: results}
		full.Verdict.WhenSome(func(v JudgeVerdict) {
			basis.Verdict = &v
		})
	default:
		fast := s.aggregator.Combine(s.req, results, failures)
		out.Fast = &fast
		basis = SolutionInput{Request: s.req, Results: results, Leader: fast.Leader}
	}
	if ctx.Err() != nil {
		return Outcome{}, s.cancelled(ctx)
	}

	if s.req.WantSolution() && s.solver != nil {
		s.solve(ctx, basis, &out)
		if ctx.Err() != nil {
			return Outcome{}, s.cancelled(ctx)
		}
	}

	out.CompletedAt = s.now().UTC().Round(0)
	status := "completed"
	if out.Degraded() {
		status = "degraded"
	}
	s.mon.prometheus().IncrementSessions(mode, status)
	s.mon.emit(emit.LevelInfo, "session_end", "", map[string]interface{}{
		"status":   status,
		"results":  len(out.Results()),
		"failures": len(out.Failures()),
		"degraded": out.Degraded(),
		"solution": out.Solution != "",
		"duration": out.CompletedAt.Sub(started).String(),
		"verdict":  out.Verdict().IsSome(),
	})
	return out, nil
}

func (s *Session) solve(ctx context.Context, in SolutionInput, out *Outcome) {
	id := s.solver.ID()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.callSolver(callCtx, in)
	if err != nil {
		f := ClassifyError(id, err)
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			f.Kind = FailureTimeout
		}
		out.SolutionFailure = f
		s.mon.emit(emit.LevelWarn, "solution_end", id, map[string]interface{}{
			"status": "failed",
			"kind":   f.Kind.String(),
			"error":  f.Detail,
		})
		return
	}
	out.Solution = reply.Text
	cost := s.mon.recordUsage(id, reply.Model, reply.Usage)
	s.mon.emit(emit.LevelInfo, "solution_end", id, map[string]interface{}{
		"status":     "ok",
		"chars":      len(reply.Text),
		"model":      reply.Model,
		"tokens_in":  reply.Usage.InputTokens,
		"tokens_out": reply.Usage.OutputTokens,
		"cost_usd":   cost,
	})
}

// callSolver invokes the solver, turning a panic into a transport failure.
func (s *Session) callSolver(ctx context.Context, in SolutionInput) (reply SolutionReply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewBackendFailure(s.solver.ID(), FailureTransport, fmt.Sprintf("solver panicked: %v", r))
		}
	}()
	return s.solver.Solve(withMonitor(ctx, s.mon), in)
}

func (s *Session) cancelled(ctx context.Context) *SessionFailure {
	s.mon.prometheus().IncrementSessions(s.req.Mode(), "cancelled")
	s.mon.emit(emit.LevelWarn, "session_cancelled", "", map[string]interface{}{
		"error": ctx.Err().Error(),
	})
	return cancelled(ctx.Err().Error())
}
