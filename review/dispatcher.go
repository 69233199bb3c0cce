package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/mozart/review/emit"
)

// Dispatcher fans a request out to reviewer backends in parallel.
type Dispatcher struct {
	mon *monitor
	now func() time.Time
}

// NewDispatcher returns a Dispatcher that reports through the emitter and
// metrics configured by opts.
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return newDispatcher(newMonitor("", &cfg), cfg.now), nil
}

func newDispatcher(mon *monitor, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{mon: mon, now: now}
}

type slot struct {
	index   int
	result  ReviewerResult
	clamps  []clampNote
	failure *BackendFailure
}

type clampNote struct {
	criterion CriterionID
	raw       int
	score     int
}

// FetchAll invokes every backend concurrently, each under its own timeout,
// and returns the successful results and the failures, both in
// registration order.
//
// FetchAll returns no later than timeout after it is called, even if a
// backend ignores its context: unfinished backends are recorded as Timeout
// and their late replies are dropped. Cancelling ctx propagates to every
// in-flight call and makes FetchAll return promptly, with unfinished
// backends recorded as TransportError.
func (d *Dispatcher) FetchAll(ctx context.Context, backends []ReviewerBackend, req ReviewRequest, timeout time.Duration) ([]ReviewerResult, []BackendFailure) {
	if len(backends) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	callCtx = withMonitor(callCtx, d.mon)

	// Buffered so abandoned goroutines never block.
	done := make(chan slot, len(backends))
	for i, b := range backends {
		go func(i int, b ReviewerBackend) {
			done <- d.call(callCtx, i, b, req, timeout)
		}(i, b)
	}

	slots := make([]*slot, len(backends))
	pending := len(backends)
	start := d.now()
	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()

	for pending > 0 {
		select {
		case s := <-done:
			slots[s.index] = &s
			pending--
			d.report(backends[s.index], s)
		case <-watchdog.C:
			d.abandon(slots, backends, FailureTimeout, fmt.Sprintf("no reply within %s", timeout), d.now().Sub(start))
			pending = 0
		case <-ctx.Done():
			d.abandon(slots, backends, FailureTransport, "cancelled: "+ctx.Err().Error(), d.now().Sub(start))
			pending = 0
		}
	}

	var results []ReviewerResult
	var failures []BackendFailure
	for _, s := range slots {
		if s.failure != nil {
			failures = append(failures, *s.failure)
			continue
		}
		results = append(results, s.result)
	}
	return results, failures
}

func (d *Dispatcher) abandon(slots []*slot, backends []ReviewerBackend, kind FailureKind, detail string, elapsed time.Duration) {
	for i, s := range slots {
		if s != nil {
			continue
		}
		f := NewBackendFailure(backends[i].ID(), kind, detail)
		f.Latency = elapsed
		slots[i] = &slot{index: i, failure: f}
		d.reportFailure(backends[i], f)
	}
}

func (d *Dispatcher) call(ctx context.Context, index int, b ReviewerBackend, req ReviewRequest, timeout time.Duration) (out slot) {
	out.index = index
	id := b.ID()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.mon.emit(emit.LevelInfo, "backend_start", id, map[string]interface{}{"provider": b.Provider()})
	d.mon.prometheus().BackendStarted()
	defer d.mon.prometheus().BackendFinished()

	start := d.now()
	defer func() {
		if r := recover(); r != nil {
			f := NewBackendFailure(id, FailureTransport, fmt.Sprintf("backend panicked: %v", r))
			f.Latency = d.now().Sub(start)
			out.failure = f
		}
	}()

	res, err := b.Review(callCtx, req)
	latency := d.now().Sub(start)
	if err != nil {
		f := ClassifyError(id, err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			f.Kind = FailureTimeout
		}
		f.Latency = latency
		out.failure = f
		return out
	}

	res, clamps, f := d.normalize(b, req, res)
	if f != nil {
		f.Latency = latency
		out.failure = f
		return out
	}
	res.Latency = latency
	out.result = res
	out.clamps = clamps
	return out
}

// report runs on the collecting goroutine so replies that arrive after the
// watchdog fired are never reported twice.
func (d *Dispatcher) report(b ReviewerBackend, s slot) {
	if s.failure != nil {
		d.reportFailure(b, s.failure)
		return
	}
	res := s.result
	for _, c := range s.clamps {
		d.mon.prometheus().IncrementClamped(res.ReviewerID)
		d.mon.emit(emit.LevelWarn, "clamp_warning", res.ReviewerID, map[string]interface{}{
			"criterion": string(c.criterion),
			"raw":       c.raw,
			"clamped":   c.score,
		})
	}
	d.mon.prometheus().RecordBackendLatency(res.ReviewerID, b.Provider(), res.Latency, StatusOK)
	cost := d.mon.recordUsage(res.ReviewerID, res.Model, res.Usage)
	d.mon.emit(emit.LevelInfo, "backend_end", res.ReviewerID, map[string]interface{}{
		"latency_ms":    res.Latency.Milliseconds(),
		"overall_score": res.OverallScore,
		"model":         res.Model,
		"tokens_in":     res.Usage.InputTokens,
		"tokens_out":    res.Usage.OutputTokens,
		"cost_usd":      cost,
	})
}

// normalize enforces the result invariants: every requested criterion is
// present, scores are clamped into range, and OverallScore is recomputed.
// Unrequested criteria are dropped.
func (d *Dispatcher) normalize(b ReviewerBackend, req ReviewRequest, res ReviewerResult) (ReviewerResult, []clampNote, *BackendFailure) {
	id := b.ID()
	var clamps []clampNote
	criteria := req.Criteria()
	scores := make(map[CriterionID]CriterionScore, len(criteria))
	warnings := append([]string(nil), res.Warnings...)

	for _, c := range criteria {
		cs, ok := res.Criteria[c]
		if !ok {
			return ReviewerResult{}, nil, Malformed(id, "missing score for criterion %q", c)
		}
		if clamped, moved := ClampScore(cs.Score); moved {
			msg := fmt.Sprintf("%s score %d clamped to %d", c, cs.Score, clamped)
			warnings = append(warnings, msg)
			clamps = append(clamps, clampNote{criterion: c, raw: cs.Score, score: clamped})
			cs.Score = clamped
		}
		scores[c] = cs
	}

	res.ReviewerID = id
	if res.ProviderName == "" {
		res.ProviderName = b.Provider()
	}
	res.Criteria = scores
	res.OverallScore = ComputeOverall(scores, criteria)
	res.Status = StatusOK
	res.Reason = ""
	res.Warnings = warnings
	return res, clamps, nil
}

func (d *Dispatcher) reportFailure(b ReviewerBackend, f *BackendFailure) {
	d.mon.prometheus().RecordBackendLatency(f.ReviewerID, b.Provider(), f.Latency, f.Status())
	d.mon.prometheus().IncrementBackendFailures(f.ReviewerID, f.Kind)
	d.mon.emit(emit.LevelWarn, "backend_failure", f.ReviewerID, map[string]interface{}{
		"kind":       f.Kind.String(),
		"error":      f.Detail,
		"latency_ms": f.Latency.Milliseconds(),
	})
}
