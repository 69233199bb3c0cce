package review

import (
	"context"
	"sync/atomic"

	"github.com/dshills/mozart/review/emit"
)

// monitor is the per-session handle on events, metrics and costs.
// A nil *monitor is a valid no-op.
type monitor struct {
	sessionID string
	emitter   emit.Emitter
	metrics   *PrometheusMetrics
	costs     *CostTracker
	seq       atomic.Int64
}

func newMonitor(sessionID string, cfg *engineConfig) *monitor {
	return &monitor{
		sessionID: sessionID,
		emitter:   cfg.emitter,
		metrics:   cfg.metrics,
		costs:     cfg.costs,
	}
}

func (m *monitor) emit(level emit.Level, msg, backendID string, meta map[string]interface{}) {
	if m == nil || m.emitter == nil {
		return
	}
	m.emitter.Emit(emit.Event{
		SessionID: m.sessionID,
		Seq:       int(m.seq.Add(1)),
		BackendID: backendID,
		Msg:       msg,
		Level:     level,
		Meta:      meta,
	})
}

func (m *monitor) recordUsage(backendID, model string, usage TokenUsage) float64 {
	if m == nil || m.costs == nil || usage.Total() == 0 {
		return 0
	}
	return m.costs.Record(m.sessionID, backendID, model, usage).CostUSD
}

func (m *monitor) prometheus() *PrometheusMetrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

type monitorKey struct{}

func withMonitor(ctx context.Context, m *monitor) context.Context {
	return context.WithValue(ctx, monitorKey{}, m)
}

func monitorFrom(ctx context.Context) *monitor {
	m, _ := ctx.Value(monitorKey{}).(*monitor)
	return m
}
