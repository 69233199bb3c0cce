package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricValue sums the counter or gauge samples of name whose labels
// include want. It returns the value and the number of matching series.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) (float64, int) {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sum float64
	series := 0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range want {
				if labels[k] != v {
					match = false
				}
			}
			if !match {
				continue
			}
			series++
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return sum, series
}

// TestPrometheusMetrics verifies engine sessions update the collectors.
func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	factory := StaticFactory{Reviewers: map[string]ReviewerBackend{
		"a": NewMockBackend("a", 70),
		"b": &MockBackend{BackendID: "b", Err: errors.New("boom")},
	}}
	eng, err := NewEngine(SessionConfig{Reviewers: specs("a", "b"), Timeout: time.Second}, factory, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Run(context.Background(), mustRequest(t, ModeFast)); err != nil {
		t.Fatal(err)
	}

	if got, _ := metricValue(t, reg, "mozart_backend_failures_total", map[string]string{"backend": "b", "kind": "transport_error"}); got != 1 {
		t.Errorf("backend_failures_total{b} = %v, want 1", got)
	}
	if got, _ := metricValue(t, reg, "mozart_sessions_total", map[string]string{"mode": "fast", "status": "degraded"}); got != 1 {
		t.Errorf("sessions_total{fast,degraded} = %v, want 1", got)
	}
	if got, _ := metricValue(t, reg, "mozart_inflight_backends", nil); got != 0 {
		t.Errorf("inflight_backends = %v, want 0", got)
	}
	if _, n := metricValue(t, reg, "mozart_backend_latency_ms", nil); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

// TestPrometheusMetricsDisable verifies Disable stops recording.
func TestPrometheusMetricsDisable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)
	m.Disable()
	m.IncrementClamped("a")
	if _, n := metricValue(t, reg, "mozart_clamped_scores_total", nil); n != 0 {
		t.Errorf("disabled metrics recorded %d series", n)
	}
	m.Enable()
	m.IncrementClamped("a")
	if got, _ := metricValue(t, reg, "mozart_clamped_scores_total", map[string]string{"backend": "a"}); got != 1 {
		t.Errorf("clamped = %v, want 1", got)
	}

	var nilMetrics *PrometheusMetrics
	nilMetrics.IncrementRetries("a", FailureTimeout)
}
