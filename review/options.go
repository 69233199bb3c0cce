package review

import (
	"fmt"
	"time"

	"github.com/dshills/mozart/review/emit"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	eng, err := review.NewEngine(cfg, registry,
//	    review.WithEmitter(emit.NewLogEmitter(os.Stderr, true)),
//	    review.WithMetrics(review.NewPrometheusMetrics(reg)),
//	    review.WithSuggestionSimilarity(0.7),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	emitter    emit.Emitter
	metrics    *PrometheusMetrics
	costs      *CostTracker
	store      OutcomeStore
	retry      *RetryPolicy
	similarity float64
	now        func() time.Time
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		emitter:    emit.NewNullEmitter(),
		similarity: DefaultSuggestionSimilarity,
		now:        time.Now,
	}
}

func applyOptions(opts []Option) (engineConfig, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return engineConfig{}, err
		}
	}
	return cfg, nil
}

// WithEmitter sets the observability event sink. Default: NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithCostTracker records token usage and cost for every provider call.
func WithCostTracker(ct *CostTracker) Option {
	return func(cfg *engineConfig) error {
		cfg.costs = ct
		return nil
	}
}

// WithStore persists every completed Outcome as a Record.
func WithStore(s OutcomeStore) Option {
	return func(cfg *engineConfig) error {
		cfg.store = s
		return nil
	}
}

// WithRetryPolicy wraps every reviewer backend in a RetryingBackend.
// The whole retried call stays bounded by the session timeout.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *engineConfig) error {
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.retry = &p
		return nil
	}
}

// WithSuggestionSimilarity sets the token-set similarity at or above which
// two suggestions are considered duplicates. Must be in (0, 1].
// Default: DefaultSuggestionSimilarity.
func WithSuggestionSimilarity(threshold float64) Option {
	return func(cfg *engineConfig) error {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("suggestion similarity must be in (0, 1], got %v", threshold)
		}
		cfg.similarity = threshold
		return nil
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		cfg.now = now
		return nil
	}
}
