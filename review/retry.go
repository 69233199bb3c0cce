package review

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/dshills/mozart/review/emit"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy configures RetryingBackend.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first. Must be >= 1.
	MaxAttempts int

	// BaseDelay is the first backoff delay; each retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the exponential part of the backoff. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// Nil uses DefaultRetryable.
	Retryable func(*BackendFailure) bool
}

// DefaultRetryable retries rate limits and transport errors.
func DefaultRetryable(f *BackendFailure) bool {
	return f.Kind == FailureRateLimited || f.Kind == FailureTransport
}

// Validate checks the policy.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BaseDelay < 0 || rp.MaxDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff returns min(base*2^attempt, maxDelay) plus jitter in
// [0, base). Without a maxDelay the exponential part saturates instead of
// overflowing.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	limit := maxDelay
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64) - base
	}
	var delay time.Duration
	if base > limit>>attempt {
		delay = limit
	} else {
		delay = base << attempt
		if delay > limit {
			delay = limit
		}
	}
	return delay + time.Duration(rng.Int63n(int64(base)))
}

// RetryingBackend decorates a ReviewerBackend with retry-with-backoff. It
// is never installed implicitly; see WithRetryPolicy.
type RetryingBackend struct {
	inner  ReviewerBackend
	policy RetryPolicy

	mu  sync.Mutex
	rng *rand.Rand

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingBackend wraps inner with policy.
func NewRetryingBackend(inner ReviewerBackend, policy RetryPolicy) (*RetryingBackend, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.Retryable == nil {
		policy.Retryable = DefaultRetryable
	}
	return &RetryingBackend{
		inner:  inner,
		policy: policy,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
		sleep:  sleepContext,
	}, nil
}

func (b *RetryingBackend) ID() string       { return b.inner.ID() }
func (b *RetryingBackend) Provider() string { return b.inner.Provider() }

// Unwrap returns the decorated backend.
func (b *RetryingBackend) Unwrap() ReviewerBackend { return b.inner }

// Review calls the inner backend until it succeeds, returns a
// non-retryable failure, runs out of attempts, or ctx ends.
func (b *RetryingBackend) Review(ctx context.Context, req ReviewRequest) (ReviewerResult, error) {
	mon := monitorFrom(ctx)
	var last *BackendFailure
	for attempt := 0; attempt < b.policy.MaxAttempts; attempt++ {
		res, err := b.inner.Review(ctx, req)
		if err == nil {
			return res, nil
		}
		last = ClassifyError(b.ID(), err)
		if attempt == b.policy.MaxAttempts-1 || !b.policy.Retryable(last) || ctx.Err() != nil {
			break
		}

		b.mu.Lock()
		delay := computeBackoff(attempt, b.policy.BaseDelay, b.policy.MaxDelay, b.rng)
		b.mu.Unlock()

		mon.prometheus().IncrementRetries(b.ID(), last.Kind)
		mon.emit(emit.LevelWarn, "retry_attempt", b.ID(), map[string]interface{}{
			"attempt":  attempt + 1,
			"kind":     last.Kind.String(),
			"delay_ms": delay.Milliseconds(),
			"error":    last.Detail,
		})
		if err := b.sleep(ctx, delay); err != nil {
			break
		}
	}
	return ReviewerResult{}, last
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
