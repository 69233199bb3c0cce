package review

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/dshills/mozart/review/emit"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/oklog/ulid/v2"
)

// SessionHandle identifies a session started by an Engine. Handles are
// ULIDs, so they sort by start time.
type SessionHandle string

// SessionStatus is the observable state of a session.
type SessionStatus int

const (
	SessionInProgress SessionStatus = iota
	SessionCompleted
	SessionCancelled
	SessionFailed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionInProgress:
		return "in_progress"
	case SessionCompleted:
		return "completed"
	case SessionCancelled:
		return "cancelled"
	case SessionFailed:
		return "failed"
	default:
		return fmt.Sprintf("session_status(%d)", int(s))
	}
}

type sessionEntry struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}

	// result is written once before done is closed.
	result fn.Result[Outcome]
}

// Engine owns the configured backends and runs review sessions.
//
// Example:
//
//	eng, err := review.NewEngine(cfg, backend.NewRegistry(creds), review.WithStore(st))
//	h, err := eng.StartReview(req)
//	for {
//	    status, outcome, err := eng.Poll(h)
//	    if status != review.SessionInProgress { ... }
//	}
//
// Safe for concurrent use.
type Engine struct {
	cfg       SessionConfig
	opts      engineConfig
	reviewers []ReviewerBackend
	judge     JudgeBackend
	solver    SolutionBackend

	mu       sync.RWMutex
	sessions map[SessionHandle]*sessionEntry

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewEngine validates cfg, builds every backend through factory and
// applies opts.
func NewEngine(cfg SessionConfig, factory BackendFactory, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: backend factory is nil", ErrInvalidConfig)
	}
	ec, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		opts:     ec,
		sessions: make(map[SessionHandle]*sessionEntry),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), // #nosec G404 -- ids, not secrets
	}

	for _, spec := range cfg.Reviewers {
		b, err := factory.NewReviewer(spec)
		if err != nil {
			return nil, fmt.Errorf("reviewer %s: %w", spec.ID, err)
		}
		if b.ID() != spec.ID {
			return nil, fmt.Errorf("%w: reviewer %s reports id %q", ErrInvalidConfig, spec.ID, b.ID())
		}
		if ec.retry != nil {
			b, err = NewRetryingBackend(b, *ec.retry)
			if err != nil {
				return nil, err
			}
		}
		e.reviewers = append(e.reviewers, b)
	}
	if cfg.Judge != nil {
		if e.judge, err = factory.NewJudge(*cfg.Judge); err != nil {
			return nil, fmt.Errorf("judge: %w", err)
		}
	}
	if cfg.Solver != nil {
		if e.solver, err = factory.NewSolver(*cfg.Solver); err != nil {
			return nil, fmt.Errorf("solver: %w", err)
		}
	}
	return e, nil
}

// Config returns the effective session configuration.
func (e *Engine) Config() SessionConfig { return e.cfg }

func (e *Engine) newHandle() SessionHandle {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return SessionHandle(ulid.MustNew(ulid.Timestamp(e.opts.now()), e.entropy).String())
}

// StartReview starts a session for req and returns immediately.
//
// A Full-mode request without a configured judge, or a solution request
// without a configured solver, fails fast with InvalidRequest.
func (e *Engine) StartReview(req ReviewRequest) (SessionHandle, error) {
	if len(req.criteria) == 0 {
		return "", invalidRequest("request was not built with NewReviewRequest")
	}
	if req.Mode() == ModeFull && e.judge == nil {
		return "", invalidRequest("full mode requires a judge backend")
	}
	if req.WantSolution() && e.solver == nil {
		return "", invalidRequest("solution requested but no solver backend is configured")
	}

	h := e.newHandle()
	s := e.newSession(string(h), req)
	ctx, cancel := context.WithCancel(context.Background())
	entry := &sessionEntry{session: s, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.sessions[h] = entry
	e.mu.Unlock()

	go e.run(ctx, entry)
	return h, nil
}

func (e *Engine) newSession(id string, req ReviewRequest) *Session {
	mon := newMonitor(id, &e.opts)
	s := &Session{
		id:         id,
		req:        req,
		timeout:    e.cfg.Timeout,
		reviewers:  e.reviewers,
		judge:      e.judge,
		solver:     e.solver,
		dispatcher: newDispatcher(mon, e.opts.now),
		mon:        mon,
		now:        e.opts.now,
	}
	if e.judge != nil {
		s.arbiter = newJudgeArbiter(e.judge, e.cfg.Timeout, &e.opts, mon)
	}
	return s
}

func (e *Engine) run(ctx context.Context, entry *sessionEntry) {
	defer close(entry.done)
	defer entry.cancel()

	out, err := entry.session.Run(ctx)
	if err != nil {
		entry.result = fn.Err[Outcome](err)
		return
	}
	e.persist(out)
	entry.result = fn.Ok(out)
}

func (e *Engine) persist(out Outcome) {
	if e.opts.store == nil {
		return
	}
	if err := e.opts.store.SaveOutcome(context.Background(), ToRecord(out)); err != nil {
		e.opts.emitter.Emit(emit.Event{
			SessionID: out.SessionID,
			Msg:       "store_failure",
			Level:     emit.LevelError,
			Meta:      map[string]interface{}{"error": err.Error()},
		})
	}
}

// Run starts a session for req and waits for it.
func (e *Engine) Run(ctx context.Context, req ReviewRequest) (Outcome, error) {
	h, err := e.StartReview(req)
	if err != nil {
		return Outcome{}, err
	}
	return e.Await(ctx, h)
}

func (e *Engine) entry(h SessionHandle) (*sessionEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.sessions[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, h)
	}
	return entry, nil
}

// Poll reports the session's status without blocking. The Outcome is set
// only for Completed; the error is the *SessionFailure for Cancelled and
// Failed.
func (e *Engine) Poll(h SessionHandle) (SessionStatus, Outcome, error) {
	entry, err := e.entry(h)
	if err != nil {
		return SessionFailed, Outcome{}, err
	}
	select {
	case <-entry.done:
		return settle(entry.result)
	default:
		return SessionInProgress, Outcome{}, nil
	}
}

// Await blocks until the session finishes or ctx ends. Ending ctx does not
// cancel the session; use Cancel for that.
func (e *Engine) Await(ctx context.Context, h SessionHandle) (Outcome, error) {
	entry, err := e.entry(h)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case <-entry.done:
		_, out, err := settle(entry.result)
		return out, err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func settle(r fn.Result[Outcome]) (SessionStatus, Outcome, error) {
	out, err := r.Unpack()
	if err != nil {
		var sf *SessionFailure
		if errors.As(err, &sf) && sf.Kind == Cancelled {
			return SessionCancelled, Outcome{}, err
		}
		return SessionFailed, Outcome{}, err
	}
	return SessionCompleted, out, nil
}

// Cancel requests cooperative cancellation. In-flight backend calls see
// their context cancelled; the session finishes as Cancelled unless it
// already completed. Cancelling a finished session is a no-op.
func (e *Engine) Cancel(h SessionHandle) error {
	entry, err := e.entry(h)
	if err != nil {
		return err
	}
	entry.cancel()
	return nil
}

// Release forgets a finished session. In-progress sessions are cancelled
// first.
func (e *Engine) Release(h SessionHandle) error {
	e.mu.Lock()
	entry, ok := e.sessions[h]
	delete(e.sessions, h)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, h)
	}
	entry.cancel()
	return nil
}

// Sessions returns the handles of every tracked session in start order.
func (e *Engine) Sessions() []SessionHandle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]SessionHandle, 0, len(e.sessions))
	for h := range e.sessions {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
