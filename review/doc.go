// Package review is the orchestration core of mozart: it fans a code review
// request out to several LLM-backed reviewer backends, normalizes their
// replies into a common score model, and reconciles them.
//
// Two arbitration modes are supported:
//
//   - Fast: every successful reviewer result is returned side by side,
//     criterion by criterion, without blending scores.
//   - Full: a designated judge backend reconciles the reviewer outputs into
//     one JudgeVerdict. A failed judge degrades the outcome to the Fast-mode
//     equivalent; reviewer data is never discarded.
//
// Backend failures are data (BackendFailure values inside the Outcome).
// Only session-level conditions (no reviewer succeeded, cancellation, an
// invalid request) surface as *SessionFailure.
//
// Basic usage:
//
//	eng, err := review.NewEngine(cfg, backend.NewRegistry(creds),
//	    review.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	)
//	req, err := review.NewReviewRequest(review.RequestParams{
//	    Code:     src,
//	    Goal:     "make the parser safe for untrusted input",
//	    Criteria: []review.CriterionID{review.Correctness, review.Security},
//	    Mode:     review.ModeFull,
//	})
//	handle, err := eng.StartReview(req)
//	outcome, err := eng.Await(ctx, handle)
//
// No retries happen inside the core. Callers that want retry-with-backoff
// opt in with WithRetryPolicy, which wraps each reviewer in a
// RetryingBackend bounded by the same per-backend timeout.
package review
