package review

import "context"

// ReviewerBackend is one LLM-backed code reviewer.
//
// Review issues exactly one outbound call per invocation and never retries.
// The per-call timeout arrives as the deadline of ctx. Any returned error
// should be a *BackendFailure; other errors are classified with
// ClassifyError.
type ReviewerBackend interface {
	// ID is the stable reviewer id, unique within a session.
	ID() string

	// Provider names the provider family (openai, deepseek, ...).
	Provider() string

	Review(ctx context.Context, req ReviewRequest) (ReviewerResult, error)
}

// JudgeInput is what a judge backend reconciles.
type JudgeInput struct {
	Request ReviewRequest

	// Results are the successful reviewer results in registration order.
	Results []ReviewerResult
}

// JudgeWinner is the judge's stated winner for one criterion.
type JudgeWinner struct {
	// ReviewerID is a reviewer id or "tie".
	ReviewerID string

	// Rationale explains a divergence from pure score comparison. A winner
	// without a rationale never overrides the score-based winner.
	Rationale string
}

// JudgeReply is a judge backend's parsed reply.
type JudgeReply struct {
	Summary string

	// Score is the judge's synthesized score on the 0-100 scale. It is
	// clamped, never recomputed.
	Score int

	Rationale          string
	Winners            map[CriterionID]JudgeWinner
	RecommendedChanges []string

	Warnings []string
	Model    string
	Usage    TokenUsage
}

// JudgeBackend reconciles reviewer results in Full mode.
type JudgeBackend interface {
	ID() string
	Provider() string
	Judge(ctx context.Context, in JudgeInput) (JudgeReply, error)
}

// SolutionInput is what a solution backend works from.
type SolutionInput struct {
	Request ReviewRequest

	// Results are the successful reviewer results in registration order.
	Results []ReviewerResult

	// Leader is the reviewer id whose review forms the basis in Fast mode.
	Leader string

	// Verdict is the merged review in Full mode, when the judge succeeded.
	Verdict *JudgeVerdict
}

// SolutionReply is the plain-text improved answer.
type SolutionReply struct {
	Text  string
	Model string
	Usage TokenUsage
}

// SolutionBackend produces an improved final answer after arbitration.
type SolutionBackend interface {
	ID() string
	Provider() string
	Solve(ctx context.Context, in SolutionInput) (SolutionReply, error)
}

// BackendFactory builds backends from their specs. backend.Registry is the
// production implementation.
type BackendFactory interface {
	NewReviewer(spec BackendSpec) (ReviewerBackend, error)
	NewJudge(spec BackendSpec) (JudgeBackend, error)
	NewSolver(spec BackendSpec) (SolutionBackend, error)
}
