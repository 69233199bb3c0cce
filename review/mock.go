package review

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBackend is a scripted ReviewerBackend for tests.
//
// Result is returned (with ReviewerID filled in) unless Err is set. Delay
// simulates latency and honours ctx. When IgnoreContext is set the backend
// sleeps the full Delay regardless of cancellation.
type MockBackend struct {
	BackendID     string
	ProviderName  string
	Result        ReviewerResult
	ResultFunc    func(req ReviewRequest) ReviewerResult
	Err           error
	Delay         time.Duration
	IgnoreContext bool

	mu    sync.Mutex
	calls int
}

// NewMockBackend returns a MockBackend that scores every requested
// criterion with score.
func NewMockBackend(id string, score int) *MockBackend {
	return &MockBackend{
		BackendID:    id,
		ProviderName: "mock",
		ResultFunc: func(req ReviewRequest) ReviewerResult {
			scores := make(map[CriterionID]CriterionScore)
			for _, c := range req.Criteria() {
				scores[c] = CriterionScore{
					Score:       score,
					Rationale:   fmt.Sprintf("%s looks %d/100", c, score),
					Suggestions: []string{fmt.Sprintf("improve %s", c)},
				}
			}
			return ReviewerResult{Criteria: scores, Summary: "mock review", Grade: "approve"}
		},
	}
}

func (m *MockBackend) ID() string { return m.BackendID }

func (m *MockBackend) Provider() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockBackend) Review(ctx context.Context, req ReviewRequest) (ReviewerResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := mockSleep(ctx, m.Delay, m.IgnoreContext); err != nil {
		return ReviewerResult{}, err
	}
	if m.Err != nil {
		return ReviewerResult{}, m.Err
	}
	res := m.Result
	if m.ResultFunc != nil {
		res = m.ResultFunc(req)
	}
	res.ReviewerID = m.BackendID
	return res, nil
}

// CallCount returns the number of Review invocations.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockJudge is a scripted JudgeBackend for tests.
type MockJudge struct {
	BackendID string
	Reply     JudgeReply
	ReplyFunc func(in JudgeInput) JudgeReply
	Err       error
	Delay     time.Duration

	mu     sync.Mutex
	inputs []JudgeInput
}

func (m *MockJudge) ID() string {
	if m.BackendID == "" {
		return "judge"
	}
	return m.BackendID
}

func (m *MockJudge) Provider() string { return "mock" }

func (m *MockJudge) Judge(ctx context.Context, in JudgeInput) (JudgeReply, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()

	if err := mockSleep(ctx, m.Delay, false); err != nil {
		return JudgeReply{}, err
	}
	if m.Err != nil {
		return JudgeReply{}, m.Err
	}
	if m.ReplyFunc != nil {
		return m.ReplyFunc(in), nil
	}
	return m.Reply, nil
}

// Inputs returns every JudgeInput received.
func (m *MockJudge) Inputs() []JudgeInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JudgeInput(nil), m.inputs...)
}

// MockSolver is a scripted SolutionBackend for tests.
type MockSolver struct {
	Text string
	Err  error

	mu     sync.Mutex
	inputs []SolutionInput
}

func (m *MockSolver) ID() string       { return "solver" }
func (m *MockSolver) Provider() string { return "mock" }

func (m *MockSolver) Solve(ctx context.Context, in SolutionInput) (SolutionReply, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	if m.Err != nil {
		return SolutionReply{}, m.Err
	}
	return SolutionReply{Text: m.Text, Model: "mock"}, nil
}

// Inputs returns every SolutionInput received.
func (m *MockSolver) Inputs() []SolutionInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SolutionInput(nil), m.inputs...)
}

func mockSleep(ctx context.Context, d time.Duration, ignoreCtx bool) error {
	if d <= 0 {
		return nil
	}
	if ignoreCtx {
		time.Sleep(d)
		return nil
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

// StaticFactory is a BackendFactory over pre-built backends, keyed by
// BackendSpec.ID.
type StaticFactory struct {
	Reviewers map[string]ReviewerBackend
	Judge     JudgeBackend
	Solver    SolutionBackend
}

func (f StaticFactory) NewReviewer(spec BackendSpec) (ReviewerBackend, error) {
	b, ok := f.Reviewers[spec.ID]
	if !ok {
		return nil, fmt.Errorf("no reviewer registered for %q", spec.ID)
	}
	return b, nil
}

func (f StaticFactory) NewJudge(spec BackendSpec) (JudgeBackend, error) {
	if f.Judge == nil {
		return nil, fmt.Errorf("no judge registered for %q", spec.ID)
	}
	return f.Judge, nil
}

func (f StaticFactory) NewSolver(spec BackendSpec) (SolutionBackend, error) {
	if f.Solver == nil {
		return nil, fmt.Errorf("no solver registered for %q", spec.ID)
	}
	return f.Solver, nil
}
