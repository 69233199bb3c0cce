package backend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/model"
)

var reviewerSpec = review.BackendSpec{ID: "a", DisplayName: "Alice", Provider: "openai", Model: "gpt-4o"}

func reviewFailure(t *testing.T, err error) *review.BackendFailure {
	t.Helper()
	var bf *review.BackendFailure
	if !errors.As(err, &bf) {
		t.Fatalf("error %v (%T) is not a *review.BackendFailure", err, err)
	}
	return bf
}

// TestChatReviewer_Review verifies a well-formed reply becomes a result.
func TestChatReviewer_Review(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{
		Text:  `{"summary":"fine","grade":"approve","scores":{"correctness":{"score":90,"rationale":"ok"},"security":71}}`,
		Model: "gpt-4o-2024-08-06",
		Usage: model.Usage{InputTokens: 120, OutputTokens: 40},
	}}}
	r := NewChatReviewer(reviewerSpec, chat, JSONObjectDialect{})
	req := mustRequest(t, review.ModeFast, review.Security, review.Correctness)

	got, err := r.Review(context.Background(), req)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.ReviewerID != "a" || got.DisplayName != "Alice" || got.ProviderName != "openai" {
		t.Errorf("identity = %s/%s/%s", got.ReviewerID, got.DisplayName, got.ProviderName)
	}
	if got.Model != "gpt-4o-2024-08-06" {
		t.Errorf("Model = %q", got.Model)
	}
	if got.OverallScore != 81 {
		t.Errorf("OverallScore = %d, want 81", got.OverallScore)
	}
	if got.Usage.InputTokens != 120 || got.Usage.OutputTokens != 40 {
		t.Errorf("Usage = %+v", got.Usage)
	}
	if got.Summary != "fine" || got.Grade != "approve" {
		t.Errorf("Summary/Grade = %q/%q", got.Summary, got.Grade)
	}

	if chat.CallCount() != 1 {
		t.Fatalf("calls = %d, want 1", chat.CallCount())
	}
	call := chat.Calls[0]
	if len(call.Messages) != 2 || call.Messages[0].Role != model.RoleSystem || call.Messages[1].Role != model.RoleUser {
		t.Fatalf("messages = %+v", call.Messages)
	}
	if !call.Options.JSON || call.Options.MaxTokens != DefaultMaxTokens {
		t.Errorf("options = %+v", call.Options)
	}
	if !strings.Contains(call.Messages[1].Content, req.Code()) {
		t.Error("user prompt does not carry the code")
	}
}

// TestChatReviewer_ModelFallback verifies the configured model is used when the
// provider omits one.
func TestChatReviewer_ModelFallback(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: `{"scores":{"correctness":50}}`}}}
	r := NewChatReviewer(reviewerSpec, chat, JSONObjectDialect{})

	got, err := r.Review(context.Background(), mustRequest(t, review.ModeFast, review.Correctness))
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", got.Model)
	}
}

// TestChatReviewer_Fenced verifies the fenced dialect end to end.
func TestChatReviewer_Fenced(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{
		Text: "Here is my review.\n```json\n{\"scores\":{\"correctness\":64}}\n```\n",
	}}}
	r := NewChatReviewer(review.BackendSpec{ID: "c", Provider: "anthropic"}, chat, FencedJSONDialect{})

	got, err := r.Review(context.Background(), mustRequest(t, review.ModeFast, review.Correctness))
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.Criteria[review.Correctness].Score != 64 {
		t.Errorf("score = %d, want 64", got.Criteria[review.Correctness].Score)
	}
	if chat.Calls[0].Options.JSON {
		t.Error("fenced dialect must not request JSON mode")
	}
}

// TestChatReviewer_Failures verifies errors map to failure kinds.
func TestChatReviewer_Failures(t *testing.T) {
	tests := []struct {
		name string
		chat *model.MockChatModel
		want review.FailureKind
	}{
		{
			name: "rate limited",
			chat: &model.MockChatModel{Err: &model.ProviderError{Provider: "openai", StatusCode: 429, Message: "slow down"}},
			want: review.FailureRateLimited,
		},
		{
			name: "auth",
			chat: &model.MockChatModel{Err: &model.ProviderError{Provider: "openai", StatusCode: 401, Message: "bad key"}},
			want: review.FailureAuth,
		},
		{
			name: "transport",
			chat: &model.MockChatModel{Err: errors.New("connection reset by peer")},
			want: review.FailureTransport,
		},
		{
			name: "prose reply",
			chat: &model.MockChatModel{Responses: []model.ChatOut{{Text: "Looks good to me!"}}},
			want: review.FailureMalformed,
		},
		{
			name: "missing criterion",
			chat: &model.MockChatModel{Responses: []model.ChatOut{{Text: `{"scores":{"security":10}}`}}},
			want: review.FailureMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChatReviewer(reviewerSpec, tt.chat, JSONObjectDialect{})
			_, err := r.Review(context.Background(), mustRequest(t, review.ModeFast, review.Correctness))
			bf := reviewFailure(t, err)
			if bf.Kind != tt.want {
				t.Errorf("Kind = %v, want %v (%v)", bf.Kind, tt.want, bf)
			}
			if bf.ReviewerID != "a" {
				t.Errorf("ReviewerID = %q", bf.ReviewerID)
			}
		})
	}
}

// TestChatReviewer_Deadline verifies an expired deadline is a Timeout.
func TestChatReviewer_Deadline(t *testing.T) {
	chat := &model.MockChatModel{Delay: time.Second}
	r := NewChatReviewer(reviewerSpec, chat, JSONObjectDialect{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Review(ctx, mustRequest(t, review.ModeFast, review.Correctness))
	if bf := reviewFailure(t, err); bf.Kind != review.FailureTimeout {
		t.Errorf("Kind = %v, want timeout", bf.Kind)
	}
}

// TestChatJudge_Judge verifies the judge parses winners and records usage.
func TestChatJudge_Judge(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{
		Text:  `{"summary":"m","score":77,"rationale":"r","winners":{"correctness":{"winner":"b","rationale":"b found the bug"}},"recommended_changes":["fix it"]}`,
		Usage: model.Usage{InputTokens: 300, OutputTokens: 60},
	}}}
	j := NewChatJudge(review.BackendSpec{ID: "judge", Provider: "google", Model: "gemini-1.5-pro"}, chat, SchemaDialect{})
	req := mustRequest(t, review.ModeFull, review.Correctness)
	in := review.JudgeInput{Request: req, Results: []review.ReviewerResult{{ReviewerID: "a"}, {ReviewerID: "b"}}}

	got, err := j.Judge(context.Background(), in)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if got.Score != 77 || got.Winners[review.Correctness].ReviewerID != "b" {
		t.Errorf("reply = %+v", got)
	}
	if got.Model != "gemini-1.5-pro" || got.Usage.Total() != 360 {
		t.Errorf("Model/Usage = %q/%+v", got.Model, got.Usage)
	}
	opts := chat.Calls[0].Options
	if !opts.JSON || opts.Schema == nil || opts.Schema.Properties["winners"] == nil {
		t.Errorf("schema dialect options = %+v", opts)
	}
	if !strings.Contains(chat.Calls[0].Messages[1].Content, "a, b") {
		t.Error("judge prompt does not list reviewer ids")
	}
}

// TestChatJudge_Malformed verifies a reply without a score fails.
func TestChatJudge_Malformed(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: `{"summary":"m"}`}}}
	j := NewChatJudge(review.BackendSpec{ID: "judge", Provider: "openai"}, chat, JSONObjectDialect{})
	in := review.JudgeInput{Request: mustRequest(t, review.ModeFull, review.Correctness)}

	_, err := j.Judge(context.Background(), in)
	if bf := reviewFailure(t, err); bf.Kind != review.FailureMalformed || bf.ReviewerID != "judge" {
		t.Errorf("failure = %+v", bf)
	}
}

// TestChatSolver_Solve verifies the plain-text solution call.
func TestChatSolver_Solve(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "  func add(a, b int64) int64 { return a + b }\n"}}}
	s := NewChatSolver(review.BackendSpec{ID: "solver", Provider: "openai", Model: "gpt-4o"}, chat)
	req := mustRequest(t, review.ModeFast, review.Correctness)

	got, err := s.Solve(context.Background(), review.SolutionInput{Request: req, Leader: "a"})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got.Text != "func add(a, b int64) int64 { return a + b }" {
		t.Errorf("Text = %q", got.Text)
	}
	if chat.Calls[0].Options.JSON {
		t.Error("solution call must be plain text")
	}

	empty := NewChatSolver(review.BackendSpec{ID: "solver", Provider: "openai"}, &model.MockChatModel{})
	_, err = empty.Solve(context.Background(), review.SolutionInput{Request: req})
	if bf := reviewFailure(t, err); bf.Kind != review.FailureMalformed {
		t.Errorf("Kind = %v, want malformed", bf.Kind)
	}
}
