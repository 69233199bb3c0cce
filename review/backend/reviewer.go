package backend

import (
	"context"
	"strings"

	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/model"
)

// DefaultMaxTokens caps structured replies.
const DefaultMaxTokens = 4096

// ChatReviewer is a review.ReviewerBackend over a chat model.
type ChatReviewer struct {
	spec      review.BackendSpec
	chat      model.ChatModel
	dialect   Dialect
	maxTokens int
}

// NewChatReviewer wraps chat as the reviewer described by spec.
func NewChatReviewer(spec review.BackendSpec, chat model.ChatModel, dialect Dialect) *ChatReviewer {
	return &ChatReviewer{spec: spec, chat: chat, dialect: dialect, maxTokens: DefaultMaxTokens}
}

func (r *ChatReviewer) ID() string { return r.spec.ID }

func (r *ChatReviewer) Provider() string { return r.spec.Provider }

// Review sends one chat call and parses the reply. Errors are always
// *review.BackendFailure.
func (r *ChatReviewer) Review(ctx context.Context, req review.ReviewRequest) (review.ReviewerResult, error) {
	criteria := req.Criteria()
	messages := []model.Message{
		{Role: model.RoleSystem, Content: reviewerSystemPrompt(criteria, r.dialect)},
		{Role: model.RoleUser, Content: reviewerUserPrompt(req)},
	}
	opts := r.dialect.Options(reviewSchema(criteria))
	opts.MaxTokens = r.maxTokens

	out, err := r.chat.Chat(ctx, messages, opts)
	if err != nil {
		return review.ReviewerResult{}, review.ClassifyError(r.spec.ID, err)
	}
	doc, err := r.dialect.Extract(out.Text)
	if err != nil {
		return review.ReviewerResult{}, review.Malformed(r.spec.ID, "%v", err)
	}
	parsed, err := parseReview(doc, criteria)
	if err != nil {
		return review.ReviewerResult{}, review.Malformed(r.spec.ID, "%v", err)
	}

	return review.ReviewerResult{
		ReviewerID:   r.spec.ID,
		DisplayName:  r.spec.Label(),
		ProviderName: r.spec.Provider,
		Model:        modelName(out, r.spec),
		Criteria:     parsed.Scores,
		OverallScore: review.ComputeOverall(parsed.Scores, criteria),
		Summary:      parsed.Summary,
		Grade:        parsed.Grade,
		Status:       review.StatusOK,
		Warnings:     parsed.Warnings,
		Usage:        usage(out),
	}, nil
}

func modelName(out model.ChatOut, spec review.BackendSpec) string {
	if out.Model != "" {
		return out.Model
	}
	return spec.Model
}

func usage(out model.ChatOut) review.TokenUsage {
	return review.TokenUsage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens}
}

// ChatJudge is a review.JudgeBackend over a chat model.
type ChatJudge struct {
	spec      review.BackendSpec
	chat      model.ChatModel
	dialect   Dialect
	maxTokens int
}

// NewChatJudge wraps chat as the judge described by spec.
func NewChatJudge(spec review.BackendSpec, chat model.ChatModel, dialect Dialect) *ChatJudge {
	return &ChatJudge{spec: spec, chat: chat, dialect: dialect, maxTokens: DefaultMaxTokens}
}

func (j *ChatJudge) ID() string { return j.spec.ID }

func (j *ChatJudge) Provider() string { return j.spec.Provider }

// Judge sends one arbitration call over every successful review.
func (j *ChatJudge) Judge(ctx context.Context, in review.JudgeInput) (review.JudgeReply, error) {
	criteria := in.Request.Criteria()
	messages := []model.Message{
		{Role: model.RoleSystem, Content: judgeSystemPrompt(criteria, j.dialect)},
		{Role: model.RoleUser, Content: judgeUserPrompt(in)},
	}
	opts := j.dialect.Options(judgeSchema(criteria))
	opts.MaxTokens = j.maxTokens

	out, err := j.chat.Chat(ctx, messages, opts)
	if err != nil {
		return review.JudgeReply{}, review.ClassifyError(j.spec.ID, err)
	}
	doc, err := j.dialect.Extract(out.Text)
	if err != nil {
		return review.JudgeReply{}, review.Malformed(j.spec.ID, "%v", err)
	}
	reply, err := parseJudge(doc, criteria)
	if err != nil {
		return review.JudgeReply{}, review.Malformed(j.spec.ID, "%v", err)
	}
	reply.Model = modelName(out, j.spec)
	reply.Usage = usage(out)
	return reply, nil
}

// ChatSolver is a review.SolutionBackend over a chat model. Replies are
// plain text.
type ChatSolver struct {
	spec      review.BackendSpec
	chat      model.ChatModel
	maxTokens int
}

// NewChatSolver wraps chat as the solver described by spec.
func NewChatSolver(spec review.BackendSpec, chat model.ChatModel) *ChatSolver {
	return &ChatSolver{spec: spec, chat: chat, maxTokens: DefaultMaxTokens}
}

func (s *ChatSolver) ID() string { return s.spec.ID }

func (s *ChatSolver) Provider() string { return s.spec.Provider }

// Solve asks for an improved final answer or patch.
func (s *ChatSolver) Solve(ctx context.Context, in review.SolutionInput) (review.SolutionReply, error) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: solutionSystemPrompt},
		{Role: model.RoleUser, Content: solutionUserPrompt(in)},
	}
	out, err := s.chat.Chat(ctx, messages, model.ChatOptions{MaxTokens: s.maxTokens})
	if err != nil {
		return review.SolutionReply{}, review.ClassifyError(s.spec.ID, err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return review.SolutionReply{}, review.Malformed(s.spec.ID, "empty solution")
	}
	return review.SolutionReply{Text: text, Model: modelName(out, s.spec), Usage: usage(out)}, nil
}
