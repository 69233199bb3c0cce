// Package openai adapts the OpenAI chat completions API to model.ChatModel.
//
// The same adapter serves any OpenAI-compatible endpoint (DeepSeek, local
// gateways) through WithBaseURL.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/mozart/review/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gpt-4o"

// ChatModel implements model.ChatModel for OpenAI-compatible APIs.
//
// Example usage:
//
//	m, err := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "Review this function"},
//	}, model.ChatOptions{JSON: true})
type ChatModel struct {
	provider  string
	modelName string
	client    completionClient
}

// completionClient is the slice of the SDK used by ChatModel.
// Tests substitute a fake.
type completionClient interface {
	createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type sdkClient struct {
	client *openai.Client
}

func (c *sdkClient) createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

type config struct {
	baseURL  string
	provider string
	sdkOpts  []option.RequestOption
}

// Option configures a ChatModel.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithProviderName sets the provider name reported in errors (default "openai").
func WithProviderName(name string) Option {
	return func(c *config) {
		c.provider = name
	}
}

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) {
		c.sdkOpts = append(c.sdkOpts, opts...)
	}
}

// NewChatModel creates a ChatModel. An empty modelName uses DefaultModel.
// Returns model.ErrMissingAPIKey when apiKey is empty.
func NewChatModel(apiKey, modelName string, opts ...Option) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	cfg := config{provider: "openai"}
	for _, opt := range opts {
		opt(&cfg)
	}

	// The SDK retries 429 and 5xx responses by default; retries are an
	// explicit caller policy here, so they are disabled.
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(cfg.baseURL))
	}
	sdkOpts = append(sdkOpts, cfg.sdkOpts...)

	client := openai.NewClient(sdkOpts...)
	return &ChatModel{
		provider:  cfg.provider,
		modelName: modelName,
		client:    &sdkClient{client: &client},
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	completion, err := m.client.createChatCompletion(ctx, m.buildParams(messages, opts))
	if err != nil {
		return model.ChatOut{}, wrapError(m.provider, err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	out := model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	if out.Text == "" {
		return out, model.ErrEmptyResponse
	}
	return out, nil
}

func (m *ChatModel) buildParams(messages []model.Message, opts model.ChatOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if opts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	return params
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// wrapError converts SDK errors into *model.ProviderError. Context errors
// pass through unchanged so callers can detect timeouts and cancellation.
func wrapError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return &model.ProviderError{
			Provider:   provider,
			StatusCode: apiErr.StatusCode,
			Message:    msg,
			Err:        err,
		}
	}
	return &model.ProviderError{Provider: provider, Message: err.Error(), Err: err}
}
