// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/mozart/review/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "claude-3-5-sonnet-20241022"

// defaultMaxTokens is required by the Messages API.
const defaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Anthropic Claude models.
//
// The Messages API has no JSON response mode; ChatOptions.JSON and Schema
// are ignored and callers must request structure in the prompt.
type ChatModel struct {
	modelName string
	client    messageClient
}

// messageClient is the slice of the SDK used by ChatModel.
type messageClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type sdkClient struct {
	client *anthropic.Client
}

func (c *sdkClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}

// NewChatModel creates a ChatModel. An empty modelName uses DefaultModel.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	sdkOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(sdkOpts...)

	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{client: &client},
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Chat implements model.ChatModel. System messages are joined into the
// request's system prompt.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	msg, err := m.client.createMessage(ctx, m.buildParams(messages, opts))
	if err != nil {
		return model.ChatOut{}, wrapError(err)
	}
	if msg == nil {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}

	out := model.ChatOut{
		Text:  strings.Join(parts, ""),
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
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

func (m *ChatModel) buildParams(messages []model.Message, opts model.ChatOptions) anthropic.MessageNewParams {
	maxTokens := int64(defaultMaxTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: maxTokens,
	}

	var system []anthropic.TextBlockParam
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case model.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	params.System = system

	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	return params
}

func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Err:        err,
		}
	}
	return &model.ProviderError{Provider: "anthropic", Message: err.Error(), Err: err}
}
