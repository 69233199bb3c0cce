// Package google adapts the Gemini API (generative-ai-go) to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dshills/mozart/review/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Google Gemini models.
//
// When ChatOptions.JSON is set the reply MIME type is application/json and
// ChatOptions.Schema, if present, is sent as the response schema.
//
// Close releases the underlying client.
type ChatModel struct {
	modelName string
	client    contentClient
	closer    func() error
}

// generateRequest is one GenerateContent call.
type generateRequest struct {
	modelName string
	system    string
	prompt    string
	opts      model.ChatOptions
}

// contentClient is the slice of the SDK used by ChatModel.
type contentClient interface {
	generate(ctx context.Context, req generateRequest) (*genai.GenerateContentResponse, error)
}

type sdkClient struct {
	client *genai.Client
}

func (c *sdkClient) generate(ctx context.Context, req generateRequest) (*genai.GenerateContentResponse, error) {
	gm := c.client.GenerativeModel(req.modelName)
	if req.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	if req.opts.JSON {
		gm.ResponseMIMEType = "application/json"
		if req.opts.Schema != nil {
			gm.ResponseSchema = convertSchema(req.opts.Schema)
		}
	}
	if req.opts.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.opts.MaxTokens))
	}
	if req.opts.Temperature != nil {
		gm.SetTemperature(float32(*req.opts.Temperature))
	}
	return gm.GenerateContent(ctx, genai.Text(req.prompt))
}

// NewChatModel creates a ChatModel backed by a new genai client.
func NewChatModel(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{client: client},
		closer:    client.Close,
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Close releases the client.
func (m *ChatModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Chat implements model.ChatModel. System messages become the system
// instruction; other messages are joined into a single prompt.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	var system, prompt []string
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
		} else {
			prompt = append(prompt, msg.Content)
		}
	}

	resp, err := m.client.generate(ctx, generateRequest{
		modelName: m.modelName,
		system:    strings.Join(system, "\n\n"),
		prompt:    strings.Join(prompt, "\n\n"),
		opts:      opts,
	})
	if err != nil {
		return model.ChatOut{}, wrapError(err)
	}

	out := model.ChatOut{Model: m.modelName}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, model.ErrEmptyResponse
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out.Text = sb.String()
	if out.Text == "" {
		return out, model.ErrEmptyResponse
	}
	return out, nil
}

func convertSchema(s *model.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	gs := &genai.Schema{
		Type:        convertType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       convertSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			gs.Properties[name] = convertSchema(prop)
		}
	}
	return gs
}

func convertType(t model.SchemaType) genai.Type {
	switch t {
	case model.TypeObject:
		return genai.TypeObject
	case model.TypeArray:
		return genai.TypeArray
	case model.TypeNumber:
		return genai.TypeNumber
	case model.TypeInteger:
		return genai.TypeInteger
	case model.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &model.ProviderError{
			Provider:   "google",
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Err:        err,
		}
	}
	return &model.ProviderError{Provider: "google", Message: err.Error(), Err: err}
}
