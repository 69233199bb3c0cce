// Package model defines the provider-neutral chat interface used by review
// backends, plus a mock for tests.
//
// Concrete adapters live in the openai, anthropic and google subpackages.
// An adapter performs exactly one provider request per Chat call and never
// retries; retry policy belongs to the caller.
package model

import (
	"context"
	"errors"
	"fmt"
)

// ChatModel is a single-turn chat completion provider.
type ChatModel interface {
	// Chat sends messages to the provider and returns its reply.
	//
	// Implementations must honour ctx cancellation and deadlines, and
	// report provider HTTP failures as *ProviderError so callers can
	// classify them.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatOut, error)
}

// Message is one chat message.
type Message struct {
	// Role is RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOptions tunes a single Chat call.
type ChatOptions struct {
	// JSON asks the provider for a JSON object reply where supported.
	JSON bool

	// Schema describes the expected JSON reply. Providers that accept a
	// response schema (Gemini) enforce it; others ignore it.
	Schema *Schema

	// MaxTokens caps the reply length. Zero uses the adapter default.
	MaxTokens int

	// Temperature overrides the provider default when non-nil.
	Temperature *float64
}

// ChatOut is the provider reply.
type ChatOut struct {
	// Text is the concatenated text content of the reply.
	Text string

	// Model is the model that produced the reply, as reported by the provider.
	Model string

	// Usage is the token accounting for the call.
	Usage Usage
}

// Usage reports tokens consumed by one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// SchemaType is a JSON schema primitive type.
type SchemaType string

// Schema types.
const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

// Schema is a minimal JSON schema for structured replies.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
	Enum        []string
}

// Common errors.
var (
	// ErrMissingAPIKey is returned by adapters constructed without credentials.
	ErrMissingAPIKey = errors.New("model: API key is required")

	// ErrEmptyResponse is returned when the provider reply carries no text.
	ErrEmptyResponse = errors.New("model: empty response from provider")
)

// ProviderError is an error returned by a provider API.
type ProviderError struct {
	// Provider is the adapter name ("openai", "anthropic", "google").
	Provider string

	// StatusCode is the HTTP status, or 0 when unknown.
	StatusCode int

	// Message is the provider's error message.
	Message string

	// Err is the underlying SDK error.
	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
