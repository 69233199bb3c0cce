package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/mozart/review/model"
)

// Dialect captures how one provider family is asked for JSON and where the
// JSON document sits in its reply.
type Dialect interface {
	Name() string

	// Options returns the chat options for a structured call.
	Options(schema *model.Schema) model.ChatOptions

	// FormatInstructions is appended to the system prompt.
	FormatInstructions() string

	// Extract returns the JSON document embedded in reply.
	Extract(reply string) (string, error)
}

var (
	errNoJSONObject   = errors.New("reply is not a single JSON object")
	errNoFence        = errors.New("reply has no ```json fence")
	errMultipleFences = errors.New("reply has more than one ```json fence")
	errUnclosedFence  = errors.New("reply has an unterminated ```json fence")
)

// JSONObjectDialect serves OpenAI-compatible providers running in JSON
// object mode. The entire reply must be the object.
type JSONObjectDialect struct{}

func (JSONObjectDialect) Name() string { return "json_object" }

func (JSONObjectDialect) Options(*model.Schema) model.ChatOptions {
	return model.ChatOptions{JSON: true}
}

func (JSONObjectDialect) FormatInstructions() string {
	return "Return ONLY valid JSON - no additional text or explanations."
}

func (JSONObjectDialect) Extract(reply string) (string, error) {
	body := strings.TrimSpace(reply)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return "", errNoJSONObject
	}
	return body, nil
}

// FencedJSONDialect serves providers without a JSON mode. The reply must
// carry exactly one ```json fenced block; prose around it is ignored.
type FencedJSONDialect struct{}

func (FencedJSONDialect) Name() string { return "fenced_json" }

func (FencedJSONDialect) Options(*model.Schema) model.ChatOptions {
	return model.ChatOptions{}
}

func (FencedJSONDialect) FormatInstructions() string {
	return "Wrap the JSON object in a single ```json fenced code block. Do not emit any other code block."
}

const fenceOpen = "```json"

func (FencedJSONDialect) Extract(reply string) (string, error) {
	first := strings.Index(reply, fenceOpen)
	if first < 0 {
		return "", errNoFence
	}
	rest := reply[first+len(fenceOpen):]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", errUnclosedFence
	}
	// Anything after the tag on the opening line means the tag was e.g. ```jsonc.
	if strings.TrimSpace(rest[:nl]) != "" {
		return "", errNoFence
	}
	rest = rest[nl+1:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", errUnclosedFence
	}
	if strings.Contains(rest[end+3:], fenceOpen) {
		return "", errMultipleFences
	}
	return strings.TrimSpace(rest[:end]), nil
}

// SchemaDialect serves providers that enforce a response schema and MIME
// type (Gemini).
type SchemaDialect struct{}

func (SchemaDialect) Name() string { return "schema" }

func (SchemaDialect) Options(schema *model.Schema) model.ChatOptions {
	return model.ChatOptions{JSON: true, Schema: schema}
}

func (SchemaDialect) FormatInstructions() string {
	return "Return ONLY valid JSON matching the response schema."
}

func (SchemaDialect) Extract(reply string) (string, error) {
	return JSONObjectDialect{}.Extract(reply)
}

// DialectFor returns the dialect registered for a provider family name.
func DialectFor(provider string) (Dialect, error) {
	switch provider {
	case "openai", "deepseek", "mock":
		return JSONObjectDialect{}, nil
	case "anthropic":
		return FencedJSONDialect{}, nil
	case "google":
		return SchemaDialect{}, nil
	default:
		return nil, fmt.Errorf("backend: no dialect for provider %q", provider)
	}
}
