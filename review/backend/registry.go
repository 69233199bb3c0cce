package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/model"
	"github.com/dshills/mozart/review/model/anthropic"
	"github.com/dshills/mozart/review/model/google"
	"github.com/dshills/mozart/review/model/openai"
)

// Default endpoints and models.
const (
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	DefaultDeepSeekModel   = "deepseek-coder"
)

// ErrUnknownProvider is returned for a provider name with no registration.
var ErrUnknownProvider = errors.New("backend: unknown provider")

// Credentials holds provider API keys and endpoints. The registry never
// reads the environment.
type Credentials struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	DeepSeekKey     string
	DeepSeekBaseURL string
	AnthropicKey    string
	GoogleKey       string
}

// Provider describes one provider family.
type Provider struct {
	Name    string
	Dialect Dialect

	// NewModel builds a chat model for modelName. An empty name selects the
	// provider default.
	NewModel func(ctx context.Context, creds Credentials, modelName string) (model.ChatModel, error)
}

// Registry builds review backends from BackendSpecs. It implements
// review.BackendFactory.
type Registry struct {
	creds Credentials

	mu        sync.Mutex
	providers map[string]Provider
	closers   []io.Closer
}

// NewRegistry returns a registry with the openai, deepseek, anthropic,
// google and mock providers.
func NewRegistry(creds Credentials) *Registry {
	r := &Registry{creds: creds, providers: make(map[string]Provider)}
	for _, p := range builtinProviders() {
		r.providers[p.Name] = p
	}
	return r
}

func builtinProviders() []Provider {
	return []Provider{
		{
			Name:    "openai",
			Dialect: JSONObjectDialect{},
			NewModel: func(_ context.Context, c Credentials, name string) (model.ChatModel, error) {
				base := c.OpenAIBaseURL
				if base == "" {
					base = DefaultOpenAIBaseURL
				}
				return openai.NewChatModel(c.OpenAIKey, name, openai.WithBaseURL(base))
			},
		},
		{
			Name:    "deepseek",
			Dialect: JSONObjectDialect{},
			NewModel: func(_ context.Context, c Credentials, name string) (model.ChatModel, error) {
				base := c.DeepSeekBaseURL
				if base == "" {
					base = DefaultDeepSeekBaseURL
				}
				if name == "" {
					name = DefaultDeepSeekModel
				}
				return openai.NewChatModel(c.DeepSeekKey, name,
					openai.WithBaseURL(base), openai.WithProviderName("deepseek"))
			},
		},
		{
			Name:    "anthropic",
			Dialect: FencedJSONDialect{},
			NewModel: func(_ context.Context, c Credentials, name string) (model.ChatModel, error) {
				return anthropic.NewChatModel(c.AnthropicKey, name)
			},
		},
		{
			Name:    "google",
			Dialect: SchemaDialect{},
			NewModel: func(ctx context.Context, c Credentials, name string) (model.ChatModel, error) {
				return google.NewChatModel(ctx, c.GoogleKey, name)
			},
		},
		{
			Name:    "mock",
			Dialect: JSONObjectDialect{},
			NewModel: func(context.Context, Credentials, string) (model.ChatModel, error) {
				return OfflineChatModel{}, nil
			},
		},
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) error {
	if p.Name == "" {
		return errors.New("backend: provider name is required")
	}
	if p.NewModel == nil {
		return fmt.Errorf("backend: provider %q has no model constructor", p.Name)
	}
	if p.Dialect == nil {
		p.Dialect = JSONObjectDialect{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name] = p
	return nil
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) build(spec review.BackendSpec) (model.ChatModel, Dialect, error) {
	r.mu.Lock()
	p, ok := r.providers[spec.Provider]
	r.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w %q for backend %s", ErrUnknownProvider, spec.Provider, spec.ID)
	}

	m, err := p.NewModel(context.Background(), r.creds, spec.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("backend %s (%s): %w", spec.ID, spec.Provider, err)
	}
	if c, ok := m.(io.Closer); ok {
		r.mu.Lock()
		r.closers = append(r.closers, c)
		r.mu.Unlock()
	}
	return m, p.Dialect, nil
}

// NewReviewer builds the reviewer described by spec.
func (r *Registry) NewReviewer(spec review.BackendSpec) (review.ReviewerBackend, error) {
	m, d, err := r.build(spec)
	if err != nil {
		return nil, err
	}
	return NewChatReviewer(spec, m, d), nil
}

// NewJudge builds the judge described by spec.
func (r *Registry) NewJudge(spec review.BackendSpec) (review.JudgeBackend, error) {
	m, d, err := r.build(spec)
	if err != nil {
		return nil, err
	}
	return NewChatJudge(spec, m, d), nil
}

// NewSolver builds the solution backend described by spec.
func (r *Registry) NewSolver(spec review.BackendSpec) (review.SolutionBackend, error) {
	m, _, err := r.build(spec)
	if err != nil {
		return nil, err
	}
	return NewChatSolver(spec, m), nil
}

// Close releases clients that hold resources (the Gemini client).
func (r *Registry) Close() error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
