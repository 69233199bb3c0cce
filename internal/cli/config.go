package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/backend"
	"github.com/dshills/mozart/review/emit"
)

// configDirFunc returns the config directory, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mozart"), nil
}

// envBindings maps config keys to the environment names the tool has
// always honoured. MOZART_-prefixed names work too via AutomaticEnv.
var envBindings = map[string]string{
	"openai.api_key":      "OPENAI_API_KEY",
	"openai.base_url":     "OPENAI_BASE_URL",
	"openai.model":        "OPENAI_MODEL",
	"deepseek.api_key":    "DEEPSEEK_API_KEY",
	"deepseek.base_url":   "DEEPSEEK_BASE_URL",
	"deepseek.model":      "DEEPSEEK_MODEL",
	"anthropic.api_key":   "ANTHROPIC_API_KEY",
	"google.api_key":      "GOOGLE_API_KEY",
	"reviewer_a.name":     "REVIEWER_A_NAME",
	"reviewer_a.provider": "REVIEWER_A_PROVIDER",
	"reviewer_a.model":    "REVIEWER_A_MODEL",
	"reviewer_b.name":     "REVIEWER_B_NAME",
	"reviewer_b.provider": "REVIEWER_B_PROVIDER",
	"reviewer_b.model":    "REVIEWER_B_MODEL",
	"judge.provider":      "JUDGE_PROVIDER",
	"judge.model":         "JUDGE_MODEL",
	"timeout_seconds":     "TIMEOUT_SECONDS",
	"log_level":           "LOG_LEVEL",
	"agent_name":          "AGENT_NAME",
}

// setDefaults installs every default on the global viper instance.
func setDefaults(configDir string) {
	viper.SetDefault("agent_name", "Mozart")
	viper.SetDefault("timeout_seconds", 60)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")

	viper.SetDefault("openai.base_url", backend.DefaultOpenAIBaseURL)
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("deepseek.base_url", backend.DefaultDeepSeekBaseURL)
	viper.SetDefault("deepseek.model", backend.DefaultDeepSeekModel)

	viper.SetDefault("reviewer_a.name", "Reviewer A")
	viper.SetDefault("reviewer_a.provider", "openai")
	viper.SetDefault("reviewer_b.name", "Reviewer B")
	viper.SetDefault("reviewer_b.provider", "deepseek")
	viper.SetDefault("judge.provider", "openai")

	viper.SetDefault("retry.max_attempts", 1)
	viper.SetDefault("retry.base_delay", "500ms")
	viper.SetDefault("retry.max_delay", "10s")

	viper.SetDefault("store_dsn", "sqlite:"+filepath.Join(configDir, "history.db"))
	viper.SetDefault("metrics_addr", "")
}

func bindEnv() {
	viper.SetEnvPrefix("MOZART")
	viper.AutomaticEnv()
	for key, env := range envBindings {
		_ = viper.BindEnv(key, "MOZART_"+env, env)
	}
}

// reviewerEntry is one element of the optional "reviewers" config list.
type reviewerEntry struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// Settings is the resolved CLI configuration.
type Settings struct {
	AgentName   string
	Credentials backend.Credentials
	Reviewers   []review.BackendSpec
	Judge       review.BackendSpec
	Solver      review.BackendSpec
	Timeout     time.Duration
	LogLevel    emit.Level
	LogFormat   string
	StoreDSN    string
	MetricsAddr string
	Retry       *review.RetryPolicy
}

// modelFor fills in the provider-level default model.
func modelFor(provider, model string) string {
	if model != "" {
		return model
	}
	switch provider {
	case "openai", "deepseek":
		return viper.GetString(provider + ".model")
	default:
		return ""
	}
}

// LoadSettings resolves Settings from viper.
func LoadSettings() (Settings, error) {
	s := Settings{
		AgentName: viper.GetString("agent_name"),
		Credentials: backend.Credentials{
			OpenAIKey:       viper.GetString("openai.api_key"),
			OpenAIBaseURL:   viper.GetString("openai.base_url"),
			DeepSeekKey:     viper.GetString("deepseek.api_key"),
			DeepSeekBaseURL: viper.GetString("deepseek.base_url"),
			AnthropicKey:    viper.GetString("anthropic.api_key"),
			GoogleKey:       viper.GetString("google.api_key"),
		},
		LogFormat:   viper.GetString("log_format"),
		StoreDSN:    viper.GetString("store_dsn"),
		MetricsAddr: viper.GetString("metrics_addr"),
	}

	level, err := emit.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return Settings{}, fmt.Errorf("log_level: %w", err)
	}
	s.LogLevel = level
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return Settings{}, fmt.Errorf("log_format: must be text or json, got %q", s.LogFormat)
	}

	secs := viper.GetInt("timeout_seconds")
	if secs < 0 {
		return Settings{}, fmt.Errorf("timeout_seconds: must not be negative, got %d", secs)
	}
	s.Timeout = time.Duration(secs) * time.Second

	var entries []reviewerEntry
	if viper.IsSet("reviewers") {
		if err := viper.UnmarshalKey("reviewers", &entries); err != nil {
			return Settings{}, fmt.Errorf("reviewers: %w", err)
		}
	}
	if len(entries) > 0 {
		for i, e := range entries {
			id := e.ID
			if id == "" {
				id = fmt.Sprintf("r%d", i+1)
			}
			s.Reviewers = append(s.Reviewers, review.BackendSpec{
				ID: id, DisplayName: e.Name, Provider: e.Provider, Model: modelFor(e.Provider, e.Model),
			})
		}
	} else {
		for _, slot := range []struct{ id, key string }{{"a", "reviewer_a"}, {"b", "reviewer_b"}} {
			provider := viper.GetString(slot.key + ".provider")
			s.Reviewers = append(s.Reviewers, review.BackendSpec{
				ID:          slot.id,
				DisplayName: viper.GetString(slot.key + ".name"),
				Provider:    provider,
				Model:       modelFor(provider, viper.GetString(slot.key+".model")),
			})
		}
	}

	judgeProvider := viper.GetString("judge.provider")
	s.Judge = review.BackendSpec{
		ID:          "judge",
		DisplayName: "Judge",
		Provider:    judgeProvider,
		Model:       modelFor(judgeProvider, viper.GetString("judge.model")),
	}
	// The solver runs on the judge's provider unless configured otherwise.
	solverProvider := viper.GetString("solver.provider")
	solverModel := viper.GetString("solver.model")
	if solverProvider == "" {
		solverProvider = judgeProvider
		if solverModel == "" {
			solverModel = s.Judge.Model
		}
	}
	s.Solver = review.BackendSpec{
		ID:          "solver",
		DisplayName: "Solver",
		Provider:    solverProvider,
		Model:       modelFor(solverProvider, solverModel),
	}

	if attempts := viper.GetInt("retry.max_attempts"); attempts > 1 {
		p := review.RetryPolicy{
			MaxAttempts: attempts,
			BaseDelay:   viper.GetDuration("retry.base_delay"),
			MaxDelay:    viper.GetDuration("retry.max_delay"),
		}
		if err := p.Validate(); err != nil {
			return Settings{}, fmt.Errorf("retry: %w", err)
		}
		s.Retry = &p
	}
	return s, nil
}

// SessionConfig returns the core configuration for one review. The judge
// and solver are included only when the review needs them.
func (s Settings) SessionConfig(mode review.Mode, solution bool) review.SessionConfig {
	cfg := review.SessionConfig{
		Reviewers: append([]review.BackendSpec(nil), s.Reviewers...),
		Timeout:   s.Timeout,
	}
	if mode == review.ModeFull {
		judge := s.Judge
		cfg.Judge = &judge
	}
	if solution {
		solver := s.Solver
		cfg.Solver = &solver
	}
	return cfg
}

// displayNames maps backend ids to their labels.
func (s Settings) displayNames() map[string]string {
	names := map[string]string{s.Judge.ID: s.Judge.Label(), s.Solver.ID: s.Solver.Label()}
	for _, r := range s.Reviewers {
		names[r.ID] = r.Label()
	}
	return names
}
