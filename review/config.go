package review

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds each backend call when SessionConfig.Timeout is
// zero.
const DefaultTimeout = 60 * time.Second

// BackendSpec describes one backend to build.
type BackendSpec struct {
	// ID is the stable id used in results and records.
	ID string

	// DisplayName is a human label ("Reviewer A"). Optional.
	DisplayName string

	// Provider selects the implementation (openai, deepseek, anthropic,
	// google, ...).
	Provider string

	// Model is the provider model name. Empty uses the provider default.
	Model string
}

// Label returns DisplayName, falling back to ID.
func (s BackendSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}

// SessionConfig is the explicit configuration consumed by the core. It is
// built by the caller; the core never reads the environment.
type SessionConfig struct {
	// Reviewers in registration order.
	Reviewers []BackendSpec

	// Judge is required for Full-mode requests.
	Judge *BackendSpec

	// Solver is required for requests that ask for a solution.
	Solver *BackendSpec

	// Timeout bounds each backend call. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// withDefaults fills in the timeout and the judge and solver ids.
func (c SessionConfig) withDefaults() SessionConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Judge != nil && c.Judge.ID == "" {
		j := *c.Judge
		j.ID = "judge"
		c.Judge = &j
	}
	if c.Solver != nil && c.Solver.ID == "" {
		s := *c.Solver
		s.ID = "solver"
		c.Solver = &s
	}
	return c
}

// Validate checks the configuration.
func (c SessionConfig) Validate() error {
	if len(c.Reviewers) == 0 {
		return fmt.Errorf("%w: at least one reviewer is required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	}
	seen := make(map[string]bool, len(c.Reviewers))
	for i, r := range c.Reviewers {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return fmt.Errorf("%w: reviewer %d has no id", ErrInvalidConfig, i)
		}
		if id == Tie {
			return fmt.Errorf("%w: reviewer id %q is reserved", ErrInvalidConfig, Tie)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate reviewer id %q", ErrInvalidConfig, id)
		}
		seen[id] = true
		if strings.TrimSpace(r.Provider) == "" {
			return fmt.Errorf("%w: reviewer %q has no provider", ErrInvalidConfig, id)
		}
	}
	if c.Judge != nil && strings.TrimSpace(c.Judge.Provider) == "" {
		return fmt.Errorf("%w: judge has no provider", ErrInvalidConfig)
	}
	if c.Solver != nil && strings.TrimSpace(c.Solver.Provider) == "" {
		return fmt.Errorf("%w: solver has no provider", ErrInvalidConfig)
	}
	return nil
}
