package emit

import (
	"fmt"
	"strings"
)

// Event represents an observability event emitted during a review session.
//
// Events provide insight into orchestration behavior:
//   - Session start, completion and cancellation
//   - Per-backend dispatch and completion
//   - Backend failures and score clamping warnings
//   - Judge and solution calls
//   - Explicit retry attempts
type Event struct {
	// SessionID identifies the review session that emitted this event.
	SessionID string

	// Seq is the per-session sequence number (1-indexed).
	Seq int

	// BackendID identifies the reviewer, judge or solver backend.
	// Empty string for session-level events.
	BackendID string

	// Msg is the event name (e.g. "backend_end").
	Msg string

	// Level is the severity of the event. Emitters with a minimum level
	// drop events below it.
	Level Level

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "latency_ms": Backend call duration in milliseconds
	//   - "error": Failure detail
	//   - "kind": Failure kind
	//   - "tokens_in", "tokens_out": Token usage for LLM calls
	//   - "model": Provider model name
	Meta map[string]interface{}
}

// Level is the verbosity of an Event.
type Level int

const (
	// LevelDebug is the most verbose level.
	LevelDebug Level = iota
	// LevelInfo is the default level.
	LevelInfo
	// LevelWarn marks degraded but recoverable conditions.
	LevelWarn
	// LevelError marks failures.
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a configuration string into a Level.
// Accepts debug, info, warn, warning and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
