package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing structured log output to a writer.
//
// Supports two output modes:
//   - Text mode (default): Human-readable format with key=value pairs
//   - JSON mode: Machine-readable JSON format, one event per line
//
// Example text output:
//
//	[backend_end] level=info session=01J9Z0 seq=3 backend=A meta={"latency_ms":812}
//
// Example JSON output:
//
//	{"session":"01J9Z0","seq":3,"backend":"A","msg":"backend_end","level":"info","meta":{"latency_ms":812}}
//
// Events below the minimum level are dropped. The default minimum is LevelInfo.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
	minLevel Level
}

// NewLogEmitter creates a new LogEmitter writing to writer.
// A nil writer falls back to os.Stderr.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stderr
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
		minLevel: LevelInfo,
	}
}

// WithMinLevel sets the minimum level written by the emitter and returns it.
func (l *LogEmitter) WithMinLevel(level Level) *LogEmitter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
	return l
}

// Emit writes an event to the configured writer.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Level < l.minLevel {
		return
	}
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		SessionID string                 `json:"session"`
		Seq       int                    `json:"seq"`
		BackendID string                 `json:"backend,omitempty"`
		Msg       string                 `json:"msg"`
		Level     string                 `json:"level"`
		Meta      map[string]interface{} `json:"meta,omitempty"`
	}{
		SessionID: event.SessionID,
		Seq:       event.Seq,
		BackendID: event.BackendID,
		Msg:       event.Msg,
		Level:     event.Level.String(),
		Meta:      event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] level=%s session=%s seq=%d",
		event.Msg, event.Level, event.SessionID, event.Seq)
	if event.BackendID != "" {
		fmt.Fprintf(l.writer, " backend=%s", event.BackendID)
	}

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
