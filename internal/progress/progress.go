// Package progress renders session events as per-reviewer progress lines.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/dshills/mozart/review/emit"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// Emitter implements emit.Emitter and prints one line per backend
// milestone. Events it does not recognise are ignored.
type Emitter struct {
	writer io.Writer
	names  map[string]string

	mu       sync.Mutex
	started  int
	finished int
}

// New returns an Emitter writing to w (stderr when nil). names maps backend
// ids to display names.
func New(w io.Writer, names map[string]string) *Emitter {
	if w == nil {
		w = os.Stderr
	}
	return &Emitter{writer: w, names: names}
}

func (p *Emitter) label(id string) string {
	if name, ok := p.names[id]; ok && name != "" {
		return name
	}
	return id
}

// Emit prints the progress line for event, if any.
func (p *Emitter) Emit(event emit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Msg {
	case "session_start":
		fmt.Fprintf(p.writer, "%s %s review with %d reviewers\n",
			cyan("mozart"), metaString(event.Meta, "mode"), metaInt(event.Meta, "reviewers"))
	case "backend_start":
		p.started++
		fmt.Fprintf(p.writer, "  %s: reviewing...\n", p.label(event.BackendID))
	case "backend_end":
		p.finished++
		fmt.Fprintf(p.writer, "  %s: %s score %d in %dms\n", p.label(event.BackendID),
			green("done"), metaInt(event.Meta, "overall_score"), metaInt(event.Meta, "latency_ms"))
	case "backend_failure":
		p.finished++
		fmt.Fprintf(p.writer, "  %s: %s (%s) %s\n", p.label(event.BackendID),
			red("failed"), metaString(event.Meta, "kind"), metaString(event.Meta, "error"))
	case "retry_attempt":
		fmt.Fprintf(p.writer, "  %s: %s attempt %d after %s\n", p.label(event.BackendID),
			yellow("retrying"), metaInt(event.Meta, "attempt"), metaString(event.Meta, "kind"))
	case "clamp_warning":
		fmt.Fprintf(p.writer, "  %s: %s %s score %d clamped to %d\n", p.label(event.BackendID),
			yellow("warning"), metaString(event.Meta, "criterion"), metaInt(event.Meta, "raw"), metaInt(event.Meta, "clamped"))
	case "judge_start":
		fmt.Fprintf(p.writer, "  %s: arbitrating %d reviews...\n", p.label(event.BackendID), metaInt(event.Meta, "inputs"))
	case "judge_end":
		fmt.Fprintf(p.writer, "  %s: %s synthesized score %d\n", p.label(event.BackendID),
			green("done"), metaInt(event.Meta, "synthesized_score"))
	case "judge_failure":
		fmt.Fprintf(p.writer, "  %s: %s (%s) %s\n", p.label(event.BackendID),
			red("failed"), metaString(event.Meta, "kind"), metaString(event.Meta, "error"))
	case "solution_end":
		status := metaString(event.Meta, "status")
		if status == "ok" {
			status = green(status)
		} else {
			status = red(status)
		}
		fmt.Fprintf(p.writer, "  %s: solution %s\n", p.label(event.BackendID), status)
	case "session_cancelled":
		fmt.Fprintf(p.writer, "%s %s\n", red("cancelled"), metaString(event.Meta, "error"))
	case "session_end":
		fmt.Fprintf(p.writer, "%s %s (%d/%d reviewers succeeded)\n",
			cyan("mozart"), metaString(event.Meta, "status"), metaInt(event.Meta, "results"), p.started)
	}
}

// Counts returns how many backends started and finished.
func (p *Emitter) Counts() (started, finished int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started, p.finished
}

func metaString(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// metaInt reads an integer field, tolerating the numeric types events carry.
func metaInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// FormatList joins names for display, with an Oxford comma for three or more.
func FormatList(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}
