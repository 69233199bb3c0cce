package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/mozart/internal/progress"
	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/backend"
	"github.com/dshills/mozart/review/emit"
	"github.com/dshills/mozart/review/store"
)

var (
	reviewCodeFile string
	reviewGoal     string
	reviewContext  string
	reviewCriteria string
	reviewMode     string
	reviewSolution bool
	reviewFormat   string
	reviewOut      string
	reviewQuiet    bool
	reviewTrace    bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review code with every configured reviewer",
	Long: `Send code to every configured reviewer in parallel and print the
comparison. In full mode a judge reconciles the reviews; --solution asks
for an improved version afterwards.

Use --code-file - to read the code from stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return reviewRun(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := reviewCmd.Flags()
	f.StringVarP(&reviewCodeFile, "code-file", "f", "", "File with the code to review (- for stdin)")
	f.StringVarP(&reviewGoal, "goal", "g", "", "What the code is meant to achieve")
	f.StringVar(&reviewContext, "context", "", "Constraints and background for the reviewers")
	f.StringVarP(&reviewCriteria, "criteria", "c", "", "Comma-separated criteria (default: the whole catalog)")
	f.StringVarP(&reviewMode, "mode", "m", "fast", "Evaluation mode: fast or full")
	f.BoolVar(&reviewSolution, "solution", false, "Produce an improved solution after the review")
	f.StringVar(&reviewFormat, "format", "text", "Output format: "+strings.Join(Formats, ", "))
	f.StringVarP(&reviewOut, "out", "o", "", "Write the report to a file instead of stdout")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the review")
	f.BoolVarP(&reviewQuiet, "quiet", "q", false, "Suppress progress lines")
	f.BoolVar(&reviewTrace, "trace", false, "Write OpenTelemetry spans for session events to stderr")
	_ = reviewCmd.MarkFlagRequired("code-file")
	_ = viper.BindPFlag("metrics_addr", f.Lookup("metrics-addr"))
	rootCmd.AddCommand(reviewCmd)
}

// readCode loads the code to review from path, or from stdin for "-".
func readCode(path string, stdin io.Reader) (string, error) {
	if path == "" {
		return "", errors.New("--code-file is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}
	return string(data), nil
}

// parseCriteria splits a comma-separated criteria flag. Empty means the
// whole catalog.
func parseCriteria(s string) ([]review.CriterionID, error) {
	var out []review.CriterionID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := review.ParseCriterion(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return review.Catalog(), nil
	}
	return out, nil
}

// openStore opens the configured outcome store, creating the directory of
// a SQLite file when needed.
func openStore(dsn string) (review.OutcomeStore, error) {
	for _, prefix := range []string{"sqlite://", "sqlite:"} {
		if path, ok := strings.CutPrefix(dsn, prefix); ok && path != ":memory:" {
			if err := ensureDir(path); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
			break
		}
	}
	st, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// serveMetrics exposes reg on addr until the returned stop function runs.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func reviewRun(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	settings, err := LoadSettings()
	if err != nil {
		return err
	}

	code, err := readCode(reviewCodeFile, stdin)
	if err != nil {
		return err
	}
	mode, err := review.ParseMode(reviewMode)
	if err != nil {
		return err
	}
	criteria, err := parseCriteria(reviewCriteria)
	if err != nil {
		return err
	}
	req, err := review.NewReviewRequest(review.RequestParams{
		Code:     code,
		Goal:     reviewGoal,
		Context:  reviewContext,
		Criteria: criteria,
		Mode:     mode,
		Solution: reviewSolution,
	})
	if err != nil {
		return err
	}
	if !validFormat(reviewFormat) {
		return fmt.Errorf("unknown format %q (want one of %s)", reviewFormat, strings.Join(Formats, ", "))
	}

	registry := backend.NewRegistry(settings.Credentials)
	defer registry.Close()

	st, err := openStore(settings.StoreDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	promReg := prometheus.NewRegistry()
	metrics := review.NewPrometheusMetrics(promReg)
	if settings.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(settings.MetricsAddr, promReg)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	costs := review.NewCostTracker()

	logLevel := settings.LogLevel
	var emitters []emit.Emitter
	if !reviewQuiet {
		emitters = append(emitters, progress.New(stderr, settings.displayNames()))
		// Progress lines already cover the info-level milestones.
		if logLevel < emit.LevelWarn {
			logLevel = emit.LevelWarn
		}
	}
	emitters = append(emitters, emit.NewLogEmitter(stderr, settings.LogFormat == "json").WithMinLevel(logLevel))
	if reviewTrace {
		otelEmitter, shutdown, err := newTraceEmitter(stderr)
		if err != nil {
			return err
		}
		defer shutdown()
		emitters = append(emitters, otelEmitter)
	}

	opts := []review.Option{
		review.WithEmitter(emit.NewMultiEmitter(emitters...)),
		review.WithMetrics(metrics),
		review.WithCostTracker(costs),
		review.WithStore(st),
	}
	if settings.Retry != nil {
		opts = append(opts, review.WithRetryPolicy(*settings.Retry))
	}

	eng, err := review.NewEngine(settings.SessionConfig(mode, reviewSolution), registry, opts...)
	if err != nil {
		return err
	}

	h, err := eng.StartReview(req)
	if err != nil {
		return err
	}
	out, err := eng.Await(ctx, h)
	if ctx.Err() != nil {
		_ = eng.Cancel(h)
		out, err = eng.Await(context.Background(), h)
	}
	_ = eng.Release(h)
	if err != nil {
		return err
	}

	if err := writeReport(stdout, review.ToRecord(out), reviewFormat, settings.AgentName); err != nil {
		return err
	}
	if !reviewQuiet {
		in, outTokens := costs.TokenUsage()
		fmt.Fprintf(stderr, "session %s: cost $%.4f (%d input, %d output tokens)\n",
			out.SessionID, costs.TotalCost(), in, outTokens)
	}
	return nil
}

func validFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return format == "md"
}

// writeReport renders rec to --out when set, otherwise to w.
func writeReport(w io.Writer, rec review.Record, format, title string) error {
	if reviewOut == "" {
		return Render(w, rec, format, title)
	}
	f, err := os.Create(reviewOut)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Render(f, rec, format, title); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
