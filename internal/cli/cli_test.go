package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mozart/review"
)

// testEnv sets up an isolated config dir and viper state for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	origNoColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = origNoColor })

	viper.Reset()
	t.Cleanup(viper.Reset)
	bindEnv()
	setDefaults(dir)

	resetReviewFlags()
	historyLimit = 20
	showFormat = "text"
	return dir
}

func resetReviewFlags() {
	reviewCodeFile = ""
	reviewGoal = ""
	reviewContext = ""
	reviewCriteria = ""
	reviewMode = "fast"
	reviewSolution = false
	reviewFormat = "text"
	reviewOut = ""
	reviewQuiet = true
	reviewTrace = false
}

// useMockProviders points every backend at the offline provider.
func useMockProviders(t *testing.T, dir string) {
	t.Helper()
	viper.Set("reviewer_a.provider", "mock")
	viper.Set("reviewer_b.provider", "mock")
	viper.Set("judge.provider", "mock")
	viper.Set("store_dsn", "sqlite:"+filepath.Join(dir, "history.db"))
}

func writeCode(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	dir := testEnv(t)

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "Mozart", s.AgentName)
	assert.Equal(t, 60*time.Second, s.Timeout)
	require.Len(t, s.Reviewers, 2)
	assert.Equal(t, review.BackendSpec{ID: "a", DisplayName: "Reviewer A", Provider: "openai", Model: "gpt-4o"}, s.Reviewers[0])
	assert.Equal(t, review.BackendSpec{ID: "b", DisplayName: "Reviewer B", Provider: "deepseek", Model: "deepseek-coder"}, s.Reviewers[1])
	assert.Equal(t, "openai", s.Judge.Provider)
	assert.Equal(t, "gpt-4o", s.Judge.Model)
	assert.Equal(t, s.Judge.Provider, s.Solver.Provider)
	assert.Equal(t, s.Judge.Model, s.Solver.Model)
	assert.Equal(t, "https://api.openai.com/v1", s.Credentials.OpenAIBaseURL)
	assert.Equal(t, "sqlite:"+filepath.Join(dir, "history.db"), s.StoreDSN)
	assert.Nil(t, s.Retry)
}

func TestLoadSettings_LegacyEnvNames(t *testing.T) {
	testEnv(t)
	t.Setenv("REVIEWER_A_PROVIDER", "anthropic")
	t.Setenv("REVIEWER_A_MODEL", "claude-3-5-sonnet")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TIMEOUT_SECONDS", "15")
	t.Setenv("MOZART_JUDGE_PROVIDER", "google")

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", s.Reviewers[0].Provider)
	assert.Equal(t, "claude-3-5-sonnet", s.Reviewers[0].Model)
	assert.Equal(t, "sk-test", s.Credentials.OpenAIKey)
	assert.Equal(t, 15*time.Second, s.Timeout)
	assert.Equal(t, "google", s.Judge.Provider)
}

func TestLoadSettings_ReviewerList(t *testing.T) {
	testEnv(t)
	viper.Set("reviewers", []map[string]interface{}{
		{"id": "fast", "name": "Fast", "provider": "openai"},
		{"provider": "mock"},
		{"provider": "deepseek", "model": "deepseek-chat"},
	})

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Len(t, s.Reviewers, 3)
	assert.Equal(t, "fast", s.Reviewers[0].ID)
	assert.Equal(t, "gpt-4o", s.Reviewers[0].Model)
	assert.Equal(t, "r2", s.Reviewers[1].ID)
	assert.Equal(t, "r3", s.Reviewers[2].ID)
	assert.Equal(t, "deepseek-chat", s.Reviewers[2].Model)
}

func TestLoadSettings_Invalid(t *testing.T) {
	cases := map[string]struct {
		key   string
		value interface{}
		want  string
	}{
		"log level":  {"log_level", "loud", "log_level"},
		"log format": {"log_format", "xml", "log_format"},
		"timeout":    {"timeout_seconds", -1, "timeout_seconds"},
		"retry":      {"retry.base_delay", "-1s", "retry"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testEnv(t)
			viper.Set("retry.max_attempts", 3)
			viper.Set(tc.key, tc.value)
			_, err := LoadSettings()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadSettings_Retry(t *testing.T) {
	testEnv(t)
	viper.Set("retry.max_attempts", 4)
	viper.Set("retry.base_delay", "100ms")

	s, err := LoadSettings()
	require.NoError(t, err)
	require.NotNil(t, s.Retry)
	assert.Equal(t, 4, s.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, s.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, s.Retry.MaxDelay)
}

func TestSettings_SessionConfig(t *testing.T) {
	testEnv(t)
	s, err := LoadSettings()
	require.NoError(t, err)

	fast := s.SessionConfig(review.ModeFast, false)
	assert.Nil(t, fast.Judge)
	assert.Nil(t, fast.Solver)
	assert.Len(t, fast.Reviewers, 2)

	full := s.SessionConfig(review.ModeFull, true)
	require.NotNil(t, full.Judge)
	require.NotNil(t, full.Solver)
	assert.Equal(t, "judge", full.Judge.ID)
	assert.Equal(t, "solver", full.Solver.ID)
}

func TestParseCriteria(t *testing.T) {
	got, err := parseCriteria(" security, Correctness ,,")
	require.NoError(t, err)
	assert.Equal(t, []review.CriterionID{review.Security, review.Correctness}, got)

	got, err = parseCriteria("")
	require.NoError(t, err)
	assert.Equal(t, review.Catalog(), got)

	_, err = parseCriteria("security,vibes")
	assert.Error(t, err)
}

func TestReadCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.go")
	require.NoError(t, os.WriteFile(path, []byte("package x"), 0o644))

	got, err := readCode(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "package x", got)

	got, err = readCode("-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readCode(filepath.Join(dir, "missing.go"), nil)
	assert.Error(t, err)
	_, err = readCode("", nil)
	assert.Error(t, err)
}

func TestReviewRun_FastMode(t *testing.T) {
	dir := testEnv(t)
	useMockProviders(t, dir)
	reviewCodeFile = writeCode(t, dir)
	reviewCriteria = "correctness,security"
	reviewFormat = "json"

	var stdout, stderr bytes.Buffer
	require.NoError(t, reviewRun(context.Background(), nil, &stdout, &stderr))

	var rec review.Record
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rec))
	assert.Equal(t, "fast", rec.Mode)
	assert.Equal(t, []string{"correctness", "security"}, rec.Criteria)
	require.Len(t, rec.Reviewers, 2)
	assert.Equal(t, "a", rec.Leader)
	assert.Nil(t, rec.Verdict)
	assert.False(t, rec.Degraded)

	// The outcome was persisted and is visible to history and show.
	var hist bytes.Buffer
	require.NoError(t, historyRun(context.Background(), &hist))
	assert.Contains(t, hist.String(), rec.SessionID)

	showFormat = "markdown"
	var shown bytes.Buffer
	require.NoError(t, showRun(context.Background(), &shown, rec.SessionID))
	assert.Contains(t, shown.String(), "# Mozart Code Review Report")
	assert.Contains(t, shown.String(), "| Correctness |")
}

func TestReviewRun_FullModeWithSolution(t *testing.T) {
	dir := testEnv(t)
	useMockProviders(t, dir)
	reviewCodeFile = writeCode(t, dir)
	reviewMode = "full"
	reviewSolution = true
	reviewFormat = "json"
	reviewOut = filepath.Join(dir, "report.json")

	var stdout, stderr bytes.Buffer
	require.NoError(t, reviewRun(context.Background(), nil, &stdout, &stderr))
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(reviewOut)
	require.NoError(t, err)
	var rec review.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "full", rec.Mode)
	assert.Len(t, rec.Criteria, len(review.Catalog()))
	require.NotNil(t, rec.Verdict)
	assert.Equal(t, 75, rec.Verdict.SynthesizedScore)
	assert.Equal(t, "No changes required.", rec.Solution)
}

func TestReviewRun_ProgressOutput(t *testing.T) {
	dir := testEnv(t)
	useMockProviders(t, dir)
	reviewCodeFile = writeCode(t, dir)
	reviewQuiet = false

	var stdout, stderr bytes.Buffer
	require.NoError(t, reviewRun(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Reviewer A")
	assert.Contains(t, stderr.String(), "cost $")
	assert.Contains(t, stdout.String(), "Overall")
}

func TestReviewRun_Errors(t *testing.T) {
	cases := map[string]struct {
		setup func(dir string)
		want  string
	}{
		"unknown criterion": {func(string) { reviewCriteria = "vibes" }, "vibes"},
		"unknown mode":      {func(string) { reviewMode = "slow" }, "slow"},
		"unknown format":    {func(string) { reviewFormat = "pdf" }, "pdf"},
		"unknown provider": {func(string) {
			viper.Set("reviewer_b.provider", "nope")
		}, "nope"},
		"missing key": {func(string) {
			viper.Set("reviewer_b.provider", "openai")
		}, "openai"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := testEnv(t)
			t.Setenv("OPENAI_API_KEY", "")
			t.Setenv("MOZART_OPENAI_API_KEY", "")
			useMockProviders(t, dir)
			reviewCodeFile = writeCode(t, dir)
			tc.setup(dir)

			var stdout, stderr bytes.Buffer
			err := reviewRun(context.Background(), nil, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestShowRun_NotFound(t *testing.T) {
	dir := testEnv(t)
	useMockProviders(t, dir)

	var out bytes.Buffer
	err := showRun(context.Background(), &out, "01NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHistoryRun_Empty(t *testing.T) {
	testEnv(t)
	viper.Set("store_dsn", "memory")

	var out bytes.Buffer
	require.NoError(t, historyRun(context.Background(), &out))
	assert.Contains(t, out.String(), "No sessions stored")
}

func TestCriteriaRun(t *testing.T) {
	testEnv(t)
	var out bytes.Buffer
	require.NoError(t, criteriaRun(&out))
	for _, c := range review.Catalog() {
		assert.Contains(t, out.String(), string(c))
	}
	assert.Contains(t, out.String(), "Vulnerability assessment")
}
