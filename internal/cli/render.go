package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/mozart/review"
)

// Formats lists the report formats accepted by --format.
var Formats = []string{"text", "json", "yaml", "markdown", "html"}

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
)

// scoreColor colors a 0-100 score by band.
func scoreColor(score int) string {
	s := fmt.Sprintf("%d", score)
	switch {
	case score >= 80:
		return green(s)
	case score >= 50:
		return yellow(s)
	default:
		return red(s)
	}
}

// Render writes rec to w in format. title heads the human-readable formats.
func Render(w io.Writer, rec review.Record, format, title string) error {
	switch format {
	case "text", "":
		return renderText(w, rec, title)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		return renderYAML(w, rec)
	case "markdown", "md":
		_, err := io.WriteString(w, markdownReport(rec, title))
		return err
	case "html":
		return renderHTML(w, rec, title)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func criterionTitle(c string) string {
	return review.CriterionID(c).Title()
}

// entryScore returns the reviewer's score for a comparison row.
func entryScore(row review.ComparisonRecord, reviewerID string) (int, bool) {
	for _, e := range row.Entries {
		if e.ReviewerID == reviewerID {
			return e.Score, true
		}
	}
	return 0, false
}

func winnerFor(v *review.VerdictRecord, criterion string) (review.WinnerRecord, bool) {
	if v == nil {
		return review.WinnerRecord{}, false
	}
	for _, w := range v.Winners {
		if w.Criterion == criterion {
			return w, true
		}
	}
	return review.WinnerRecord{}, false
}

func renderText(w io.Writer, rec review.Record, title string) error {
	fmt.Fprintf(w, "%s %s\n", bold(title), cyan(rec.SessionID))
	status := green("complete")
	if rec.Degraded {
		status = yellow("degraded")
	}
	fmt.Fprintf(w, "mode %s  criteria %d  %s\n\n", rec.Mode, len(rec.Criteria), status)

	headers := []string{"Criterion"}
	for _, r := range rec.Reviewers {
		headers = append(headers, reviewerLabel(r))
	}
	if rec.Verdict != nil {
		headers = append(headers, "Winner")
	}
	table := newTable(w, headers)
	for _, row := range rec.Comparison {
		cells := []string{criterionTitle(row.Criterion)}
		for _, r := range rec.Reviewers {
			score, ok := entryScore(row, r.ReviewerID)
			if !ok {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, scoreColor(score))
		}
		if rec.Verdict != nil {
			winner, _ := winnerFor(rec.Verdict, row.Criterion)
			cell := winner.Winner
			if winner.Override {
				cell += " *"
			}
			cells = append(cells, cell)
		}
		_ = table.Append(cells)
	}
	overall := []string{bold("Overall")}
	for _, r := range rec.Reviewers {
		overall = append(overall, scoreColor(r.OverallScore))
	}
	if rec.Verdict != nil {
		overall = append(overall, scoreColor(rec.Verdict.SynthesizedScore))
	}
	_ = table.Append(overall)
	if err := table.Render(); err != nil {
		return err
	}

	if rec.Leader != "" {
		fmt.Fprintf(w, "\nLeader: %s\n", bold(rec.Leader))
	}
	for _, f := range rec.Failures {
		fmt.Fprintf(w, "%s %s: %s (%s)\n", red("failed"), f.ReviewerID, f.Kind, f.Detail)
	}

	for _, r := range rec.Reviewers {
		fmt.Fprintf(w, "\n%s  %s/%s  %s\n", bold(reviewerLabel(r)), r.Provider, r.Model, r.Latency)
		if r.Summary != "" {
			fmt.Fprintf(w, "  %s\n", r.Summary)
		}
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  %s %s\n", yellow("warning"), warning)
		}
	}

	if v := rec.Verdict; v != nil {
		fmt.Fprintf(w, "\n%s %s\n", bold("Verdict"), scoreColor(v.SynthesizedScore))
		if v.Summary != "" {
			fmt.Fprintf(w, "  %s\n", v.Summary)
		}
		fmt.Fprintf(w, "  %s\n", v.Rationale)
		for _, warning := range v.Warnings {
			fmt.Fprintf(w, "  %s %s\n", yellow("warning"), warning)
		}
		for _, s := range v.CombinedSuggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if f := rec.JudgeFailure; f != nil {
		fmt.Fprintf(w, "\n%s judge %s: %s\n", red("failed"), f.Kind, f.Detail)
	}

	if rec.Solution != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", bold("Solution"), rec.Solution)
	}
	if f := rec.SolutionFailure; f != nil {
		fmt.Fprintf(w, "\n%s solution %s: %s\n", red("failed"), f.Kind, f.Detail)
	}
	return nil
}

func reviewerLabel(r review.ReviewerRecord) string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.ReviewerID
}

// renderYAML emits rec with the JSON field names and order.
func renderYAML(w io.Writer, rec review.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := orderedValue(dec)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// orderedValue decodes the next JSON value, turning objects into
// yaml.MapSlice so key order survives.
func orderedValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var ms yaml.MapSlice
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := orderedValue(dec)
				if err != nil {
					return nil, err
				}
				ms = append(ms, yaml.MapItem{Key: keyTok, Value: val})
			}
			_, err := dec.Token()
			return ms, err
		case '[':
			list := []interface{}{}
			for dec.More() {
				val, err := orderedValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			_, err := dec.Token()
			return list, err
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		return t, nil
	}
}

func mdEscape(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// markdownReport renders the human report.
func markdownReport(rec review.Record, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Code Review Report\n\n", title)

	b.WriteString("## Executive Summary\n")
	fmt.Fprintf(&b, "- **Session**: %s\n", rec.SessionID)
	fmt.Fprintf(&b, "- **Evaluation Mode**: %s\n", rec.Mode)
	titles := make([]string, len(rec.Criteria))
	for i, c := range rec.Criteria {
		titles[i] = criterionTitle(c)
	}
	fmt.Fprintf(&b, "- **Review Criteria**: %s (%d criteria)\n", strings.Join(titles, ", "), len(rec.Criteria))
	if rec.Leader != "" {
		fmt.Fprintf(&b, "- **Overall Winner**: %s\n", rec.Leader)
	}
	if rec.Verdict != nil {
		fmt.Fprintf(&b, "- **Final Score**: %d/100\n", rec.Verdict.SynthesizedScore)
	}
	if rec.Degraded {
		b.WriteString("- **Status**: degraded\n")
	}
	fmt.Fprintf(&b, "- **Completed**: %s\n", rec.CompletedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("\n## Evaluation Criteria\n")
	for _, c := range rec.Criteria {
		fmt.Fprintf(&b, "- **%s**: %s\n", criterionTitle(c), review.CriterionID(c).Description())
	}

	b.WriteString("\n## Comparative Scoring\n\n| Criterion |")
	sep := "|-----------|"
	for _, r := range rec.Reviewers {
		fmt.Fprintf(&b, " %s |", mdEscape(reviewerLabel(r)))
		sep += "-----|"
	}
	if rec.Verdict != nil {
		b.WriteString(" Winner |")
		sep += "-----|"
	}
	b.WriteString("\n" + sep + "\n")
	for _, row := range rec.Comparison {
		fmt.Fprintf(&b, "| %s |", criterionTitle(row.Criterion))
		for _, r := range rec.Reviewers {
			if score, ok := entryScore(row, r.ReviewerID); ok {
				fmt.Fprintf(&b, " %d/100 |", score)
			} else {
				b.WriteString(" - |")
			}
		}
		if rec.Verdict != nil {
			winner, _ := winnerFor(rec.Verdict, row.Criterion)
			fmt.Fprintf(&b, " %s |", mdEscape(winner.Winner))
		}
		b.WriteString("\n")
	}
	b.WriteString("| **Average** |")
	for _, r := range rec.Reviewers {
		fmt.Fprintf(&b, " **%d/100** |", r.OverallScore)
	}
	if rec.Verdict != nil {
		fmt.Fprintf(&b, " **%d/100** |", rec.Verdict.SynthesizedScore)
	}
	b.WriteString("\n")

	for _, r := range rec.Reviewers {
		fmt.Fprintf(&b, "\n## %s\n", reviewerLabel(r))
		fmt.Fprintf(&b, "**Provider**: %s (%s)  \n", r.Provider, r.Model)
		fmt.Fprintf(&b, "**Average Score**: %d/100  \n", r.OverallScore)
		if r.Grade != "" {
			fmt.Fprintf(&b, "**Grade**: %s  \n", r.Grade)
		}
		if r.Summary != "" {
			fmt.Fprintf(&b, "\n### Analysis Summary\n%s\n", r.Summary)
		}
		var suggestions []string
		for _, c := range r.Criteria {
			suggestions = append(suggestions, c.Suggestions...)
		}
		if len(suggestions) > 0 {
			b.WriteString("\n### Suggestions\n")
			for i, s := range suggestions {
				if i == 5 {
					break
				}
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
	}

	if len(rec.Failures) > 0 {
		b.WriteString("\n## Failed Reviewers\n")
		for _, f := range rec.Failures {
			fmt.Fprintf(&b, "- **%s**: %s (%s)\n", f.ReviewerID, f.Kind, f.Detail)
		}
	}

	if v := rec.Verdict; v != nil {
		fmt.Fprintf(&b, "\n## Final Judgment\n**Score**: %d/100\n", v.SynthesizedScore)
		if v.Summary != "" {
			fmt.Fprintf(&b, "\n### Judge's Assessment\n%s\n", v.Summary)
		}
		fmt.Fprintf(&b, "\n### Reasoning\n%s\n", v.Rationale)
		for _, warning := range v.Warnings {
			fmt.Fprintf(&b, "\n> Warning: %s\n", warning)
		}
		var overrides []review.WinnerRecord
		for _, w := range v.Winners {
			if w.Override {
				overrides = append(overrides, w)
			}
		}
		if len(overrides) > 0 {
			b.WriteString("\n### Judge Overrides\n")
			for _, w := range overrides {
				fmt.Fprintf(&b, "- **%s** → %s: %s\n", criterionTitle(w.Criterion), w.Winner, w.OverrideRationale)
			}
		}
		if len(v.CombinedSuggestions) > 0 {
			b.WriteString("\n### Recommended Changes\n")
			for _, s := range v.CombinedSuggestions {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
	}
	if f := rec.JudgeFailure; f != nil {
		fmt.Fprintf(&b, "\n## Final Judgment\nThe judge failed: %s (%s).\n", f.Kind, f.Detail)
	}

	if rec.Solution != "" {
		fmt.Fprintf(&b, "\n## Proposed Solution\n\n```\n%s\n```\n", rec.Solution)
	}

	fmt.Fprintf(&b, "\n---\n*Generated by %s*\n", title)
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderHTML(w io.Writer, rec review.Record, title string) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(markdownReport(rec, title)), &body); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s %s</title>\n</head>\n<body>\n",
		html.EscapeString(title), html.EscapeString(rec.SessionID))
	if _, err := body.WriteTo(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body>\n</html>\n")
	return err
}
