package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/mozart/review"
)

var rule = strings.Repeat("=", 60)

func section(b *strings.Builder, title string) {
	b.WriteString("\n")
	b.WriteString(rule + "\n")
	b.WriteString(title + "\n")
	b.WriteString(rule + "\n\n")
}

// reviewerSystemPrompt describes the reply grammar.
func reviewerSystemPrompt(criteria []review.CriterionID, d Dialect) string {
	var b strings.Builder
	b.WriteString("You are a meticulous senior code reviewer. Assess the submitted code against each evaluation criterion.\n\n")
	b.WriteString("Reply with a single JSON object of this shape:\n")
	b.WriteString("{\n")
	b.WriteString(`  "summary": "one paragraph overall assessment",` + "\n")
	b.WriteString(`  "grade": "approve" or "revise",` + "\n")
	b.WriteString(`  "scores": {` + "\n")
	for i, c := range criteria {
		sep := ","
		if i == len(criteria)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, `    "%s": {"score": 0-100, "rationale": "why", "suggestions": ["specific change"]}%s`+"\n", c, sep)
	}
	b.WriteString("  },\n")
	b.WriteString(`  "improvements": ["general improvement"],` + "\n")
	b.WriteString(`  "tests_suggested": ["test to add"]` + "\n")
	b.WriteString("}\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Score every listed criterion with an integer from 0 (unacceptable) to 100 (exemplary).\n")
	b.WriteString("- Use exactly the criterion keys shown.\n")
	b.WriteString("- Suggestions must be concrete and actionable.\n")
	b.WriteString("- " + d.FormatInstructions() + "\n")
	return b.String()
}

func formatCriteria(b *strings.Builder, criteria []review.CriterionID) {
	for _, c := range criteria {
		fmt.Fprintf(b, "- %s (%s): %s\n", c.Title(), c, c.Description())
	}
}

// reviewerUserPrompt lays out the assignment, criteria and code.
func reviewerUserPrompt(req review.ReviewRequest) string {
	criteria := req.Criteria()
	var b strings.Builder
	b.WriteString(rule + "\nREVIEW ASSIGNMENT\n" + rule + "\n")
	if req.Goal() != "" {
		b.WriteString("\nPRIMARY GOAL:\n" + req.Goal() + "\n")
	}
	if req.Context() != "" {
		b.WriteString("\nCONTEXT & CONSTRAINTS:\n" + req.Context() + "\n")
	}
	b.WriteString("\nEVALUATION CRITERIA:\n")
	formatCriteria(&b, criteria)
	b.WriteString("\nSCORING REQUIREMENTS:\n")
	fmt.Fprintf(&b, "Provide a score from 0 to 100 for each of these %d criteria: %s.\n",
		len(criteria), strings.Join(criterionNames(criteria), ", "))

	section(&b, "CONTENT TO REVIEW")
	b.WriteString(req.Code())
	b.WriteString("\n")

	section(&b, "INSTRUCTIONS")
	b.WriteString("Evaluate the above content according to the specified criteria.\n")
	b.WriteString("Focus your analysis on the selected evaluation dimensions.\n")
	b.WriteString("Provide specific, actionable feedback in your JSON response.\n")
	return b.String()
}

// judgeSystemPrompt describes the judge reply grammar.
func judgeSystemPrompt(criteria []review.CriterionID, d Dialect) string {
	var b strings.Builder
	b.WriteString("You are the arbiter between independent code reviews. Reconcile them into one verdict.\n\n")
	b.WriteString("Reply with a single JSON object of this shape:\n")
	b.WriteString("{\n")
	b.WriteString(`  "summary": "merged assessment",` + "\n")
	b.WriteString(`  "score": 0-100,` + "\n")
	b.WriteString(`  "rationale": "how the reviews were reconciled",` + "\n")
	b.WriteString(`  "winners": {` + "\n")
	for i, c := range criteria {
		sep := ","
		if i == len(criteria)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, `    "%s": {"winner": "<reviewer id or tie>", "rationale": "only when diverging from the higher score"}%s`+"\n", c, sep)
	}
	b.WriteString("  },\n")
	b.WriteString(`  "recommended_changes": ["highest value change first"]` + "\n")
	b.WriteString("}\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- score is your own synthesized 0-100 quality score for the code.\n")
	b.WriteString("- Leave a winner's rationale empty unless you deliberately disagree with the review that scored higher.\n")
	b.WriteString("- " + d.FormatInstructions() + "\n")
	return b.String()
}

type promptReview struct {
	ReviewerID string                        `json:"reviewer_id"`
	Overall    int                           `json:"overall_score"`
	Summary    string                        `json:"summary,omitempty"`
	Scores     map[string]promptCriterionRow `json:"scores"`
}

type promptCriterionRow struct {
	Score       int      `json:"score"`
	Rationale   string   `json:"rationale,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func reviewsJSON(results []review.ReviewerResult, criteria []review.CriterionID) string {
	reviews := make([]promptReview, len(results))
	for i, r := range results {
		rows := make(map[string]promptCriterionRow, len(criteria))
		for _, c := range criteria {
			cs := r.Criteria[c]
			rows[string(c)] = promptCriterionRow{Score: cs.Score, Rationale: cs.Rationale, Suggestions: cs.Suggestions}
		}
		reviews[i] = promptReview{ReviewerID: r.ReviewerID, Overall: r.OverallScore, Summary: r.Summary, Scores: rows}
	}
	data, err := json.MarshalIndent(reviews, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// judgeUserPrompt carries the request and every successful review.
func judgeUserPrompt(in review.JudgeInput) string {
	criteria := in.Request.Criteria()
	var b strings.Builder
	b.WriteString(rule + "\nARBITRATION ASSIGNMENT\n" + rule + "\n")
	if in.Request.Goal() != "" {
		b.WriteString("\nPRIMARY GOAL:\n" + in.Request.Goal() + "\n")
	}
	if in.Request.Context() != "" {
		b.WriteString("\nCONTEXT & CONSTRAINTS:\n" + in.Request.Context() + "\n")
	}
	b.WriteString("\nEVALUATION CRITERIA:\n")
	formatCriteria(&b, criteria)

	ids := make([]string, len(in.Results))
	for i, r := range in.Results {
		ids[i] = r.ReviewerID
	}
	fmt.Fprintf(&b, "\nReviewer ids: %s. Use one of these or \"tie\" as a winner.\n", strings.Join(ids, ", "))
	if len(in.Results) == 1 {
		b.WriteString("Only one review is available; confirm or correct it.\n")
	}

	section(&b, "CODE")
	b.WriteString(in.Request.Code())
	b.WriteString("\n")
	section(&b, "REVIEWS")
	b.WriteString(reviewsJSON(in.Results, criteria))
	b.WriteString("\n")
	return b.String()
}

const solutionSystemPrompt = "You are a senior engineer. Given the user's goal, context, and the reviews (or a merged review), " +
	"produce a single improved final answer or patch. Keep it concise, self-contained, and ready to paste. " +
	"Return plain text (no JSON)."

// solutionUserPrompt carries the goal, the code and the review basis.
func solutionUserPrompt(in review.SolutionInput) string {
	criteria := in.Request.Criteria()
	var b strings.Builder
	if in.Request.Goal() != "" {
		b.WriteString("GOAL:\n" + in.Request.Goal() + "\n\n")
	}
	if in.Request.Context() != "" {
		b.WriteString("CONTEXT:\n" + in.Request.Context() + "\n\n")
	}
	b.WriteString("ORIGINAL CODE:\n" + in.Request.Code() + "\n\n")

	if in.Verdict != nil {
		b.WriteString("MERGED REVIEW:\n")
		if in.Verdict.Summary != "" {
			b.WriteString(in.Verdict.Summary + "\n")
		}
		b.WriteString(in.Verdict.Rationale + "\n")
		for _, s := range in.Verdict.CombinedSuggestions {
			b.WriteString("- " + s + "\n")
		}
		return b.String()
	}

	basis := in.Results
	for _, r := range in.Results {
		if r.ReviewerID == in.Leader {
			basis = []review.ReviewerResult{r}
			break
		}
	}
	b.WriteString("REVIEWS:\n")
	b.WriteString(reviewsJSON(basis, criteria))
	b.WriteString("\n")
	return b.String()
}

func criterionNames(criteria []review.CriterionID) []string {
	out := make([]string, len(criteria))
	for i, c := range criteria {
		out[i] = string(c)
	}
	return out
}
