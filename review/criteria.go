package review

import (
	"fmt"
	"strings"
)

// CriterionID names one axis of code quality. It is the join key between
// independent reviewer outputs.
type CriterionID string

// The criterion catalog. Catalog order is the canonical ordering used for
// prompts, comparisons and records.
const (
	Correctness     CriterionID = "correctness"
	Security        CriterionID = "security"
	Performance     CriterionID = "performance"
	Clarity         CriterionID = "clarity"
	Maintainability CriterionID = "maintainability"
	Logic           CriterionID = "logic"
	ErrorHandling   CriterionID = "error_handling"
	Testing         CriterionID = "testing"
	Scalability     CriterionID = "scalability"
	Documentation   CriterionID = "documentation"
	Design          CriterionID = "design"
)

var catalog = []struct {
	id          CriterionID
	description string
}{
	{Correctness, "Code accuracy, logic soundness, and correct implementation"},
	{Security, "Vulnerability assessment, secure coding practices, data protection"},
	{Performance, "Efficiency, speed optimization, resource usage"},
	{Clarity, "Code readability, naming conventions, structure organization"},
	{Maintainability, "Future-proofing, modularity, ease of modification"},
	{Logic, "Reasoning flow, algorithm design, decision-making processes"},
	{ErrorHandling, "Exception management, edge cases, fault tolerance"},
	{Testing, "Test coverage, testability, quality assurance approaches"},
	{Scalability, "Growth handling, load management, architectural flexibility"},
	{Documentation, "Code comments, API docs, usage examples, explanations"},
	{Design, "Architecture patterns, design principles, structural quality"},
}

// Catalog returns every known criterion in catalog order.
func Catalog() []CriterionID {
	ids := make([]CriterionID, len(catalog))
	for i, c := range catalog {
		ids[i] = c.id
	}
	return ids
}

func catalogIndex(c CriterionID) int {
	for i, entry := range catalog {
		if entry.id == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is in the catalog.
func (c CriterionID) Valid() bool {
	return catalogIndex(c) >= 0
}

// Description returns the one-line description used in prompts.
func (c CriterionID) Description() string {
	if i := catalogIndex(c); i >= 0 {
		return catalog[i].description
	}
	return ""
}

// Title returns a display name, e.g. "Error Handling".
func (c CriterionID) Title() string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ParseCriterion normalizes s ("Error Handling", "error-handling") and
// looks it up in the catalog.
func ParseCriterion(s string) (CriterionID, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	id := CriterionID(norm)
	if !id.Valid() {
		return "", fmt.Errorf("unknown criterion %q", s)
	}
	return id, nil
}

// ParseCriteria parses each entry of list with ParseCriterion.
func ParseCriteria(list []string) ([]CriterionID, error) {
	out := make([]CriterionID, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		id, err := ParseCriterion(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
