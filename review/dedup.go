package review

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	// DefaultSuggestionSimilarity is the default token-set similarity at or
	// above which two suggestions collapse into one.
	DefaultSuggestionSimilarity = 0.6

	// tokenSimilarity is the Levenshtein similarity at or above which two
	// tokens count as the same word.
	tokenSimilarity = 0.85
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "and": true,
	"or": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"be": true, "it": true, "this": true, "that": true, "as": true, "by": true,
}

// DedupSuggestions returns suggestions with near-duplicates removed,
// keeping the first-seen wording of each distinct suggestion. Two
// suggestions are duplicates when SuggestionSimilarity(a, b) >= threshold.
// Blank suggestions are dropped.
func DedupSuggestions(suggestions []string, threshold float64) []string {
	var out []string
	var kept [][]string
	for _, s := range suggestions {
		text := strings.TrimSpace(s)
		if text == "" {
			continue
		}
		tokens := suggestionTokens(text)
		dup := false
		for _, k := range kept {
			if tokenSetSimilarity(tokens, k) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, text)
		kept = append(kept, tokens)
	}
	return out
}

// SuggestionSimilarity returns the fuzzy Jaccard similarity of the
// normalized token sets of a and b, in [0, 1].
func SuggestionSimilarity(a, b string) float64 {
	return tokenSetSimilarity(suggestionTokens(a), suggestionTokens(b))
}

// suggestionTokens lowercases s, splits on anything that is not a letter
// or digit, and drops stopwords and repeats.
func suggestionTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSetSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matched := 0
	for _, x := range a {
		for j, y := range b {
			if !used[j] && tokensMatch(x, y) {
				used[j] = true
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(a)+len(b)-matched)
}

func tokensMatch(x, y string) bool {
	if x == y {
		return true
	}
	longest := len([]rune(x))
	if n := len([]rune(y)); n > longest {
		longest = n
	}
	dist := levenshtein.ComputeDistance(x, y)
	return 1-float64(dist)/float64(longest) >= tokenSimilarity
}
