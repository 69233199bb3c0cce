package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dshills/mozart/review"
)

// scoreLimit bounds raw scores before integer conversion. Anything beyond
// it is clamped by the core anyway.
const scoreLimit = 1e6

// parsedReview is a reviewer reply after grammar checks. Scores are not yet
// clamped.
type parsedReview struct {
	Summary  string
	Grade    string
	Scores   map[review.CriterionID]review.CriterionScore
	Warnings []string
}

// decodeObject decodes doc as exactly one JSON object.
func decodeObject(doc string) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.New("truncated JSON")
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if obj == nil {
		return nil, errors.New("top-level value is not an object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage, field string) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: expected a string", field)
	}
	return strings.TrimSpace(s), nil
}

func decodeStrings(raw json.RawMessage, field string) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: expected an array of strings", field)
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func decodeNumber(raw json.RawMessage, field string) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%s: invalid value", field)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%s: score is not a number", field)
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%s: score %s is not finite", field, n)
	}
	return f, nil
}

// scaleFactor reads the optional "scale" field.
func scaleFactor(raw json.RawMessage) (float64, error) {
	s, err := decodeString(raw, "scale")
	if err != nil {
		return 0, err
	}
	switch s {
	case "", "0-100":
		return 1, nil
	case "0-10":
		return 10, nil
	default:
		return 0, fmt.Errorf("scale: unsupported value %q", s)
	}
}

// toScore applies the scale, rounds half-up and saturates. The bool reports
// whether rounding changed the value.
func toScore(v, factor float64) (int, bool) {
	v *= factor
	switch {
	case v > scoreLimit:
		v = scoreLimit
	case v < -scoreLimit:
		v = -scoreLimit
	}
	r := math.Floor(v + 0.5)
	return int(r), r != v
}

// scoreKeys maps normalized criterion ids to their raw score values.
func scoreKeys(raw json.RawMessage, field string) (map[review.CriterionID]json.RawMessage, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("%s: missing", field)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%s: expected an object", field)
	}
	out := make(map[review.CriterionID]json.RawMessage, len(obj))
	for k, v := range obj {
		id, err := review.ParseCriterion(k)
		if err != nil {
			continue
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%s: duplicate entry for %s", field, id)
		}
		out[id] = v
	}
	return out, nil
}

// parseCriterionScore reads a bare number or {score, rationale, suggestions}.
func parseCriterionScore(c review.CriterionID, raw json.RawMessage, factor float64) (review.CriterionScore, string, error) {
	field := "scores." + string(c)
	var cs review.CriterionScore
	numRaw := raw
	if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(t, &obj); err != nil {
			return cs, "", fmt.Errorf("%s: invalid object", field)
		}
		s, ok := obj["score"]
		if !ok {
			return cs, "", fmt.Errorf("%s: missing score", field)
		}
		numRaw = s
		var err error
		if cs.Rationale, err = decodeString(obj["rationale"], field+".rationale"); err != nil {
			return cs, "", err
		}
		if cs.Suggestions, err = decodeStrings(obj["suggestions"], field+".suggestions"); err != nil {
			return cs, "", err
		}
	}
	if isNull(numRaw) {
		return cs, "", fmt.Errorf("%s: score is not a number", field)
	}
	f, err := decodeNumber(numRaw, field)
	if err != nil {
		return cs, "", err
	}
	score, rounded := toScore(f, factor)
	cs.Score = score
	var warning string
	if rounded {
		warning = fmt.Sprintf("%s: non-integer score %s rounded to %d", c, strconv.FormatFloat(f*factor, 'f', -1, 64), score)
	}
	return cs, warning, nil
}

// foldItems appends improvements or test suggestions. An item is a string
// or {criterion, text}; unnamed or unknown criteria land on fallback.
func foldItems(scores map[review.CriterionID]review.CriterionScore, raw json.RawMessage, field, prefix string, fallback review.CriterionID) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: expected an array", field)
	}
	var warnings []string
	for i, item := range items {
		target := fallback
		var text string
		if t := bytes.TrimSpace(item); len(t) > 0 && t[0] == '{' {
			var obj struct {
				Criterion string `json:"criterion"`
				Text      string `json:"text"`
			}
			if err := json.Unmarshal(t, &obj); err != nil {
				return nil, fmt.Errorf("%s[%d]: invalid object", field, i)
			}
			text = obj.Text
			if obj.Criterion != "" {
				id, err := review.ParseCriterion(obj.Criterion)
				if _, requested := scores[id]; err == nil && requested {
					target = id
				} else {
					warnings = append(warnings, fmt.Sprintf("%s[%d]: criterion %q not requested, folded into %s", field, i, obj.Criterion, fallback))
				}
			}
		} else if err := json.Unmarshal(item, &text); err != nil {
			return nil, fmt.Errorf("%s[%d]: expected a string or object", field, i)
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		cs := scores[target]
		cs.Suggestions = append(cs.Suggestions, prefix+text)
		scores[target] = cs
	}
	return warnings, nil
}

// parseReview applies the reviewer reply grammar to a JSON document.
func parseReview(doc string, criteria []review.CriterionID) (parsedReview, error) {
	var out parsedReview
	obj, err := decodeObject(doc)
	if err != nil {
		return out, err
	}
	if out.Summary, err = decodeString(obj["summary"], "summary"); err != nil {
		return out, err
	}
	grade, err := decodeString(obj["grade"], "grade")
	if err != nil {
		return out, err
	}
	switch g := strings.ToLower(grade); g {
	case "", "approve", "revise":
		out.Grade = g
	default:
		out.Warnings = append(out.Warnings, fmt.Sprintf("grade: unexpected value %q ignored", grade))
	}
	factor, err := scaleFactor(obj["scale"])
	if err != nil {
		return out, err
	}
	raw, err := scoreKeys(obj["scores"], "scores")
	if err != nil {
		return out, err
	}

	out.Scores = make(map[review.CriterionID]review.CriterionScore, len(criteria))
	for _, c := range criteria {
		v, ok := raw[c]
		if !ok {
			return out, fmt.Errorf("scores: missing criterion %s", c)
		}
		cs, warning, err := parseCriterionScore(c, v, factor)
		if err != nil {
			return out, err
		}
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
		out.Scores[c] = cs
	}

	fallback := criteria[0]
	w, err := foldItems(out.Scores, obj["improvements"], "improvements", "", fallback)
	if err != nil {
		return out, err
	}
	out.Warnings = append(out.Warnings, w...)
	w, err = foldItems(out.Scores, obj["tests_suggested"], "tests_suggested", "Add test: ", fallback)
	if err != nil {
		return out, err
	}
	out.Warnings = append(out.Warnings, w...)
	return out, nil
}

// parseJudge applies the judge reply grammar to a JSON document.
func parseJudge(doc string, criteria []review.CriterionID) (review.JudgeReply, error) {
	var out review.JudgeReply
	obj, err := decodeObject(doc)
	if err != nil {
		return out, err
	}
	if out.Summary, err = decodeString(obj["summary"], "summary"); err != nil {
		return out, err
	}
	if out.Rationale, err = decodeString(obj["rationale"], "rationale"); err != nil {
		return out, err
	}
	factor, err := scaleFactor(obj["scale"])
	if err != nil {
		return out, err
	}
	scoreRaw, ok := obj["score"]
	if !ok || isNull(scoreRaw) {
		return out, errors.New("score: missing")
	}
	f, err := decodeNumber(scoreRaw, "score")
	if err != nil {
		return out, err
	}
	var rounded bool
	out.Score, rounded = toScore(f, factor)
	if rounded {
		out.Warnings = append(out.Warnings, fmt.Sprintf("score: non-integer value rounded to %d", out.Score))
	}
	if out.RecommendedChanges, err = decodeStrings(obj["recommended_changes"], "recommended_changes"); err != nil {
		return out, err
	}

	if raw, present := obj["winners"]; present && !isNull(raw) {
		entries, err := scoreKeys(raw, "winners")
		if err != nil {
			return out, err
		}
		for _, c := range criteria {
			v, ok := entries[c]
			if !ok {
				continue
			}
			var w struct {
				Winner    string `json:"winner"`
				Rationale string `json:"rationale"`
			}
			if err := json.Unmarshal(v, &w); err != nil {
				return out, fmt.Errorf("winners.%s: expected {winner, rationale}", c)
			}
			if out.Winners == nil {
				out.Winners = make(map[review.CriterionID]review.JudgeWinner)
			}
			out.Winners[c] = review.JudgeWinner{
				ReviewerID: strings.TrimSpace(w.Winner),
				Rationale:  strings.TrimSpace(w.Rationale),
			}
		}
	}
	return out, nil
}
