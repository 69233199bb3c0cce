package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/model"
)

// OfflineChatModel answers every call locally with a fixed, well-formed
// reply. It backs the "mock" provider so sessions can run without
// credentials.
type OfflineChatModel struct {
	// Score is reported for every criterion. Zero means 75.
	Score int
}

func (m OfflineChatModel) score() int {
	if m.Score == 0 {
		return 75
	}
	return m.Score
}

// Chat returns a combined reviewer and judge document for JSON calls and a
// short plain-text answer otherwise.
func (m OfflineChatModel) Chat(ctx context.Context, _ []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	if !opts.JSON {
		return model.ChatOut{Text: "No changes required.", Model: "offline"}, nil
	}

	scores := make(map[string]interface{})
	for _, c := range review.Catalog() {
		scores[string(c)] = map[string]interface{}{
			"score":       m.score(),
			"rationale":   fmt.Sprintf("offline assessment of %s", c),
			"suggestions": []string{fmt.Sprintf("Review %s manually", c.Title())},
		}
	}
	doc := map[string]interface{}{
		"summary":             "Offline review: no provider was contacted.",
		"grade":               "approve",
		"scores":              scores,
		"score":               m.score(),
		"rationale":           "Offline arbitration.",
		"recommended_changes": []string{},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return model.ChatOut{}, err
	}
	return model.ChatOut{Text: string(data), Model: "offline"}, nil
}
