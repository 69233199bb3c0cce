package backend

import (
	"github.com/dshills/mozart/review"
	"github.com/dshills/mozart/review/model"
)

func stringArray(desc string) *model.Schema {
	return &model.Schema{Type: model.TypeArray, Description: desc, Items: &model.Schema{Type: model.TypeString}}
}

// reviewSchema is the reply schema for a reviewer asked about criteria.
func reviewSchema(criteria []review.CriterionID) *model.Schema {
	scores := &model.Schema{
		Type:       model.TypeObject,
		Properties: make(map[string]*model.Schema, len(criteria)),
		Required:   make([]string, 0, len(criteria)),
	}
	for _, c := range criteria {
		scores.Properties[string(c)] = &model.Schema{
			Type:        model.TypeObject,
			Description: c.Description(),
			Properties: map[string]*model.Schema{
				"score":       {Type: model.TypeInteger, Description: "0-100"},
				"rationale":   {Type: model.TypeString},
				"suggestions": stringArray("concrete changes"),
			},
			Required: []string{"score", "rationale"},
		}
		scores.Required = append(scores.Required, string(c))
	}
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"summary":         {Type: model.TypeString},
			"grade":           {Type: model.TypeString, Enum: []string{"approve", "revise"}},
			"scores":          scores,
			"improvements":    stringArray("general improvements"),
			"tests_suggested": stringArray("tests to add"),
		},
		Required: []string{"summary", "grade", "scores"},
	}
}

// judgeSchema is the reply schema for the arbiter.
func judgeSchema(criteria []review.CriterionID) *model.Schema {
	winners := &model.Schema{
		Type:       model.TypeObject,
		Properties: make(map[string]*model.Schema, len(criteria)),
	}
	for _, c := range criteria {
		winners.Properties[string(c)] = &model.Schema{
			Type: model.TypeObject,
			Properties: map[string]*model.Schema{
				"winner":    {Type: model.TypeString},
				"rationale": {Type: model.TypeString},
			},
			Required: []string{"winner"},
		}
	}
	return &model.Schema{
		Type: model.TypeObject,
		Properties: map[string]*model.Schema{
			"summary":             {Type: model.TypeString},
			"score":               {Type: model.TypeInteger, Description: "0-100"},
			"rationale":           {Type: model.TypeString},
			"winners":             winners,
			"recommended_changes": stringArray("highest value change first"),
		},
		Required: []string{"summary", "score", "rationale"},
	}
}
