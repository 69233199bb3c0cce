// Package backend implements mozart's LLM-backed reviewer, judge and
// solution backends on top of review/model chat adapters.
//
// All reviewers share one prompt set and one strict reply grammar. Provider
// differences are confined to a Dialect: how JSON output is requested and
// how the JSON document is located in the reply.
//
//	reg := backend.NewRegistry(backend.Credentials{OpenAIKey: key})
//	eng, err := review.NewEngine(cfg, reg)
package backend
