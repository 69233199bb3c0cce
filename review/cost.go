package review

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ModelPricing is a model's token price in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Prices as published by the providers; update as they change.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":                {InputPer1M: 10.00, OutputPer1M: 30.00},
	"deepseek-chat":              {InputPer1M: 0.27, OutputPer1M: 1.10},
	"deepseek-coder":             {InputPer1M: 0.27, OutputPer1M: 1.10},
	"deepseek-reasoner":          {InputPer1M: 0.55, OutputPer1M: 2.19},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// LLMCall is one recorded provider call.
type LLMCall struct {
	SessionID    string
	BackendID    string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// CostTracker accumulates token usage and cost across reviewer, judge and
// solution calls. Safe for concurrent use.
//
//	tracker := review.NewCostTracker()
//	eng, _ := review.NewEngine(cfg, factory, review.WithCostTracker(tracker))
//	...
//	fmt.Printf("spent $%.4f\n", tracker.TotalCost())
type CostTracker struct {
	mu         sync.RWMutex
	pricing    map[string]ModelPricing
	calls      []LLMCall
	total      float64
	modelCosts map[string]float64
	inTokens   int64
	outTokens  int64
	now        func() time.Time
}

// NewCostTracker returns a tracker seeded with the default pricing table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		pricing:    pricing,
		modelCosts: make(map[string]float64),
		now:        time.Now,
	}
}

// lookup finds pricing by exact name, then by the longest known prefix so
// dated snapshots ("gpt-4o-2024-08-06") price like their family.
func (ct *CostTracker) lookup(model string) (ModelPricing, bool) {
	if p, ok := ct.pricing[model]; ok {
		return p, true
	}
	best := ""
	for name := range ct.pricing {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return ct.pricing[best], true
}

// Record adds one call. Unknown models are recorded at zero cost.
func (ct *CostTracker) Record(sessionID, backendID, model string, usage TokenUsage) LLMCall {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	p, _ := ct.lookup(model)
	cost := float64(usage.InputTokens)/1_000_000*p.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*p.OutputPer1M

	call := LLMCall{
		SessionID:    sessionID,
		BackendID:    backendID,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    ct.now(),
	}
	ct.calls = append(ct.calls, call)
	ct.total += cost
	ct.modelCosts[model] += cost
	ct.inTokens += int64(usage.InputTokens)
	ct.outTokens += int64(usage.OutputTokens)
	return call
}

// TotalCost returns the cumulative cost in USD.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]float64, len(ct.modelCosts))
	for k, v := range ct.modelCosts {
		out[k] = v
	}
	return out
}

// SessionCost returns the cost of every call recorded for sessionID.
func (ct *CostTracker) SessionCost(sessionID string) float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	var sum float64
	for _, c := range ct.calls {
		if c.SessionID == sessionID {
			sum += c.CostUSD
		}
	}
	return sum
}

// Calls returns a copy of the call history in recording order.
func (ct *CostTracker) Calls() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]LLMCall(nil), ct.calls...)
}

// TokenUsage returns total input and output tokens.
func (ct *CostTracker) TokenUsage() (input, output int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inTokens, ct.outTokens
}

// SetPricing overrides the price of model.
func (ct *CostTracker) SetPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Reset clears recorded calls and totals but keeps pricing.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.calls = nil
	ct.total = 0
	ct.modelCosts = make(map[string]float64)
	ct.inTokens = 0
	ct.outTokens = 0
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	models := make([]string, 0, len(ct.modelCosts))
	for m := range ct.modelCosts {
		models = append(models, m)
	}
	sort.Strings(models)
	return fmt.Sprintf("CostTracker{Calls: %d, Total: $%.4f, InputTokens: %d, OutputTokens: %d, Models: %s}",
		len(ct.calls), ct.total, ct.inTokens, ct.outTokens, strings.Join(models, ","))
}
