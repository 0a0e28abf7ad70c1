package llm

import "strings"

// ModelCost is the per-1K-token price pair for a model, in cents.
type ModelCost struct {
	InputPer1K  float64
	OutputPer1K float64
}

// CostTable maps model-label prefixes to prices. Lookup picks the longest
// matching prefix so "gpt-4o-mini" wins over "gpt-4o".
type CostTable map[string]ModelCost

// DefaultCostTable returns the built-in price list (cents per 1K tokens).
func DefaultCostTable() CostTable {
	return CostTable{
		"gpt-4o":        {InputPer1K: 0.25, OutputPer1K: 1.0},
		"gpt-4o-mini":   {InputPer1K: 0.015, OutputPer1K: 0.06},
		"gpt-4.1":       {InputPer1K: 0.2, OutputPer1K: 0.8},
		"o3":            {InputPer1K: 0.2, OutputPer1K: 0.8},
		"claude-3-5":    {InputPer1K: 0.3, OutputPer1K: 1.5},
		"claude-sonnet": {InputPer1K: 0.3, OutputPer1K: 1.5},
		"claude-haiku":  {InputPer1K: 0.08, OutputPer1K: 0.4},
		"gemini-1.5":    {InputPer1K: 0.0075, OutputPer1K: 0.03},
		"gemini-2.0":    {InputPer1K: 0.01, OutputPer1K: 0.04},
		"mock":          {},
	}
}

// fallbackCost prices models absent from the table.
var fallbackCost = ModelCost{InputPer1K: 0.1, OutputPer1K: 0.3}

// Lookup returns the price pair for a model label.
func (t CostTable) Lookup(model string) ModelCost {
	best := ""
	for prefix := range t {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return fallbackCost
	}
	return t[best]
}

// Cost computes the call cost in cents from separate token counts.
func (t CostTable) Cost(model string, inputTokens, outputTokens int) float64 {
	c := t.Lookup(model)
	return float64(inputTokens)/1000*c.InputPer1K + float64(outputTokens)/1000*c.OutputPer1K
}

// EstimateCost prices a call from a total token count using the 70/30 split.
func (t CostTable) EstimateCost(model string, totalTokens int) float64 {
	in, out := SplitTokens(totalTokens)
	return t.Cost(model, in, out)
}
