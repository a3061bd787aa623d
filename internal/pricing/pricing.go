// Package pricing defines the cost-lookup interface the Budget
// Reconciler consumes. Per §1, the interface is design; the table's
// contents are data, not design, and stay intentionally small — worked
// examples from §8.3 only.
package pricing

import "strings"

// Lookup estimates a request's USD cost given token counts.
type Lookup interface {
	EstimateCost(model string, inputTokens, outputTokens int64) float64
}

type perTokenRate struct {
	inputPer1K  float64
	outputPer1K float64
}

// table is a small static default, keyed by model prefix so minor version
// suffixes (e.g. "-20241022") still match.
type table struct {
	rates map[string]perTokenRate
}

// Default returns a Lookup covering the worked examples named in the
// spec's scenarios; unknown models cost 0, matching §4.5.4 step 1.
func Default() Lookup {
	return &table{rates: map[string]perTokenRate{
		"gpt-4-turbo":    {inputPer1K: 0.01, outputPer1K: 0.03},
		"gpt-4o":         {inputPer1K: 0.005, outputPer1K: 0.015},
		"gpt-4":          {inputPer1K: 0.03, outputPer1K: 0.06},
		"gpt-3.5-turbo":  {inputPer1K: 0.0005, outputPer1K: 0.0015},
		"claude-3-opus":  {inputPer1K: 0.015, outputPer1K: 0.075},
		"claude-3-5-sonnet": {inputPer1K: 0.003, outputPer1K: 0.015},
		"claude-3-sonnet": {inputPer1K: 0.003, outputPer1K: 0.015},
		"claude-3-haiku": {inputPer1K: 0.00025, outputPer1K: 0.00125},
		"gemini-1.5-pro":   {inputPer1K: 0.00125, outputPer1K: 0.005},
		"gemini-1.5-flash": {inputPer1K: 0.000075, outputPer1K: 0.0003},
	}}
}

func (t *table) EstimateCost(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := t.lookupRate(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*rate.inputPer1K + float64(outputTokens)/1000*rate.outputPer1K
}

func (t *table) lookupRate(model string) (perTokenRate, bool) {
	if r, ok := t.rates[model]; ok {
		return r, true
	}
	var best perTokenRate
	bestLen := -1
	for prefix, r := range t.rates {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = r
			bestLen = len(prefix)
		}
	}
	return best, bestLen >= 0
}
