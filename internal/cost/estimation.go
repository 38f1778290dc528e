// Package cost estimates token counts and the USD cost of LLM calls.
package cost

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"marketbrief/internal/core"
)

// Pricing is the list price of one model family.
type Pricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // USD per 1M prompt tokens
	OutputCostPer1MTokens float64 // USD per 1M completion tokens
}

// PricingTable holds list prices keyed by model name prefix. The longest
// matching prefix wins, so "gemini-2.5-flash-lite" is priced before
// "gemini-2.5-flash".
var PricingTable = map[string]Pricing{
	"gemini-2.5-pro":        {Model: "gemini-2.5-pro", InputCostPer1MTokens: 1.25, OutputCostPer1MTokens: 10.00},
	"gemini-2.5-flash":      {Model: "gemini-2.5-flash", InputCostPer1MTokens: 0.30, OutputCostPer1MTokens: 2.50},
	"gemini-2.5-flash-lite": {Model: "gemini-2.5-flash-lite", InputCostPer1MTokens: 0.10, OutputCostPer1MTokens: 0.40},
	"gemini-2.0-flash":      {Model: "gemini-2.0-flash", InputCostPer1MTokens: 0.10, OutputCostPer1MTokens: 0.40},
	"gemini-1.5-pro":        {Model: "gemini-1.5-pro", InputCostPer1MTokens: 1.25, OutputCostPer1MTokens: 5.00},
	"gemini-1.5-flash":      {Model: "gemini-1.5-flash", InputCostPer1MTokens: 0.075, OutputCostPer1MTokens: 0.30},
	"deepseek-chat":         {Model: "deepseek-chat", InputCostPer1MTokens: 0.27, OutputCostPer1MTokens: 1.10},
	"deepseek-reasoner":     {Model: "deepseek-reasoner", InputCostPer1MTokens: 0.55, OutputCostPer1MTokens: 2.19},
}

// EstimateTokenCount roughly estimates the token count of text at one
// token per 3.5 characters.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	text = strings.ReplaceAll(text, "\n", " ")
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 3.5))
}

// Lookup finds the pricing of a model, ignoring the "models/" prefix.
func Lookup(model string) (Pricing, bool) {
	name := strings.ToLower(strings.TrimPrefix(model, "models/"))

	keys := make([]string, 0, len(PricingTable))
	for k := range PricingTable {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		if strings.HasPrefix(name, k) {
			return PricingTable[k], true
		}
	}
	return Pricing{}, false
}

// Estimate is the priced usage of one call.
type Estimate struct {
	Model        string
	InputTokens  int
	OutputTokens int
	InputCost    float64
	OutputCost   float64
	TotalCost    float64
	Known        bool // false when the model has no price entry
}

// EstimateUsage prices a usage record. Without a prompt/completion split
// the total is priced as input.
func EstimateUsage(u core.Usage) Estimate {
	e := Estimate{Model: u.Model, InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
	if e.InputTokens == 0 && e.OutputTokens == 0 {
		e.InputTokens = u.TotalTokens
	}

	p, ok := Lookup(u.Model)
	if !ok {
		return e
	}
	e.Known = true
	e.InputCost = float64(e.InputTokens) / 1_000_000 * p.InputCostPer1MTokens
	e.OutputCost = float64(e.OutputTokens) / 1_000_000 * p.OutputCostPer1MTokens
	e.TotalCost = e.InputCost + e.OutputCost
	return e
}

// String renders the estimate for CLI output.
func (e Estimate) String() string {
	if !e.Known {
		return fmt.Sprintf("%d in / %d out tokens (no price for %s)", e.InputTokens, e.OutputTokens, e.Model)
	}
	return fmt.Sprintf("%d in / %d out tokens ≈ %s", e.InputTokens, e.OutputTokens, FormatUSD(e.TotalCost))
}

// FormatUSD prints small amounts with four decimals.
func FormatUSD(v float64) string {
	if v < 1 {
		return fmt.Sprintf("$%.4f", v)
	}
	return fmt.Sprintf("$%.2f", v)
}
