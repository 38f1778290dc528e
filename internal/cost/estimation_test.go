package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketbrief/internal/core"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"empty string", "", 0},
		{"whitespace only", "   \n ", 0},
		{"simple text", "Hello world", 4},
		{"text with newlines", "Line 1\nLine 2\nLine 3", 6},
		{"han characters", "美联储宣布降息", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimateTokenCount(tt.input))
		})
	}
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("models/gemini-2.5-flash-lite-preview")
	assert.True(t, ok)
	assert.Equal(t, "gemini-2.5-flash-lite", p.Model)

	p, ok = Lookup("gemini-2.5-flash")
	assert.True(t, ok)
	assert.Equal(t, "gemini-2.5-flash", p.Model)

	p, ok = Lookup("DeepSeek-Chat")
	assert.True(t, ok)
	assert.Equal(t, "deepseek-chat", p.Model)

	_, ok = Lookup("gpt-4o")
	assert.False(t, ok)
}

func TestEstimateUsage(t *testing.T) {
	e := EstimateUsage(core.Usage{Model: "models/gemini-2.5-pro", PromptTokens: 1_000_000, CompletionTokens: 100_000})
	assert.True(t, e.Known)
	assert.InDelta(t, 1.25, e.InputCost, 1e-9)
	assert.InDelta(t, 1.0, e.OutputCost, 1e-9)
	assert.InDelta(t, 2.25, e.TotalCost, 1e-9)
	assert.Equal(t, "1000000 in / 100000 out tokens ≈ $2.25", e.String())

	e = EstimateUsage(core.Usage{Model: "deepseek-chat", TotalTokens: 10_000})
	assert.Equal(t, 10_000, e.InputTokens)
	assert.InDelta(t, 0.0027, e.TotalCost, 1e-9)

	e = EstimateUsage(core.Usage{Model: "unknown", TotalTokens: 5})
	assert.False(t, e.Known)
	assert.Zero(t, e.TotalCost)
	assert.Contains(t, e.String(), "no price for unknown")
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.0027", FormatUSD(0.0027))
	assert.Equal(t, "$2.25", FormatUSD(2.25))
}
