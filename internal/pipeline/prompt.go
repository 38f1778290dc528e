package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"marketbrief/internal/logger"
)

// Prompt template versions.
const (
	PromptProV2 = "pro_v2" // expects injected market data
	PromptPro   = "pro"
	PromptSafe  = "safe"
)

var promptFiles = map[string]string{
	PromptProV2: "financial_analysis_prompt_pro_v2.md",
	PromptPro:   "financial_analysis_prompt_pro.md",
	PromptSafe:  "financial_analysis_prompt_safe.md",
}

// DefaultPromptVersion picks pro_v2 when market data is injected.
func DefaultPromptVersion(verify bool) string {
	if verify {
		return PromptProV2
	}
	return PromptPro
}

// LoadPrompt reads the template for version from dir. Unknown or missing
// versions fall back to the pro template.
func LoadPrompt(dir, version string) (string, error) {
	name, ok := promptFiles[version]
	if !ok {
		name = promptFiles[PromptPro]
	}
	path := filepath.Join(dir, name)

	if _, err := os.Stat(path); err != nil && version != PromptPro {
		logger.Warn("Prompt template missing, falling back to pro", "version", version, "path", path)
		path = filepath.Join(dir, promptFiles[PromptPro])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt template: %w", err)
	}
	return string(data), nil
}
