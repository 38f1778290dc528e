package quality

import (
	"regexp"
	"strings"
)

// Thresholds defines the limits of the structural check
type Thresholds struct {
	MinCitations    int     `yaml:"min_citations"`     // Default: 5, fewer is an issue
	WarnCitations   int     `yaml:"warn_citations"`    // Default: 10
	MaxVague        int     `yaml:"max_vague"`         // Default: 20, more is an issue
	WarnVague       int     `yaml:"warn_vague"`        // Default: 15
	MinDataPoints   int     `yaml:"min_data_points"`   // Default: 5, fewer is a warning
	MinActionable   int     `yaml:"min_actionable"`    // Default: 3
	WarnActionable  int     `yaml:"warn_actionable"`   // Default: 5
	MinRisk         int     `yaml:"min_risk"`          // Default: 3
	WarnRisk        int     `yaml:"warn_risk"`         // Default: 5
	MinLength       int     `yaml:"min_length"`        // Default: 2000 characters
	WarnLength      int     `yaml:"warn_length"`       // Default: 3000 characters
	MaxLength       int     `yaml:"max_length"`        // Default: 20000 characters
	IssuePenalty    float64 `yaml:"issue_penalty"`     // Default: 15
	WarningPenalty  float64 `yaml:"warning_penalty"`   // Default: 5
	PassScore       float64 `yaml:"pass_score"`        // Default: 70
	VerifiedPassMin float64 `yaml:"verified_pass_min"` // Default: 80
}

// DefaultThresholds returns the default quality thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCitations:    5,
		WarnCitations:   10,
		MaxVague:        20,
		WarnVague:       15,
		MinDataPoints:   5,
		MinActionable:   3,
		WarnActionable:  5,
		MinRisk:         3,
		WarnRisk:        5,
		MinLength:       2000,
		WarnLength:      3000,
		MaxLength:       20000,
		IssuePenalty:    15,
		WarningPenalty:  5,
		PassScore:       70,
		VerifiedPassMin: 80,
	}
}

// RequiredSections must all appear somewhere in a report
var RequiredSections = []string{"市场概况", "投资主题", "风险", "建议"}

// VaguePhrases returns the hedging phrases to count
var VaguePhrases = []string{"可能", "或许", "据说", "有人认为", "也许", "似乎", "大概"}

// ActionableKeywords signal concrete guidance
var ActionableKeywords = []string{"建议", "策略", "操作", "配置", "时间窗口", "仓位", "止损", "买入", "卖出"}

var (
	citationPattern = regexp.MustCompile(`【新闻\d+】`)

	dataPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d+\.?\d*%`),    // 12.5%
		regexp.MustCompile(`\d+\.?\d*亿`),    // 100亿
		regexp.MustCompile(`\d+\.?\d*万亿`),   // 5万亿
		regexp.MustCompile(`\$\d+\.?\d*`),   // $50
		regexp.MustCompile(`¥\d+\.?\d*`),    // ¥100
		regexp.MustCompile(`\d+\.?\d*元`),    // 1000元
		regexp.MustCompile(`\d+\.?\d*美元`),   // 100美元
	}
)

// CountCitations counts 【新闻N】 markers
func CountCitations(text string) int {
	return len(citationPattern.FindAllStringIndex(text, -1))
}

// DetectVaguePhrases counts and lists hedging phrases in text
func DetectVaguePhrases(text string) (count int, found []string) {
	return countPhrases(text, VaguePhrases)
}

// CountActionable counts occurrences of actionable keywords
func CountActionable(text string) int {
	n, _ := countPhrases(text, ActionableKeywords)
	return n
}

// CountDataPoints sums the matches of every numeric data pattern
func CountDataPoints(text string) int {
	count := 0
	for _, p := range dataPatterns {
		count += len(p.FindAllStringIndex(text, -1))
	}
	return count
}

// MissingSections lists the required sections absent from text
func MissingSections(text string) []string {
	var missing []string
	for _, s := range RequiredSections {
		if !strings.Contains(text, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// HasPlaceholder reports unfilled N/A or 待定 placeholders
func HasPlaceholder(text string) bool {
	return strings.Contains(text, "N/A") || strings.Contains(text, "待定")
}

func countPhrases(text string, phrases []string) (count int, found []string) {
	for _, p := range phrases {
		if n := strings.Count(text, p); n > 0 {
			count += n
			found = append(found, p)
		}
	}
	return count, found
}
