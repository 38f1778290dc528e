package quality

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"marketbrief/internal/core"
)

// Checker verifies a generated report. Claims are the fact-checked numeric
// assertions of the report; nil means no fact check ran.
type Checker interface {
	Check(ctx context.Context, report string, claims []core.Claim) core.QualityResult
}

type forwardPattern struct {
	pattern  *regexp.Regexp
	desc     string
	blocking bool
}

var forwardPatterns = []forwardPattern{
	{regexp.MustCompile(`目标涨幅[:：]\s*\d+%`), "目标涨幅预测", true},
	{regexp.MustCompile(`预计上涨[:：]\s*\d+%`), "具体涨幅预测", false},
	{regexp.MustCompile(`涨幅预期[:：]\s*\d+%`), "涨幅预期数字", false},
}

// StructuralChecker scores a report on structure, evidence and wording
// without looking at claims.
type StructuralChecker struct {
	thresholds Thresholds
	now        func() time.Time
}

// NewStructuralChecker creates a checker with default thresholds
func NewStructuralChecker() *StructuralChecker {
	return NewStructuralCheckerWithThresholds(DefaultThresholds())
}

// NewStructuralCheckerWithThresholds creates a checker with custom thresholds
func NewStructuralCheckerWithThresholds(t Thresholds) *StructuralChecker {
	return &StructuralChecker{thresholds: t, now: time.Now}
}

// Check scores the report. Each issue costs IssuePenalty and each warning
// WarningPenalty; the report passes at PassScore with no issues.
func (c *StructuralChecker) Check(_ context.Context, report string, _ []core.Claim) core.QualityResult {
	t := c.thresholds
	var issues, warnings []string
	stats := map[string]any{}

	if missing := MissingSections(report); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("❌ 缺少必要章节: %s", strings.Join(missing, ", ")))
	}

	citations := CountCitations(report)
	stats["citations_count"] = citations
	switch {
	case citations < t.MinCitations:
		issues = append(issues, fmt.Sprintf("❌ 引用来源严重不足(%d处)，缺乏证据支撑", citations))
	case citations < t.WarnCitations:
		warnings = append(warnings, fmt.Sprintf("⚠️ 引用来源较少(%d处)，建议增加到%d处以上", citations, t.WarnCitations))
	}

	vague, _ := DetectVaguePhrases(report)
	stats["vague_count"] = vague
	switch {
	case vague > t.MaxVague:
		issues = append(issues, fmt.Sprintf("❌ 模糊表述过多(%d处)，缺乏确定性", vague))
	case vague > t.WarnVague:
		warnings = append(warnings, fmt.Sprintf("⚠️ 模糊表述较多(%d处)，建议用具体数据替代", vague))
	}

	data := CountDataPoints(report)
	stats["data_points"] = data
	if data < t.MinDataPoints {
		warnings = append(warnings, fmt.Sprintf("⚠️ 具体数据支撑较少(%d处)，建议增加", data))
	}

	actionable := CountActionable(report)
	stats["actionable_count"] = actionable
	switch {
	case actionable < t.MinActionable:
		issues = append(issues, "❌ 可操作性严重不足，缺少具体建议")
	case actionable < t.WarnActionable:
		warnings = append(warnings, "⚠️ 可操作性不足，建议增加操作指引")
	}

	risk := strings.Count(report, "风险")
	stats["risk_mentions"] = risk
	switch {
	case risk < t.MinRisk:
		issues = append(issues, fmt.Sprintf("❌ 风险提示严重不足(%d处)", risk))
	case risk < t.WarnRisk:
		warnings = append(warnings, fmt.Sprintf("⚠️ 风险提示较少(%d处)，建议增加", risk))
	}

	length := core.RuneLen(report)
	stats["word_count"] = length
	switch {
	case length < t.MinLength:
		issues = append(issues, fmt.Sprintf("❌ 报告过短(%d字)，内容不够充实", length))
	case length < t.WarnLength:
		warnings = append(warnings, fmt.Sprintf("⚠️ 报告较短(%d字)，建议增加分析深度", length))
	case length > t.MaxLength:
		warnings = append(warnings, fmt.Sprintf("⚠️ 报告过长(%d字)，建议精简", length))
	}

	for _, fp := range forwardPatterns {
		match := fp.pattern.FindString(report)
		if match == "" {
			continue
		}
		if fp.blocking {
			issues = append(issues, fmt.Sprintf("❌ 检测到%s: %s（禁止编造具体涨幅）", fp.desc, match))
		} else {
			warnings = append(warnings, fmt.Sprintf("⚠️ 检测到%s: %s（请确认是否有数据支撑）", fp.desc, match))
		}
	}

	if HasPlaceholder(report) {
		issues = append(issues, "❌ 检测到N/A或待定占位符，未填写完整")
	}

	score := 100 - float64(len(issues))*t.IssuePenalty - float64(len(warnings))*t.WarningPenalty
	score = math.Max(0, score)

	return core.QualityResult{
		Score:     score,
		Passed:    score >= t.PassScore && len(issues) == 0,
		Issues:    nonNil(issues),
		Warnings:  nonNil(warnings),
		Stats:     stats,
		CheckedAt: c.now(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
