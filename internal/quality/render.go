package quality

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"marketbrief/internal/core"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sectionStyle = lipgloss.NewStyle().Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(0, 1)
)

// Grade maps a score to its emoji and label.
func Grade(score float64) (emoji, label string) {
	switch {
	case score >= 90:
		return "🌟", "优秀"
	case score >= 80:
		return "✅", "良好"
	case score >= 70:
		return "👍", "合格"
	case score >= 60:
		return "⚠️", "待改进"
	default:
		return "❌", "不合格"
	}
}

// Render formats a quality result for the terminal. Verbose output adds
// sub-scores and statistics.
func Render(result core.QualityResult, verbose bool) string {
	var b strings.Builder

	heading := "📊 报告质量检查结果"
	if result.SubScores != nil {
		heading += " (集成事实核查)"
	}
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n\n")

	emoji, label := Grade(result.Score)
	fmt.Fprintf(&b, "%s 总体评分: %s/100 (%s)\n", emoji, FormatScore(result.Score), label)

	if verbose && result.SubScores != nil {
		b.WriteString("\n" + sectionStyle.Render("📈 分项评分:") + "\n")
		fmt.Fprintf(&b, "  • 准确性: %.1f/%.0f (基于事实核查)\n", result.SubScores.Accuracy, MaxAccuracy)
		fmt.Fprintf(&b, "  • 时效性: %.1f/%.0f (数据新鲜度)\n", result.SubScores.Timeliness, MaxTimeliness)
		fmt.Fprintf(&b, "  • 可靠性: %.1f/%.0f (来源标注)\n", result.SubScores.Reliability, MaxReliability)
	}

	if len(result.Issues) > 0 {
		b.WriteString("\n" + failStyle.Render(fmt.Sprintf("❌ 严重问题 (%d个):", len(result.Issues))) + "\n")
		for _, issue := range result.Issues {
			fmt.Fprintf(&b, "  %s\n", issue)
		}
	}
	if len(result.Warnings) > 0 {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("⚠️ 警告 (%d个):", len(result.Warnings))) + "\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	if verbose && len(result.Stats) > 0 {
		b.WriteString("\n" + sectionStyle.Render("📊 统计信息:") + "\n")
		for _, line := range statLines(result.Stats) {
			b.WriteString(mutedStyle.Render("  • "+line) + "\n")
		}
	}

	b.WriteString("\n")
	if result.Passed {
		b.WriteString(passStyle.Render("✅ 质量检查通过，可以发布"))
	} else {
		b.WriteString(failStyle.Render("❌ 质量检查未通过，建议优化后再发布"))
	}
	return boxStyle.Render(b.String())
}

// statLines renders known statistics in a fixed order.
func statLines(stats map[string]any) []string {
	labels := []struct{ key, format string }{
		{"word_count", "字数: %v"},
		{"citations_count", "引用来源: %v处"},
		{"citation_count", "引用来源: %v处"},
		{"data_points", "数据点: %v个"},
		{"actionable_count", "可操作性关键词: %v次"},
		{"risk_mentions", "风险提及: %v次"},
		{"vague_count", "模糊表述: %v次"},
		{"data_age_hours", "数据时效: %v 小时前"},
	}
	var lines []string
	for _, l := range labels {
		if v, ok := stats[l.key]; ok && v != nil {
			lines = append(lines, fmt.Sprintf(l.format, v))
		}
	}
	if v, ok := stats["has_realtime_data"].(bool); ok {
		lines = append(lines, "实时数据: "+map[bool]string{true: "是", false: "否"}[v])
	}
	if v, ok := stats["total_claims"]; ok {
		lines = append(lines, fmt.Sprintf("验证断言: %v/%v", stats["verified_claims"], v))
	}
	if v, _ := stats["fabrication_detected"].(bool); v {
		lines = append(lines, "⚠️ 检测到编造内容")
	}
	return lines
}

// Summary is the one-line verdict printed in automatic mode.
func Summary(result core.QualityResult) string {
	if result.Passed {
		return fmt.Sprintf("✅ 质量检查: %s/100 (通过)", FormatScore(result.Score))
	}
	return fmt.Sprintf("⚠️ 质量检查: %s/100 (问题:%d, 警告:%d)",
		FormatScore(result.Score), len(result.Issues), len(result.Warnings))
}

// Compare renders a markdown table contrasting two results, typically a
// structural check and a fact-checked one of the same report.
func Compare(before, after core.QualityResult) string {
	var b strings.Builder
	b.WriteString("\n## 📊 质量评分对比\n\n")
	b.WriteString("| 维度 | 优化前 | 优化后 | 提升 |\n")
	b.WriteString("|------|--------|--------|------|\n")
	fmt.Fprintf(&b, "| **总分** | %.1f | %.1f | **%+.1f** |\n", before.Score, after.Score, after.Score-before.Score)
	if s := after.SubScores; s != nil {
		fmt.Fprintf(&b, "| 准确性(/60) | - | %.1f | 新增 |\n", s.Accuracy)
		fmt.Fprintf(&b, "| 时效性(/20) | - | %.1f | 新增 |\n", s.Timeliness)
		fmt.Fprintf(&b, "| 可靠性(/20) | - | %.1f | 新增 |\n", s.Reliability)
	}
	oldIssues, newIssues := len(before.Issues), len(after.Issues)
	direction := "增加"
	if newIssues < oldIssues {
		direction = "减少"
	}
	diff := newIssues - oldIssues
	if diff < 0 {
		diff = -diff
	}
	fmt.Fprintf(&b, "\n**问题数对比**: %d → %d (%s %d)\n", oldIssues, newIssues, direction, diff)
	return b.String()
}
