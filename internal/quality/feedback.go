package quality

import (
	"fmt"
	"strings"

	"marketbrief/internal/core"
)

type advice struct {
	keywords []string
	text     string
}

// adviceTable maps problem keywords to improvement advice, in output order.
var adviceTable = []advice{
	{[]string{"引用来源"}, "请增加【新闻X】引用标注，每个重要观点都要注明具体来源"},
	{[]string{"可操作性"}, "请在\"操作建议\"部分增加：具体时间窗口、仓位建议、止损策略、买入/卖出时机"},
	{[]string{"风险提示"}, "请详细说明风险因素：系统性风险、行业风险、个股风险，并给出应对策略"},
	{[]string{"模糊表述"}, "请减少\"可能\"、\"或许\"等模糊词汇，多使用具体数据、事实和明确判断"},
	{[]string{"数据支撑"}, "请增加具体数据：涨跌幅百分比、交易金额、估值指标等"},
	{[]string{"报告过短", "报告较短"}, "请增加分析深度：详细阐述投资逻辑、催化剂分析、产业链机会"},
	{[]string{"缺少必要章节", "缺少章节"}, "请补全报告结构：市场概况、投资主题、风险提示、操作建议"},
	{[]string{"N/A"}, "请填写所有表格内容，不要使用N/A或待定，必须推荐具体股票代码和公司名称"},
	{[]string{"目标涨幅", "目标价格"}, "请删除所有编造的目标涨幅/目标价格，只引用实时数据中的现价和涨跌幅"},
	{[]string{"实时数据", "时效性"}, "请在报告中标注数据来源和更新时间，并基于注入的实时数据展开分析"},
	{[]string{"准确性", "错误或违规断言"}, "请确保所有价格、涨跌幅断言与实时数据一致，无法核实的数字不要写入报告"},
}

const fallbackAdvice = "请全面提升报告质量：增强逻辑性、完善证据链、提升可操作性"

// FeedbackItems maps the issues and warnings of a result to improvement
// advice. Items are unique and keep table order.
func FeedbackItems(result core.QualityResult) []string {
	problems := append(append([]string{}, result.Issues...), result.Warnings...)

	var items []string
	for _, a := range adviceTable {
		if matchesAny(problems, a.keywords) {
			items = append(items, a.text)
		}
	}
	if len(items) == 0 {
		items = append(items, fallbackAdvice)
	}
	return items
}

// Feedback renders the advice as a numbered markdown section.
func Feedback(result core.QualityResult) string {
	items := FeedbackItems(result)
	var b strings.Builder
	b.WriteString("\n\n## 📝 质量改进建议\n\n")
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item)
	}
	return b.String()
}

func matchesAny(problems, keywords []string) bool {
	for _, p := range problems {
		for _, k := range keywords {
			if strings.Contains(p, k) {
				return true
			}
		}
	}
	return false
}

// AddWarning prefixes the report with a quality notice listing up to three
// issues.
func AddWarning(report string, result core.QualityResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n> ⚠️ **质量提示**: 本报告质量评分为 %s/100，可能存在以下问题：\n", FormatScore(result.Score))
	for _, issue := range result.Issues[:min(len(result.Issues), 3)] {
		fmt.Fprintf(&b, "> - %s\n", issue)
	}
	b.WriteString("> \n> 请结合其他信息源谨慎决策。\n\n")
	b.WriteString(report)
	return b.String()
}

// FormatScore prints whole scores without decimals and others with one.
func FormatScore(score float64) string {
	if score == float64(int64(score)) {
		return fmt.Sprintf("%d", int64(score))
	}
	return fmt.Sprintf("%.1f", score)
}
