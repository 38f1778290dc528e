package factcheck

import (
	"regexp"

	"marketbrief/internal/core"
)

// TargetViolation is attached to forward-looking target claims at extraction.
const TargetViolation = "❌❌❌ 严重违规: AI编造目标涨幅,明确禁止此类断言!"

// Rule extracts one kind of claim from report text.
type Rule struct {
	Kind       core.ClaimKind
	Name       string
	Pattern    *regexp.Regexp
	ValueGroup int    // Submatch holding the value, the last one when zero
	Violation  string // Pre-set error for claims that are violations on sight
}

// DefaultRules is the extraction table, applied in order.
var DefaultRules = []Rule{
	{Kind: core.ClaimStockPrice, Name: "price_quote",
		Pattern: regexp.MustCompile(`(\p{Han}+)(?:现价|价格|报)(?:为)?[¥￥]?(\d+\.?\d*)\s*元`)},
	{Kind: core.ClaimStockPrice, Name: "price_with_code",
		Pattern: regexp.MustCompile(`(\p{Han}+)\((\d{6})\).*?(?:现价|价格)[¥￥]?(\d+\.?\d*)`)},

	{Kind: core.ClaimPriceChange, Name: "change_pct", ValueGroup: 2,
		Pattern: regexp.MustCompile(`([涨跌]幅?)\s*(\+?-?\d+\.?\d*)\s*%`)},
	{Kind: core.ClaimPriceChange, Name: "rise_fall", ValueGroup: 2,
		Pattern: regexp.MustCompile(`(上涨|下跌)\s*(\d+\.?\d*)\s*%`)},
	{Kind: core.ClaimPriceChange, Name: "named_change", ValueGroup: 2,
		Pattern: regexp.MustCompile(`(\p{Han}+)(?:涨|跌)\s*(\d+\.?\d*)\s*%`)},
	{Kind: core.ClaimPriceChange, Name: "target_gain", ValueGroup: 1, Violation: TargetViolation,
		Pattern: regexp.MustCompile(`目标(?:涨幅|价格?)\s*[:：]?\s*(\d+\.?\d*)\s*%`)},

	{Kind: core.ClaimGoldPrice, Name: "gold_quote", ValueGroup: 1,
		Pattern: regexp.MustCompile(`(?:金价|黄金价格?)(?:突破|达到|为|报)?(?:\$|美元)?\s*(\d+\.?\d*)\s*(?:美元)?(?:/盎司)?`)},
	{Kind: core.ClaimGoldPrice, Name: "gold_usd", ValueGroup: 1,
		Pattern: regexp.MustCompile(`黄金.*?(\d+\.?\d*)\s*美元`)},

	{Kind: core.ClaimForexRate, Name: "usd_cny_cn", ValueGroup: 1,
		Pattern: regexp.MustCompile(`美元兑人民币\s*(\d+\.?\d*)`)},
	{Kind: core.ClaimForexRate, Name: "usd_cny", ValueGroup: 1,
		Pattern: regexp.MustCompile(`USD/CNY\s*(\d+\.?\d*)`)},
	{Kind: core.ClaimForexRate, Name: "rmb_rate", ValueGroup: 1,
		Pattern: regexp.MustCompile(`人民币汇率\s*(\d+\.?\d*)`)},

	{Kind: core.ClaimMacro, Name: "macro", ValueGroup: 2,
		Pattern: regexp.MustCompile(`(PMI|GDP|CPI)(?:为|达到)?\s*(\d+\.?\d*)`)},
	{Kind: core.ClaimMacro, Name: "manufacturing_pmi", ValueGroup: 2,
		Pattern: regexp.MustCompile(`(制造业PMI)\s*(\d+\.?\d*)`)},
}

// value returns the captured value text of a submatch slice.
func (r Rule) value(m []string) string {
	if r.ValueGroup > 0 && r.ValueGroup < len(m) {
		return m[r.ValueGroup]
	}
	return m[len(m)-1]
}
