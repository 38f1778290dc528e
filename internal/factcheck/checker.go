// Package factcheck extracts numeric claims from generated reports and
// verifies them against a market data snapshot.
package factcheck

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"marketbrief/internal/core"
	"marketbrief/internal/logger"
)

// Tolerances for a claim to count as verified.
const (
	PriceTolerance  = 0.05 // relative
	ChangeTolerance = 0.5  // absolute percentage points
	GoldTolerance   = 0.02 // relative
	ForexTolerance  = 0.01 // relative
)

// DefaultSource names the data provider when a snapshot carries none.
const DefaultSource = "新浪财经"

const (
	evidenceNoData  = "缺少实时数据上下文,无法验证"
	evidenceMacro   = "宏观数据暂无实时验证源,建议人工核查"
	forexPairUSDCNY = "USD/CNY"
)

// Checker extracts and verifies claims. The zero value is not usable; use New.
type Checker struct {
	rules []Rule
	log   *slog.Logger
}

// New creates a checker with the default rule table.
func New() *Checker {
	return NewWithRules(DefaultRules)
}

// NewWithRules creates a checker with a custom rule table.
func NewWithRules(rules []Rule) *Checker {
	return &Checker{rules: rules, log: logger.Get()}
}

// Extract runs every rule over the report in table order.
func (c *Checker) Extract(report string) []core.Claim {
	var claims []core.Claim
	for _, rule := range c.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(report, -1) {
			raw := rule.value(m)
			claim := core.Claim{
				Kind:     rule.Kind,
				Text:     m[0],
				RawValue: raw,
				Error:    rule.Violation,
			}
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				claim.Value = &v
			}
			claims = append(claims, claim)
		}
	}
	c.log.Info("Extracted claims from report", "count", len(claims))
	return claims
}

// Verify returns verified copies of the claims. Claims that already carry an
// error are passed through unchanged. A nil snapshot leaves every claim
// unverified.
func (c *Checker) Verify(claims []core.Claim, snap *core.Snapshot) []core.Claim {
	out := make([]core.Claim, len(claims))
	verified := 0
	for i, claim := range claims {
		if claim.Error == "" {
			claim = verifyClaim(claim, snap)
		}
		if claim.Verified {
			verified++
		}
		out[i] = claim
	}
	c.log.Info("Verified claims", "verified", verified, "total", len(out))
	return out
}

func verifyClaim(claim core.Claim, snap *core.Snapshot) core.Claim {
	if claim.Kind == core.ClaimMacro {
		claim.Verified = false
		claim.Confidence = 0.5
		claim.Evidence = evidenceMacro
		return claim
	}
	if claim.Value == nil {
		claim.Error = formatError(claim.Kind)
		return claim
	}

	switch claim.Kind {
	case core.ClaimStockPrice:
		return verifyStockPrice(claim, snap)
	case core.ClaimPriceChange:
		return verifyPriceChange(claim, snap)
	case core.ClaimGoldPrice:
		return verifyGoldPrice(claim, snap)
	case core.ClaimForexRate:
		return verifyForexRate(claim, snap)
	}
	return claim
}

func formatError(kind core.ClaimKind) string {
	switch kind {
	case core.ClaimStockPrice:
		return "价格格式错误"
	case core.ClaimPriceChange:
		return "涨跌幅格式错误"
	case core.ClaimGoldPrice:
		return "金价格式错误"
	case core.ClaimForexRate:
		return "汇率格式错误"
	default:
		return "数值格式错误"
	}
}

func sourceOf(snap *core.Snapshot) string {
	if snap.Source != "" {
		return snap.Source
	}
	return DefaultSource
}

// stockCodes returns the snapshot codes in a stable order.
func stockCodes(snap *core.Snapshot) []string {
	codes := make([]string, 0, len(snap.Stocks))
	for code := range snap.Stocks {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func verifyStockPrice(claim core.Claim, snap *core.Snapshot) core.Claim {
	if snap == nil || len(snap.Stocks) == 0 {
		claim.Evidence = evidenceNoData
		return claim
	}
	claimed := *claim.Value
	for _, code := range stockCodes(snap) {
		q := snap.Stocks[code]
		if q.Price <= 0 {
			continue
		}
		diff := math.Abs(q.Price-claimed) / q.Price
		if diff < PriceTolerance {
			claim.Verified = true
			claim.Confidence = 1 - diff
			claim.Evidence = fmt.Sprintf("实时数据验证: ¥%.2f (误差 %.1f%%)", q.Price, diff*100)
			claim.Source = sourceOf(snap)
			claim.Timestamp = q.Timestamp
			return claim
		}
	}
	claim.Verified = false
	claim.Confidence = 0
	claim.Evidence = "实时数据不符或未找到对应股票"
	return claim
}

func verifyPriceChange(claim core.Claim, snap *core.Snapshot) core.Claim {
	if snap == nil || len(snap.Stocks) == 0 {
		claim.Evidence = evidenceNoData
		return claim
	}
	claimed := *claim.Value
	for _, code := range stockCodes(snap) {
		q := snap.Stocks[code]
		diff := math.Abs(q.ChangePct - claimed)
		if diff < ChangeTolerance {
			claim.Verified = true
			claim.Confidence = 1 - diff
			claim.Evidence = fmt.Sprintf("实时涨跌幅: %+.2f%%", q.ChangePct)
			claim.Source = sourceOf(snap)
			claim.Timestamp = q.Timestamp
			return claim
		}
	}
	claim.Verified = false
	claim.Confidence = 0
	claim.Evidence = "实时涨跌幅数据不符"
	return claim
}

func verifyGoldPrice(claim core.Claim, snap *core.Snapshot) core.Claim {
	if snap == nil || snap.Gold == nil || snap.Gold.PriceUSD <= 0 {
		claim.Evidence = evidenceNoData
		return claim
	}
	claimed, actual := *claim.Value, snap.Gold.PriceUSD
	diff := math.Abs(actual-claimed) / actual
	if diff < GoldTolerance {
		claim.Verified = true
		claim.Confidence = 1 - diff
		claim.Evidence = fmt.Sprintf("实时金价: $%.2f/盎司 (误差 %.1f%%)", actual, diff*100)
		claim.Source = sourceOf(snap)
		claim.Timestamp = snap.Gold.Timestamp
		return claim
	}
	claim.Verified = false
	claim.Confidence = 0
	claim.Evidence = fmt.Sprintf("实时金价不符: $%.2f vs 断言 $%.2f (误差 %.1f%%)", actual, claimed, diff*100)
	return claim
}

func verifyForexRate(claim core.Claim, snap *core.Snapshot) core.Claim {
	if snap == nil {
		claim.Evidence = evidenceNoData
		return claim
	}
	q, ok := snap.Forex[forexPairUSDCNY]
	if !ok || q.Rate <= 0 {
		claim.Evidence = evidenceNoData
		return claim
	}
	claimed := *claim.Value
	diff := math.Abs(q.Rate-claimed) / q.Rate
	if diff < ForexTolerance {
		claim.Verified = true
		claim.Confidence = 1 - diff
		claim.Evidence = fmt.Sprintf("实时汇率: %.4f", q.Rate)
		claim.Source = sourceOf(snap)
		claim.Timestamp = q.Timestamp
		return claim
	}
	claim.Verified = false
	claim.Confidence = 0
	claim.Evidence = fmt.Sprintf("实时汇率不符: %.4f vs 断言 %.4f", q.Rate, claimed)
	return claim
}
