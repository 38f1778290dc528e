package quality

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"marketbrief/internal/core"
	"marketbrief/internal/logger"
)

// Sub-score caps of the fact-checked variant.
const (
	MaxAccuracy    = 60.0
	MaxTimeliness  = 20.0
	MaxReliability = 20.0
)

var (
	updateTimePattern   = regexp.MustCompile(`更新时间.*?(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2})`)
	targetGainPattern   = regexp.MustCompile(`目标涨幅\s*[:：]?\s*(\d+\.?\d*)\s*%`)
	targetPricePattern  = regexp.MustCompile(`目标价(?:格)?\s*[:：]?\s*([¥$]\d+\.?\d*)`)
	forecastPattern     = regexp.MustCompile(`预计.*?(?:增长|下降)\s*(\d+\.?\d*)\s*%`)
	whitespaceCollapser = regexp.MustCompile(`\s+`)
)

// VerifiedChecker scores a report from its fact-checked claims (accuracy),
// the freshness of the data it quotes (timeliness) and its sourcing
// (reliability), then deducts for fabricated forward-looking figures.
type VerifiedChecker struct {
	snapshot   *core.Snapshot
	thresholds Thresholds
	now        func() time.Time
	loc        *time.Location
}

// VerifiedOption customises a VerifiedChecker.
type VerifiedOption func(*VerifiedChecker)

// WithClock sets the clock used to age report timestamps.
func WithClock(now func() time.Time) VerifiedOption {
	return func(c *VerifiedChecker) { c.now = now }
}

// WithLocation sets the zone report timestamps are written in.
func WithLocation(loc *time.Location) VerifiedOption {
	return func(c *VerifiedChecker) { c.loc = loc }
}

// NewVerifiedChecker creates a fact-check integrated checker. snapshot may be
// nil when no market data was injected into the prompt.
func NewVerifiedChecker(snapshot *core.Snapshot, opts ...VerifiedOption) *VerifiedChecker {
	c := &VerifiedChecker{
		snapshot:   snapshot,
		thresholds: DefaultThresholds(),
		now:        time.Now,
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check scores the report. It passes at VerifiedPassMin with no issues and
// no fabrication.
func (c *VerifiedChecker) Check(_ context.Context, report string, claims []core.Claim) core.QualityResult {
	var issues, warnings []string
	stats := map[string]any{}

	// Accuracy
	accuracy := 30.0
	verified, errs := 0, 0
	for _, cl := range claims {
		if cl.Verified {
			verified++
		}
		if cl.Error != "" {
			errs++
		}
	}
	switch {
	case claims == nil:
		warnings = append(warnings, "⚠️ 未进行事实核查,准确性无法保证")
	case len(claims) == 0:
		warnings = append(warnings, "⚠️ 缺少可验证的具体断言,无法评估准确性")
	default:
		rate := float64(verified) / float64(len(claims))
		accuracy = rate * MaxAccuracy
		switch {
		case rate < 0.5:
			issues = append(issues, fmt.Sprintf("❌ 准确性严重不足: 仅%.0f%%的断言得到验证 (%d/%d)", rate*100, verified, len(claims)))
		case rate < 0.7:
			warnings = append(warnings, fmt.Sprintf("⚠️ 准确性偏低: %.0f%%的断言得到验证 (%d/%d)", rate*100, verified, len(claims)))
		}
		if errs > 0 {
			penalty := math.Min(float64(errs)*10, 30)
			accuracy = math.Max(0, accuracy-penalty)
			issues = append(issues, fmt.Sprintf("❌ 检测到 %d 个错误或违规断言,扣分 %.0f", errs, penalty))
		}
	}

	// Timeliness
	var timeliness float64
	hasRealtime := false
	var ageHours any
	if strings.Contains(report, "数据来源") && strings.Contains(report, "更新时间") {
		hasRealtime = true
		timeliness = 10
		if m := updateTimePattern.FindStringSubmatch(report); m != nil {
			raw := whitespaceCollapser.ReplaceAllString(m[1], " ")
			updated, err := time.ParseInLocation("2006-01-02 15:04", raw, c.loc)
			if err != nil {
				logger.Warn("Failed to parse report update time", "value", m[1], "error", err)
			} else {
				age := c.now().Sub(updated).Hours()
				ageHours = math.Round(age*10) / 10
				switch {
				case age < 1:
					timeliness = 20
				case age < 4:
					timeliness = 15
				case age < 24:
					timeliness = 10
					warnings = append(warnings, fmt.Sprintf("⚠️ 数据更新于%.1f小时前,时效性一般", age))
				default:
					timeliness = 5
					warnings = append(warnings, fmt.Sprintf("⚠️ 数据更新于%.1f小时前,时效性较差", age))
				}
			}
		}
	} else if c.snapshot != nil && !c.snapshot.Timestamp.IsZero() {
		hasRealtime = true
		timeliness = 10
		warnings = append(warnings, "⚠️ 报告中缺少实时数据标注,但系统已注入数据")
	} else {
		issues = append(issues, "❌ 缺少实时数据注入,报告时效性差")
	}

	// Reliability
	citations := CountCitations(report)
	annotated := strings.Contains(report, "数据来源") || strings.Contains(report, "来源：")
	var reliability float64
	switch {
	case citations >= 15 && annotated:
		reliability = 20
	case citations >= 10 && annotated:
		reliability = 15
	case citations >= 5 || annotated:
		reliability = 10
		warnings = append(warnings, fmt.Sprintf("⚠️ 引用来源偏少 (%d处),建议增加到15处以上", citations))
	default:
		reliability = 5
		issues = append(issues, fmt.Sprintf("❌ 引用来源严重不足 (%d处),缺乏可信度", citations))
	}

	score := accuracy + timeliness + reliability

	// Fabrication
	fabrication := false
	if gains := submatches(targetGainPattern, report); len(gains) > 0 {
		score -= 30
		fabrication = true
		issues = append(issues, fmt.Sprintf("❌❌❌ 严重违规: AI编造目标涨幅 (%s%%),明确禁止!", strings.Join(gains, ", ")))
	}
	if prices := submatches(targetPricePattern, report); len(prices) > 0 {
		score -= 20
		fabrication = true
		issues = append(issues, fmt.Sprintf("❌❌ 违规: AI编造目标价格 (%s),禁止!", strings.Join(prices, ", ")))
	}
	if n := len(forecastPattern.FindAllStringIndex(report, -1)); n > 3 {
		warnings = append(warnings, fmt.Sprintf("⚠️ 检测到多处未来预测 (%d处),请确认是否有依据", n))
	}
	if HasPlaceholder(report) {
		score -= 10
		issues = append(issues, "❌ 检测到N/A或待定占位符,未填写完整")
	}

	if missing := MissingSections(report); len(missing) > 0 {
		warnings = append(warnings, fmt.Sprintf("⚠️ 缺少章节: %s", strings.Join(missing, ", ")))
		score -= float64(len(missing)) * 5
	}

	score = math.Max(0, math.Min(100, score))
	score = math.Round(score*10) / 10

	stats["has_realtime_data"] = hasRealtime
	stats["data_age_hours"] = ageHours
	stats["citation_count"] = citations
	stats["verified_claims"] = verified
	stats["total_claims"] = len(claims)
	stats["fabrication_detected"] = fabrication

	return core.QualityResult{
		Score:    score,
		Passed:   score >= c.thresholds.VerifiedPassMin && len(issues) == 0 && !fabrication,
		Issues:   nonNil(issues),
		Warnings: nonNil(warnings),
		Stats:    stats,
		SubScores: &core.SubScores{
			Accuracy:    math.Round(accuracy*10) / 10,
			Timeliness:  timeliness,
			Reliability: reliability,
		},
		FabricationDetected: fabrication,
		CheckedAt:           c.now(),
	}
}

func submatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}
