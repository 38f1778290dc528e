package factcheck

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"marketbrief/internal/core"
)

const (
	maxVerifiedListed   = 5
	maxUnverifiedListed = 3
)

// Counts tallies a claim list.
type Counts struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Errors   int `json:"errors"`
}

// Count tallies verified and erroneous claims.
func Count(claims []core.Claim) Counts {
	c := Counts{Total: len(claims)}
	for _, claim := range claims {
		if claim.Verified {
			c.Verified++
		}
		if claim.Error != "" {
			c.Errors++
		}
	}
	return c
}

// AverageConfidence is the mean confidence of the verified claims, zero when
// none are verified.
func AverageConfidence(claims []core.Claim) float64 {
	var xs []float64
	for _, c := range claims {
		if c.Verified {
			xs = append(xs, c.Confidence)
		}
	}
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func confidenceRating(avg float64) string {
	switch {
	case avg >= 0.9:
		return "高"
	case avg >= 0.7:
		return "中"
	default:
		return "低"
	}
}

// Annotate renders the fact-check section appended to a final report.
// An empty claim list yields an empty string.
func Annotate(claims []core.Claim) string {
	if len(claims) == 0 {
		return ""
	}
	n := Count(claims)

	var b strings.Builder
	b.WriteString("\n\n---\n\n")
	b.WriteString("## 📌 事实核查报告\n\n")
	fmt.Fprintf(&b, "**总断言数**: %d  \n", n.Total)
	fmt.Fprintf(&b, "**已验证**: %d (%.1f%%)  \n", n.Verified, float64(n.Verified)/float64(n.Total)*100)
	fmt.Fprintf(&b, "**未验证**: %d  \n", n.Total-n.Verified)
	if n.Errors > 0 {
		fmt.Fprintf(&b, "**错误/违规**: %d ❌  \n", n.Errors)
	}
	avg := AverageConfidence(claims)
	fmt.Fprintf(&b, "**平均可信度**: %.1f%% (%s)  \n", avg*100, confidenceRating(avg))
	b.WriteString("\n")

	var verified, unverified, errored []core.Claim
	for _, c := range claims {
		switch {
		case c.Verified:
			verified = append(verified, c)
		case c.Error == "":
			unverified = append(unverified, c)
		}
		if c.Error != "" {
			errored = append(errored, c)
		}
	}

	if len(verified) > 0 {
		b.WriteString("### ✅ 已验证的断言\n\n")
		for _, c := range verified[:min(len(verified), maxVerifiedListed)] {
			fmt.Fprintf(&b, "- **%s** (可信度: %.0f%%)  \n", c.Text, c.Confidence*100)
			fmt.Fprintf(&b, "  > 验证依据: %s  \n", c.Evidence)
			if c.Source != "" {
				fmt.Fprintf(&b, "  > 数据来源: %s  \n", c.Source)
			}
			b.WriteString("\n")
		}
		if len(verified) > maxVerifiedListed {
			fmt.Fprintf(&b, "*（还有 %d 个已验证断言未完全列出）*\n\n", len(verified)-maxVerifiedListed)
		}
	}

	if len(unverified) > 0 {
		b.WriteString("### ⚠️ 无法验证的断言\n\n")
		for _, c := range unverified[:min(len(unverified), maxUnverifiedListed)] {
			reason := c.Evidence
			if reason == "" {
				reason = "缺少实时数据源"
			}
			fmt.Fprintf(&b, "- %s  \n", c.Text)
			fmt.Fprintf(&b, "  > 原因: %s  \n", reason)
			b.WriteString("\n")
		}
	}

	if len(errored) > 0 {
		b.WriteString("### ❌ 检测到的问题\n\n")
		for _, c := range errored {
			fmt.Fprintf(&b, "- **%s**  \n", c.Text)
			fmt.Fprintf(&b, "  > %s  \n", c.Error)
			b.WriteString("\n")
		}
	}

	b.WriteString("---\n\n")
	b.WriteString("**事实核查说明**:  \n")
	b.WriteString("- 本核查基于报告生成时的实时市场数据  \n")
	b.WriteString("- 数据来源: 新浪财经等公开API  \n")
	b.WriteString("- 价格类断言允许≤5%误差,涨跌幅允许≤0.5%误差  \n")
	if n.Errors > 0 {
		b.WriteString("\n⚠️ **重要提示**: 检测到违规内容,建议人工审核后再发布!  \n")
	}
	return b.String()
}

// Summary is the claim-only quality score of a report.
type Summary struct {
	Score    float64  `json:"score"`
	Accuracy float64  `json:"accuracy"`
	Passed   bool     `json:"passed"`
	Issues   []string `json:"issues"`
	Verified int      `json:"verified"`
	Total    int      `json:"total"`
	Errors   int      `json:"errors"`
}

// Score rates a report from its claims alone: the verified share is worth
// 60 points and every error costs 10, up to 40.
func Score(claims []core.Claim) Summary {
	if len(claims) == 0 {
		return Summary{Score: 50, Issues: []string{"缺少可验证的具体断言"}}
	}
	n := Count(claims)
	rate := float64(n.Verified) / float64(n.Total)
	penalty := math.Min(float64(n.Errors)*10, 40)
	score := math.Max(0, rate*60-penalty)

	var issues []string
	if rate < 0.5 {
		issues = append(issues, fmt.Sprintf("准确性严重不足: 仅%.0f%%的断言得到验证", rate*100))
	}
	if n.Errors > 0 {
		issues = append(issues, fmt.Sprintf("检测到 %d 个错误或违规断言", n.Errors))
	}

	return Summary{
		Score:    math.Round(score*10) / 10,
		Accuracy: rate,
		Passed:   score >= 80,
		Issues:   issues,
		Verified: n.Verified,
		Total:    n.Total,
		Errors:   n.Errors,
	}
}
