package factcheck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"marketbrief/internal/core"
)

// LoadSnapshot reads a market data snapshot from a JSON or YAML file.
func LoadSnapshot(path string) (*core.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap core.Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &snap)
	default:
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// FormatSnapshot renders the snapshot as the prompt block that instructs the
// model to quote only these figures. A nil snapshot renders nothing.
func FormatSnapshot(snap *core.Snapshot) string {
	if snap == nil {
		return ""
	}
	ts := snap.Timestamp.Format("2006-01-02 15:04:05")
	source := snap.Source
	if source == "" {
		source = DefaultSource
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## 📊 实时市场数据（%s）\n\n", ts)
	b.WriteString("**重要说明**: 以下数据为实时市场行情,请在分析时**严格引用**这些数据,**禁止编造**任何未在此处列出的数值。\n\n")

	if len(snap.Stocks) > 0 {
		b.WriteString("### 股票行情\n\n")
		b.WriteString("| 股票代码 | 股票名称 | 现价 | 涨跌幅 | 更新时间 |\n")
		b.WriteString("|---------|---------|------|--------|----------|\n")
		for _, code := range stockCodes(snap) {
			q := snap.Stocks[code]
			fmt.Fprintf(&b, "| %s | %s | ¥%.2f | %+.2f%% | %s |\n", code, q.Name, q.Price, q.ChangePct, q.Timestamp)
		}
		b.WriteString("\n")
	}

	if snap.Gold != nil {
		b.WriteString("### 贵金属价格\n\n")
		fmt.Fprintf(&b, "- **国际黄金**: $%.2f/盎司 | 更新: %s\n\n", snap.Gold.PriceUSD, snap.Gold.Timestamp)
	}

	if len(snap.Forex) > 0 {
		b.WriteString("### 外汇汇率\n\n")
		pairs := make([]string, 0, len(snap.Forex))
		for pair := range snap.Forex {
			pairs = append(pairs, pair)
		}
		sort.Strings(pairs)
		for _, pair := range pairs {
			q := snap.Forex[pair]
			fmt.Fprintf(&b, "- **%s**: %.4f | 更新: %s\n", pair, q.Rate, q.Timestamp)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "**数据来源**: %s实时行情  \n", source)
	fmt.Fprintf(&b, "**数据时效**: %s  \n", ts)
	b.WriteString("**使用约束**:  \n")
	b.WriteString("1. ✅ 引用数据时必须标注来源和时间  \n")
	b.WriteString("2. ❌ 禁止编造任何未在上表中出现的价格或涨幅  \n")
	b.WriteString("3. ❌ 禁止推测未来具体目标价格或涨幅百分比  \n")
	b.WriteString("4. ✅ 可基于当前数据进行趋势分析,但需注明\"基于现价XX\"  \n")
	return b.String()
}
