// Package ranking filters, deduplicates, orders and truncates scored
// articles before they are handed to report generation.
package ranking

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"marketbrief/internal/core"
	"marketbrief/internal/dedup"
	"marketbrief/internal/logger"
	"marketbrief/internal/scoring"
)

// Options overrides the values taken from the scoring configuration.
// Nil fields fall back to the configuration.
type Options struct {
	QualityThreshold *float64
	EnableDedup      *bool
	DedupThreshold   *float64
	MaxCount         *int
}

// Ranker applies score, threshold, dedup, sort and limit in that order.
type Ranker struct {
	engine *scoring.Engine
	log    *slog.Logger
}

// New creates a ranker around a scoring engine.
func New(engine *scoring.Engine) *Ranker {
	if engine == nil {
		engine = scoring.NewEngine(nil)
	}
	return &Ranker{engine: engine, log: logger.Get()}
}

// Engine returns the scoring engine used by the ranker.
func (r *Ranker) Engine() *scoring.Engine {
	return r.engine
}

// RankAndLimit scores copies of the articles, drops those below the quality
// threshold, removes near-duplicates, sorts by score descending and keeps
// at most MaxCount articles when MaxCount is positive. The input slice is
// never modified.
func (r *Ranker) RankAndLimit(articles []core.Article, opts Options) ([]core.Article, core.FilterStats) {
	cfg := r.engine.Config()
	threshold := valueOr(opts.QualityThreshold, cfg.QualityThreshold)
	enableDedup := valueOr(opts.EnableDedup, cfg.EnableDedup)
	dedupThreshold := valueOr(opts.DedupThreshold, cfg.DedupThreshold)
	maxCount := valueOr(opts.MaxCount, cfg.MaxArticles)

	stats := core.FilterStats{OriginalCount: len(articles)}

	scored := r.engine.Annotate(articles)
	filtered := make([]core.Article, 0, len(scored))
	for _, a := range scored {
		if a.QualityScore >= threshold {
			filtered = append(filtered, a)
		}
	}
	stats.AfterQualityFilter = len(filtered)
	stats.RemovedByQuality = stats.OriginalCount - stats.AfterQualityFilter

	r.log.Info("Quality filter applied",
		"threshold", threshold,
		"before", stats.OriginalCount,
		"after", stats.AfterQualityFilter)

	if len(filtered) == 0 {
		r.log.Warn("No articles passed the quality threshold", "threshold", threshold)
		stats.RetentionRate = retention(stats)
		return filtered, stats
	}

	kept := filtered
	if enableDedup {
		mode := dedup.Exhaustive
		if cfg.Advanced.UseFastDedup {
			mode = dedup.Fast
		}
		kept, _ = dedup.Deduplicate(filtered, dedup.Options{
			Threshold:      dedupThreshold,
			Field:          "title",
			PriorityFields: cfg.Advanced.DedupPriorityKeys,
			Mode:           mode,
			Logger:         r.log,
		})
	}
	stats.AfterDedup = len(kept)
	stats.RemovedByDedup = stats.AfterQualityFilter - stats.AfterDedup

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].QualityScore > kept[j].QualityScore
	})

	if maxCount > 0 && len(kept) > maxCount {
		kept = kept[:maxCount]
	}
	stats.FinalCount = len(kept)
	stats.RemovedByLimit = stats.AfterDedup - stats.FinalCount
	stats.RetentionRate = retention(stats)

	r.log.Info("Ranked articles",
		"original", stats.OriginalCount,
		"after_quality_filter", stats.AfterQualityFilter,
		"after_dedup", stats.AfterDedup,
		"final", stats.FinalCount,
		"retention_rate", stats.RetentionRate)

	if cfg.Advanced.ShowTopArticles {
		r.logTop(kept, cfg.Advanced.TopArticlesCount)
	}
	return kept, stats
}

func (r *Ranker) logTop(articles []core.Article, n int) {
	if n > len(articles) {
		n = len(articles)
	}
	for i := 0; i < n; i++ {
		a := articles[i]
		r.log.Info("Top article",
			"rank", i+1,
			"score", fmt.Sprintf("%.2f", a.QualityScore),
			"source", a.Source,
			"title", truncateRunes(a.Title, 50))
	}
}

func retention(s core.FilterStats) string {
	if s.OriginalCount == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(s.FinalCount)/float64(s.OriginalCount)*100)
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type sourceStat struct {
	name  string
	count int
	total float64
}

func (s sourceStat) avg() float64 { return s.total / float64(s.count) }

// QualityReport renders a markdown overview of the scored articles with a
// per-source table of count, average score and share, best sources first.
func QualityReport(articles []core.Article) string {
	if len(articles) == 0 {
		return "# 质量报告\n\n无文章数据"
	}

	bySource := map[string]*sourceStat{}
	var order []*sourceStat
	sum, lo, hi := 0.0, articles[0].QualityScore, articles[0].QualityScore
	for _, a := range articles {
		name := a.Source
		if name == "" {
			name = "Unknown"
		}
		s, ok := bySource[name]
		if !ok {
			s = &sourceStat{name: name}
			bySource[name] = s
			order = append(order, s)
		}
		s.count++
		s.total += a.QualityScore
		sum += a.QualityScore
		lo = min(lo, a.QualityScore)
		hi = max(hi, a.QualityScore)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].avg() > order[j].avg() })

	var b strings.Builder
	b.WriteString("# 📊 新闻质量分析报告\n\n")
	b.WriteString("## 总体统计\n\n")
	fmt.Fprintf(&b, "- 文章总数: %d\n", len(articles))
	fmt.Fprintf(&b, "- 来源数: %d\n", len(order))
	fmt.Fprintf(&b, "- 平均质量: %.2f\n", sum/float64(len(articles)))
	fmt.Fprintf(&b, "- 质量范围: %.2f - %.2f\n\n", lo, hi)
	b.WriteString("## 各来源质量统计\n\n")
	b.WriteString("| 来源 | 文章数 | 平均质量 | 占比 |\n")
	b.WriteString("|------|--------|----------|------|\n")
	for _, s := range order {
		fmt.Fprintf(&b, "| %s | %d | %.2f | %.1f%% |\n",
			s.name, s.count, s.avg(), float64(s.count)/float64(len(articles))*100)
	}
	return b.String()
}
