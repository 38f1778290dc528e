// Package dedup finds near-duplicate articles by fuzzy title similarity and
// keeps the most informative member of each group.
package dedup

import (
	"log/slog"
	"time"

	"marketbrief/internal/core"
	"marketbrief/internal/logger"
)

// DefaultThreshold is the similarity at which two titles are duplicates.
const DefaultThreshold = 0.85

// Options configures a deduplication pass.
type Options struct {
	Threshold      float64 // Similarity threshold in (0,1]
	Field          string  // Comparison field, title when empty
	PriorityFields []string
	Mode           Mode
	Logger         *slog.Logger
}

// Stats summarises a deduplication pass.
type Stats struct {
	Before          int `json:"before"`
	After           int `json:"after"`
	Removed         int `json:"removed"`
	DuplicateGroups int `json:"duplicate_groups"`
	SimilarPairs    int `json:"similar_pairs"`
}

// Deduplicate keeps one canonical article per near-duplicate group. Kept
// articles stay in their original order and are never modified.
func Deduplicate(articles []core.Article, opts Options) ([]core.Article, Stats) {
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	field := opts.Field
	if field == "" {
		field = "title"
	}
	priority := opts.PriorityFields
	if len(priority) == 0 {
		priority = DefaultPriorityFields
	}

	stats := Stats{Before: len(articles)}
	if len(articles) == 0 {
		return []core.Article{}, stats
	}

	started := time.Now()
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = fieldString(a, field)
	}
	groups, pairs := Group(texts, opts.Threshold, opts.Mode)

	keep := make([]bool, len(articles))
	for _, g := range groups {
		if len(g) > 1 {
			stats.DuplicateGroups++
		}
		keep[Select(g, articles, priority)] = true
	}

	out := make([]core.Article, 0, len(groups))
	for i, a := range articles {
		if keep[i] {
			out = append(out, a)
		}
	}

	stats.After = len(out)
	stats.Removed = stats.Before - stats.After
	stats.SimilarPairs = len(pairs)

	log.Info("Deduplicated articles",
		"mode", opts.Mode.String(),
		"threshold", opts.Threshold,
		"before", stats.Before,
		"after", stats.After,
		"removed", stats.Removed,
		"duplicate_groups", stats.DuplicateGroups,
		"similar_pairs", stats.SimilarPairs,
		"elapsed", time.Since(started))
	return out, stats
}

// MarkDuplicates flags the later member of every similar title pair found
// in fast mode. Nothing is removed.
func MarkDuplicates(articles []core.Article, threshold float64) []bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	titles := make([]string, len(articles))
	for i, a := range articles {
		titles[i] = a.Title
	}
	flags := make([]bool, len(articles))
	_, pairs := Group(titles, threshold, Fast)
	for _, p := range pairs {
		flags[p.J] = true
	}
	return flags
}
