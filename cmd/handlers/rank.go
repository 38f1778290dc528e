package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"marketbrief/internal/config"
	"marketbrief/internal/core"
	"marketbrief/internal/dedup"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/ranking"
	"marketbrief/internal/store"
)

type rankOptions struct {
	date, start, end string
	order            string
	limit            int
	file             string
	threshold        float64
	noDedup          bool
	max              int
	show             int
}

// NewRankCmd creates the rank command
func NewRankCmd() *cobra.Command {
	opts := &rankOptions{}

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Score, deduplicate and rank articles without calling a model",
		Long: `Run the article selection stage on its own and print what would be
passed to the model: filter statistics, the per-source quality report and
the top articles.

Examples:
  # Rank today's articles from the store
  marketbrief rank

  # Rank an exported file with a stricter threshold
  marketbrief rank --file articles.json --threshold 4 --max 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			source, closeSource, err := openSource(cmd.Context(), cfg, sourceOptions{File: opts.file})
			if err != nil {
				return err
			}
			defer closeSource()

			var o ranking.Options
			if cmd.Flags().Changed("threshold") {
				o.QualityThreshold = &opts.threshold
			}
			if opts.noDedup {
				off := false
				o.EnableDedup = &off
			}
			if cmd.Flags().Changed("max") {
				o.MaxCount = &opts.max
			}
			return runRank(cmd.Context(), cmd.OutOrStdout(), source, newRanker(cfg.Quality.FilterConfig), cfg, opts, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.date, "date", "", "Single day (YYYY-MM-DD)")
	f.StringVar(&opts.start, "start", "", "Start date (YYYY-MM-DD), defaults to today")
	f.StringVar(&opts.end, "end", "", "End date (YYYY-MM-DD), defaults to today")
	f.StringVar(&opts.order, "order", "desc", "Sort direction when reading: asc or desc")
	f.IntVar(&opts.limit, "limit", 0, "Maximum rows to read (0 = no limit)")
	f.StringVar(&opts.file, "file", "", "Read articles from a JSON/YAML export instead of the database")
	f.Float64Var(&opts.threshold, "threshold", 0, "Quality threshold override")
	f.BoolVar(&opts.noDedup, "no-dedup", false, "Skip near-duplicate removal")
	f.IntVar(&opts.max, "max", 0, "Keep at most this many articles (0 = no limit)")
	f.IntVar(&opts.show, "show", 10, "Number of top articles to list")

	return cmd
}

func runRank(ctx context.Context, out io.Writer, source pipeline.ArticleSource, ranker *ranking.Ranker, cfg *config.Config, opts *rankOptions, o ranking.Options) error {
	loc := cfg.Location()
	dates, err := pipeline.ResolveDateRange(opts.date, opts.start, opts.end, now(), loc)
	if err != nil {
		return err
	}

	articles, err := source.Articles(ctx, store.Query{Start: dates.Start, End: dates.End, Order: opts.order, Limit: opts.limit})
	if err != nil {
		return fmt.Errorf("failed to load articles: %w", err)
	}
	if len(articles) == 0 {
		fmt.Fprintf(out, "⚠️  No articles between %s and %s\n", dates.Start, dates.End)
		return nil
	}

	dedupThreshold := ranker.Engine().Config().DedupThreshold
	if o.DedupThreshold != nil {
		dedupThreshold = *o.DedupThreshold
	}
	similar := 0
	for _, dup := range dedup.MarkDuplicates(articles, dedupThreshold) {
		if dup {
			similar++
		}
	}

	kept, stats := ranker.RankAndLimit(articles, o)
	printRanking(out, kept, stats, similar, opts.show)
	return nil
}

func printRanking(out io.Writer, kept []core.Article, stats core.FilterStats, similar, show int) {
	fmt.Fprintf(out, "📊 Filter statistics\n")
	fmt.Fprintf(out, "   Original: %d (%d with a similar earlier title)\n", stats.OriginalCount, similar)
	fmt.Fprintf(out, "   After quality filter: %d (-%d)\n", stats.AfterQualityFilter, stats.RemovedByQuality)
	fmt.Fprintf(out, "   After dedup: %d (-%d)\n", stats.AfterDedup, stats.RemovedByDedup)
	fmt.Fprintf(out, "   Final: %d (-%d), retention %s\n", stats.FinalCount, stats.RemovedByLimit, stats.RetentionRate)

	if len(kept) == 0 {
		return
	}
	fmt.Fprintln(out, ranking.QualityReport(kept))

	fmt.Fprintf(out, "🏆 Top articles\n")
	for i, a := range kept[:min(show, len(kept))] {
		fmt.Fprintf(out, "  %2d. [%.2f] %s (%s)\n", i+1, a.QualityScore, a.Title, a.Source)
	}
}
