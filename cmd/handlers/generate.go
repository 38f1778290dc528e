package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketbrief/internal/config"
	"marketbrief/internal/cost"
	"marketbrief/internal/llm"
	"marketbrief/internal/logger"
	"marketbrief/internal/observability"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/quality"
	"marketbrief/internal/render"
)

// generateOptions holds the generate flags; schedule reuses them.
type generateOptions struct {
	date, start, end string
	limit            int
	maxArticles      int
	sources          string
	keywords         string
	order            string
	maxChars         int
	contentField     string
	qualityCheck     bool
	maxRetries       int
	provider         string
	model            string
	verify           bool
	snapshot         string
	prompt           string
	promptFile       string
	html             bool
	outputJSON       string
	file             string
}

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a market analysis report from stored news",
		Long: `Generate a market analysis report for a date range.

The pipeline:
  • Loads articles from the store (or --file)
  • Filters by source and keyword, scores and deduplicates them
  • Builds the model input with source statistics
  • Calls the configured LLM with model fallback
  • Optionally gates the report with a quality check and retries
  • Saves the report, its metadata and optionally HTML

Examples:
  # Today's report
  marketbrief generate

  # A single day with quality gating
  marketbrief generate --date 2025-10-11 --quality-check --max-retries 2

  # Fact-checked report against a market data snapshot
  marketbrief generate --verify --snapshot data/snapshot.json --provider deepseek`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.date, "date", "", "Single day to analyse (YYYY-MM-DD)")
	f.StringVar(&opts.start, "start", "", "Start date (YYYY-MM-DD), defaults to today")
	f.StringVar(&opts.end, "end", "", "End date (YYYY-MM-DD), defaults to today")
	f.IntVar(&opts.limit, "limit", 0, "Maximum rows to read (0 = no limit)")
	f.IntVar(&opts.maxArticles, "max-articles", 0, "Maximum articles after filtering (0 = no limit)")
	f.StringVar(&opts.sources, "source", "", "Only analyse these sources (comma separated)")
	f.StringVar(&opts.keywords, "keyword", "", "Only analyse articles whose title or summary contains a keyword (comma separated)")
	f.StringVar(&opts.order, "order", "desc", "Sort direction: asc or desc")
	f.IntVar(&opts.maxChars, "max-chars", 0, "Maximum characters passed to the model (default from config)")
	f.StringVar(&opts.contentField, "content-field", "", "Article body: summary, content or auto (default from config)")
	f.BoolVar(&opts.qualityCheck, "quality-check", false, "Gate the report with a quality check (default from config)")
	f.IntVar(&opts.maxRetries, "max-retries", 0, "Regenerations allowed after a failed check (default from config)")
	f.StringVar(&opts.provider, "provider", "", "LLM provider: gemini or deepseek (default from config)")
	f.StringVar(&opts.model, "model", "", "Use only this model")
	f.BoolVar(&opts.verify, "verify", false, "Inject market data and fact-check the report (default from config)")
	f.StringVar(&opts.snapshot, "snapshot", "", "Market data snapshot file (JSON or YAML)")
	f.StringVar(&opts.prompt, "prompt", "", "Prompt version: pro_v2, pro or safe")
	f.StringVar(&opts.promptFile, "prompt-file", "", "Prompt template file, overrides --prompt")
	f.BoolVar(&opts.html, "html", false, "Also write an HTML rendering (default from config)")
	f.StringVar(&opts.outputJSON, "output-json", "", "Export the report and articles to this JSON file")
	f.StringVar(&opts.file, "file", "", "Read articles from a JSON/YAML export instead of the database")

	return cmd
}

// applyConfigDefaults fills options the user did not set from config.
func (o *generateOptions) applyConfigDefaults(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool { return cmd != nil && cmd.Flags().Changed(name) }

	if !changed("quality-check") {
		o.qualityCheck = cfg.Quality.Check
	}
	if !changed("max-retries") {
		o.maxRetries = cfg.Quality.MaxRetries
	}
	if !changed("verify") {
		o.verify = cfg.Quality.Verify
	}
	if !changed("html") {
		o.html = cfg.Output.HTML
	}
	if o.maxChars == 0 {
		o.maxChars = cfg.Quality.MaxChars
	}
	if o.contentField == "" {
		o.contentField = cfg.Quality.ContentField
	}
	if o.snapshot == "" {
		o.snapshot = cfg.Quality.SnapshotFile
	}
	if o.prompt == "" {
		o.prompt = pipeline.DefaultPromptVersion(o.verify)
	}
}

func runGenerate(ctx context.Context, out io.Writer, cmd *cobra.Command, opts *generateOptions) error {
	log := logger.Get()
	startTime := time.Now()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts.applyConfigDefaults(cmd, cfg)

	prompt, err := loadPromptText(cfg, opts)
	if err != nil {
		return err
	}

	posthog, err := observability.NewPostHogClient(cfg.PostHog)
	if err != nil {
		log.Warn("PostHog disabled", "error", err)
		posthog = observability.Disabled()
	}
	defer func() {
		if err := posthog.Shutdown(context.Background()); err != nil {
			log.Warn("Failed to flush analytics", "error", err)
		}
	}()

	gateway, err := llm.NewFromConfig(ctx, cfg, opts.provider, posthog)
	if err != nil {
		return fmt.Errorf("failed to initialise LLM provider: %w", err)
	}

	source, closeSource, err := openSource(ctx, cfg, sourceOptions{File: opts.file})
	if err != nil {
		return err
	}
	defer closeSource()

	genOpts := []pipeline.GeneratorOption{
		pipeline.WithPostHog(posthog),
		pipeline.WithLocation(cfg.Location()),
	}
	if opts.verify {
		snap, err := loadSnapshot(opts.snapshot)
		if err != nil {
			return err
		}
		if snap == nil {
			fmt.Fprintln(out, "⚠️  --verify without a snapshot: claims cannot be checked against market data")
		}
		genOpts = append(genOpts, pipeline.WithSnapshot(snap))
	}

	writer := render.NewWriter(cfg.Output.Directory, render.WithLocation(cfg.Location()))
	gen := pipeline.NewGenerator(source, newRanker(cfg.Quality.FilterConfig), gateway, writer, genOpts...)

	fmt.Fprintf(out, "🤖 Generating report with %s (%d models configured)\n", gateway.Provider(), len(gateway.Models()))

	res, err := gen.Generate(ctx, opts.request(prompt))
	if err != nil {
		return err
	}

	printGenerateResult(out, res, time.Since(startTime))
	return nil
}

// request builds the pipeline request from the options.
func (o *generateOptions) request(prompt string) pipeline.Request {
	return pipeline.Request{
		Date:         o.date,
		Start:        o.start,
		End:          o.end,
		Limit:        o.limit,
		Order:        o.order,
		MaxArticles:  o.maxArticles,
		Sources:      pipeline.SplitList(o.sources),
		Keywords:     pipeline.SplitList(o.keywords),
		MaxChars:     o.maxChars,
		ContentField: pipeline.ParseContentField(o.contentField),
		Prompt:       prompt,
		Model:        o.model,
		QualityCheck: o.qualityCheck,
		MaxRetries:   o.maxRetries,
		Verify:       o.verify,
		HTML:         o.html,
		OutputJSON:   o.outputJSON,
	}
}

// loadPromptText reads --prompt-file or the versioned template from the
// prompt directory.
func loadPromptText(cfg *config.Config, opts *generateOptions) (string, error) {
	if opts.promptFile != "" {
		data, err := os.ReadFile(opts.promptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(data), nil
	}
	return pipeline.LoadPrompt(cfg.Output.PromptDir, opts.prompt)
}

func printGenerateResult(out io.Writer, res *pipeline.Result, elapsed time.Duration) {
	meta := res.Metadata
	fmt.Fprintf(out, "\n✅ Report generated\n")
	fmt.Fprintf(out, "   Date range: %s → %s\n", meta.DateRange.Start, meta.DateRange.End)
	fmt.Fprintf(out, "   Articles: %d (from %d, retention %s)\n", meta.ArticlesUsed, meta.FilterStats.OriginalCount, meta.FilterStats.RetentionRate)
	fmt.Fprintf(out, "   Model: %s (%s)\n", meta.ModelUsage.Model, cost.EstimateUsage(meta.ModelUsage))
	fmt.Fprintf(out, "   Attempts: %d (%s)\n", meta.Attempts, res.Outcome.State)
	if meta.QualityCheck != nil {
		fmt.Fprintf(out, "   %s\n", quality.Summary(*meta.QualityCheck))
	}
	if res.Corpus.Truncated() {
		fmt.Fprintf(out, "   ⚠️  Input truncated: %d of %d characters\n", res.Corpus.Len(), res.Corpus.TotalLen)
	}
	fmt.Fprintf(out, "   Report: %s\n", res.ReportPath)
	fmt.Fprintf(out, "   Metadata: %s\n", res.MetadataPath)
	if res.HTMLPath != "" {
		fmt.Fprintf(out, "   HTML: %s\n", res.HTMLPath)
	}
	fmt.Fprintf(out, "   Duration: %s\n", elapsed.Round(time.Millisecond))
}
