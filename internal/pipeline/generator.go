package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketbrief/internal/core"
	"marketbrief/internal/cost"
	"marketbrief/internal/factcheck"
	"marketbrief/internal/llm"
	"marketbrief/internal/logger"
	"marketbrief/internal/observability"
	"marketbrief/internal/quality"
	"marketbrief/internal/ranking"
	"marketbrief/internal/store"
)

// ErrNoArticles is returned when nothing is left to analyse.
var ErrNoArticles = errors.New("no articles to analyse")

const dateLayout = "2006-01-02"

// Request describes one report generation run.
type Request struct {
	Date  string // single day, overrides Start and End
	Start string
	End   string

	Limit       int    // rows read from the source, zero for all
	Order       string // asc or desc
	MaxArticles int
	Sources     []string
	Keywords    []string

	MaxChars     int
	ContentField ContentField

	Prompt       string
	Model        string
	QualityCheck bool
	MaxRetries   int
	Verify       bool

	HTML       bool
	OutputJSON string
}

// Result is what a successful run produced.
type Result struct {
	ReportPath   string
	MetadataPath string
	HTMLPath     string
	Report       string
	Metadata     core.ReportMetadata
	Outcome      Outcome
	Corpus       Corpus
}

// Generator runs load, filter, rank, corpus, generate, check and save.
type Generator struct {
	source      ArticleSource
	ranker      *ranking.Ranker
	gateway     TextGenerator
	writer      ReportWriter
	factChecker ClaimVerifier
	snapshot    *core.Snapshot
	posthog     *observability.PostHogClient
	loc         *time.Location
	now         func() time.Time
	log         *slog.Logger
}

// GeneratorOption customises a Generator.
type GeneratorOption func(*Generator)

// WithSnapshot sets the market data used for prompt injection and fact
// checking.
func WithSnapshot(snap *core.Snapshot) GeneratorOption {
	return func(g *Generator) { g.snapshot = snap }
}

// WithFactChecker replaces the default claim verifier.
func WithFactChecker(fc ClaimVerifier) GeneratorOption {
	return func(g *Generator) { g.factChecker = fc }
}

// WithPostHog enables run analytics.
func WithPostHog(p *observability.PostHogClient) GeneratorOption {
	return func(g *Generator) { g.posthog = p }
}

// WithLocation sets the zone used to resolve "today".
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *Generator) { g.loc = loc }
}

// WithClock sets the clock used for dates and timeliness.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator wires the run dependencies.
func NewGenerator(source ArticleSource, ranker *ranking.Ranker, gateway TextGenerator, writer ReportWriter, opts ...GeneratorOption) *Generator {
	if ranker == nil {
		ranker = ranking.New(nil)
	}
	g := &Generator{
		source:      source,
		ranker:      ranker,
		gateway:     gateway,
		writer:      writer,
		factChecker: factcheck.New(),
		loc:         time.Local,
		now:         time.Now,
		log:         logger.Get(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveDateRange picks the run's date range. A single date wins over
// start and end; missing bounds default to today in loc.
func ResolveDateRange(date, start, end string, now time.Time, loc *time.Location) (core.DateRange, error) {
	today := now.In(loc).Format(dateLayout)
	if date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return core.DateRange{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
		}
		return core.DateRange{Start: date, End: date}, nil
	}
	if start == "" {
		start = today
	}
	if end == "" {
		end = today
	}
	for _, d := range []string{start, end} {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return core.DateRange{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
		}
	}
	if start > end {
		return core.DateRange{}, fmt.Errorf("start date must not be after end date: %s > %s", start, end)
	}
	return core.DateRange{Start: start, End: end}, nil
}

// Generate runs the whole pipeline for req.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	startedAt := time.Now()
	runID := uuid.NewString()
	log := g.log.With("run_id", runID)

	dates, err := ResolveDateRange(req.Date, req.Start, req.End, g.now(), g.loc)
	if err != nil {
		return nil, err
	}
	field := req.ContentField
	if field == "" {
		field = FieldSummary
	}
	maxChars := req.MaxChars
	if maxChars == 0 {
		maxChars = DefaultMaxChars
	}
	log.Info("Starting report generation", "start", dates.Start, "end", dates.End,
		"content_field", field, "quality_check", req.QualityCheck, "verify", req.Verify)

	rows, err := g.source.Articles(ctx, store.Query{Start: dates.Start, End: dates.End, Order: req.Order, Limit: req.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w between %s and %s", ErrNoArticles, dates.Start, dates.End)
	}
	log.Info("Articles loaded", "count", len(rows))

	selected := FilterArticles(rows, FilterOptions{Sources: req.Sources, Keywords: req.Keywords, MaxArticles: req.MaxArticles})
	ranked, filterStats := g.ranker.RankAndLimit(selected, ranking.Options{})
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w after quality filtering", ErrNoArticles)
	}

	corpus := BuildCorpus(ranked, maxChars, DefaultChunkChars, field)
	log.Info("Corpus built", "chars", corpus.Len(), "original_chars", corpus.TotalLen,
		"chunks", corpus.ChunkCount(), "max_chars", maxChars)
	if corpus.Truncated() {
		log.Warn("Corpus truncated to max_chars", "from", corpus.TotalLen, "to", corpus.Len())
	}

	stats := SourceStatsBlock(ranked, field, dates.Start, dates.End)
	snapshot := g.snapshot
	if !req.Verify {
		snapshot = nil
	}
	if snapshot != nil {
		stats = factcheck.FormatSnapshot(snapshot) + "\n\n" + stats
	}
	content := stats + "\n\n" + corpus.Text()

	controller := &Controller{
		Gateway:      g.gateway,
		Checker:      g.checker(req.Verify, snapshot),
		Snapshot:     snapshot,
		MaxRetries:   req.MaxRetries,
		CheckEnabled: req.QualityCheck,
		Logger:       log,
	}
	if snapshot != nil {
		controller.FactChecker = g.factChecker
	}

	outcome, err := controller.Run(ctx, req.Prompt, content, llm.Options{PreferredModel: req.Model})
	if err != nil {
		_ = g.posthog.TrackError(ctx, "generation", err)
		return nil, err
	}

	report := outcome.Report
	if snapshot != nil && g.factChecker != nil {
		claims := g.factChecker.Verify(g.factChecker.Extract(report), snapshot)
		report += "\n\n" + factcheck.Annotate(claims)
		counts := factcheck.Count(claims)
		log.Info("Fact check appended", "claims", counts.Total, "verified", counts.Verified, "errors", counts.Errors)
	}

	meta := core.ReportMetadata{
		RunID:               runID,
		DateRange:           dates,
		ArticlesUsed:        len(ranked),
		Chunks:              corpus.ChunkCount(),
		ModelUsage:          outcome.Usage,
		EstimatedCostUSD:    cost.EstimateUsage(outcome.Usage).TotalCost,
		QualityCheck:        outcome.Quality,
		VerificationEnabled: req.Verify,
		FilterStats:         filterStats,
		Attempts:            len(outcome.Attempts),
		GeneratedAt:         g.now(),
	}

	suffix := outcome.Usage.Provider
	if suffix == "" {
		suffix = "ai"
	}

	result := &Result{Report: report, Metadata: meta, Outcome: outcome, Corpus: corpus}
	if result.ReportPath, err = g.writer.SaveReport(dates.End, report, suffix); err != nil {
		return nil, err
	}
	if result.MetadataPath, err = g.writer.SaveMetadata(dates.End, meta); err != nil {
		return nil, err
	}
	if req.HTML {
		if result.HTMLPath, err = g.writer.SaveHTML(dates.End, report, suffix); err != nil {
			return nil, err
		}
	}
	if req.OutputJSON != "" {
		if err := g.writer.WriteJSON(req.OutputJSON, report, rows); err != nil {
			return nil, err
		}
	}

	score, passed := 0.0, true
	if outcome.Quality != nil {
		score, passed = outcome.Quality.Score, outcome.Quality.Passed
	}
	_ = g.posthog.TrackReportGenerated(ctx, runID, len(ranked), len(outcome.Attempts), score, passed,
		time.Since(startedAt).Milliseconds())

	log.Info("Report generation completed", "report", result.ReportPath, "state", outcome.State.String(),
		"attempts", len(outcome.Attempts), "model", outcome.Usage.Model, "tokens", outcome.Usage.TotalTokens)
	return result, nil
}

func (g *Generator) checker(verify bool, snapshot *core.Snapshot) quality.Checker {
	if verify {
		return quality.NewVerifiedChecker(snapshot, quality.WithClock(g.now), quality.WithLocation(g.loc))
	}
	return quality.NewStructuralChecker()
}
