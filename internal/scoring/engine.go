package scoring

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"marketbrief/internal/core"
	"marketbrief/internal/logger"
)

const (
	minScore = 0.0
	maxScore = 10.0
)

// Breakdown details each additive term of an article score.
type Breakdown struct {
	SourceWeight   float64  `json:"source_weight"`
	ContentBonus   float64  `json:"content_bonus"`
	KeywordBonus   float64  `json:"keyword_bonus"`
	SpamPenalty    float64  `json:"spam_penalty"`
	TitlePenalty   float64  `json:"title_penalty"`
	RecencyBonus   float64  `json:"recency_bonus"`
	MatchedKeyword []string `json:"matched_keywords,omitempty"`
	MatchedSpam    []string `json:"matched_spam,omitempty"`
	Total          float64  `json:"total"`
}

// Engine scores articles against an explicit filter configuration.
type Engine struct {
	cfg *Config
	now func() time.Time
	log *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for the recency bonus.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger overrides the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates a scoring engine. A nil config means defaults.
func NewEngine(cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = Default()
	}
	e := &Engine{cfg: cfg, now: time.Now, log: logger.Get()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the configuration the engine scores with.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Score calculates the quality score of an article in [0,10].
func (e *Engine) Score(a core.Article) float64 {
	return e.Breakdown(a).Total
}

// Breakdown calculates the score and keeps every intermediate term.
func (e *Engine) Breakdown(a core.Article) Breakdown {
	w := e.cfg.ScoringWeights
	var b Breakdown

	b.SourceWeight = e.cfg.SourceWeight(a.Source) * w.SourceWeightMultiplier
	b.ContentBonus = e.contentBonus(a)
	b.KeywordBonus, b.MatchedKeyword = e.keywordBonus(a)
	b.SpamPenalty, b.MatchedSpam = e.spamPenalty(a)
	b.TitlePenalty = e.titlePenalty(a)
	b.RecencyBonus = e.recencyBonus(a)

	total := b.SourceWeight + b.ContentBonus + b.KeywordBonus - b.SpamPenalty - b.TitlePenalty + b.RecencyBonus
	if math.IsNaN(total) {
		total = minScore
	}
	b.Total = math.Max(minScore, math.Min(maxScore, total))

	if e.cfg.Advanced.EnableDebugLog {
		e.log.Debug("Article score breakdown",
			"title", a.Title,
			"source", a.Source,
			"source_weight", b.SourceWeight,
			"content_bonus", b.ContentBonus,
			"keyword_bonus", b.KeywordBonus,
			"spam_penalty", b.SpamPenalty,
			"title_penalty", b.TitlePenalty,
			"recency_bonus", b.RecencyBonus,
			"total", b.Total)
	}
	return b
}

func (e *Engine) contentBonus(a core.Article) float64 {
	var bonus float64
	summaryLen := core.RuneLen(a.Summary)
	for _, r := range e.cfg.ContentLength.Summary {
		if summaryLen > r.Threshold {
			bonus += r.Score
		}
	}
	if a.Content != nil {
		contentLen := core.RuneLen(*a.Content)
		for _, r := range e.cfg.ContentLength.Content {
			if contentLen > r.Threshold {
				bonus += r.Score
			}
		}
	}
	return math.Min(bonus, e.cfg.ScoringWeights.ContentLengthMaxScore)
}

func (e *Engine) keywordBonus(a core.Article) (float64, []string) {
	text := a.Title + " " + a.Summary
	var bonus float64
	var matched []string
	for _, kw := range e.cfg.keywordOrder {
		if kw == "" || !strings.Contains(text, kw) {
			continue
		}
		bonus += e.cfg.ImportantKeywords[kw] * e.cfg.ScoringWeights.KeywordContribution
		matched = append(matched, kw)
	}
	return math.Min(bonus, e.cfg.ScoringWeights.KeywordMaxScore), matched
}

func (e *Engine) spamPenalty(a core.Article) (float64, []string) {
	text := a.Title + " " + a.Summary
	var penalty float64
	var matched []string
	for _, kw := range e.cfg.SpamKeywords {
		if kw == "" || !strings.Contains(text, kw) {
			continue
		}
		penalty += e.cfg.ScoringWeights.SpamPenaltyPerKeyword
		matched = append(matched, kw)
	}
	return math.Min(penalty, e.cfg.ScoringWeights.SpamPenaltyMax), matched
}

func (e *Engine) titlePenalty(a core.Article) float64 {
	var penalty float64
	for _, re := range e.cfg.titlePatterns {
		if re.MatchString(a.Title) {
			penalty += e.cfg.ScoringWeights.TitlePenaltyPerPattern
		}
	}
	return math.Min(penalty, e.cfg.ScoringWeights.TitlePenaltyMax)
}

// recencyBonus uses the first row, in ascending hours order, the article age
// fits into.
func (e *Engine) recencyBonus(a core.Article) float64 {
	if a.Published == nil || len(e.cfg.Timeliness) == 0 {
		return 0
	}
	age := e.now().Sub(*a.Published).Hours()
	for _, r := range e.cfg.Timeliness {
		if age <= r.Hours {
			return r.Score * e.cfg.ScoringWeights.TimelinessWeight
		}
	}
	return 0
}

// Annotate returns copies of the articles with QualityScore attached and
// logs the score distribution.
func (e *Engine) Annotate(articles []core.Article) []core.Article {
	out := make([]core.Article, len(articles))
	if len(articles) == 0 {
		return out
	}

	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for i, a := range articles {
		a.QualityScore = e.Score(a)
		out[i] = a
		sum += a.QualityScore
		lo = math.Min(lo, a.QualityScore)
		hi = math.Max(hi, a.QualityScore)
	}

	e.log.Info("Scored articles",
		"count", len(out),
		"avg", math.Round(sum/float64(len(out))*100)/100,
		"max", hi,
		"min", lo)
	return out
}
