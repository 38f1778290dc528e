package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"sort"

	"marketbrief/internal/logger"

	"gopkg.in/yaml.v3"
)

// LengthRule adds Score when a field is longer than Threshold characters.
type LengthRule struct {
	Threshold int     `yaml:"threshold"`
	Score     float64 `yaml:"score"`
}

// TimelinessRule awards Score to articles at most Hours old.
type TimelinessRule struct {
	Hours float64 `yaml:"hours"`
	Score float64 `yaml:"score"`
}

// LengthScoring holds the stepped bonus tables per field.
type LengthScoring struct {
	Summary []LengthRule `yaml:"summary"`
	Content []LengthRule `yaml:"content"`
}

// Weights holds the per-term factors and caps.
type Weights struct {
	SourceWeightMultiplier float64 `yaml:"source_weight_multiplier"`
	ContentLengthMaxScore  float64 `yaml:"content_length_max_score"`
	KeywordContribution    float64 `yaml:"keyword_contribution"`
	KeywordMaxScore        float64 `yaml:"keyword_max_score"`
	SpamPenaltyPerKeyword  float64 `yaml:"spam_penalty_per_keyword"`
	SpamPenaltyMax         float64 `yaml:"spam_penalty_max"`
	TitlePenaltyPerPattern float64 `yaml:"title_penalty_per_pattern"`
	TitlePenaltyMax        float64 `yaml:"title_penalty_max"`
	TimelinessWeight       float64 `yaml:"timeliness_weight"`
}

// Advanced holds logging and dedup tuning options.
type Advanced struct {
	EnableDebugLog    bool     `yaml:"enable_debug_log"`
	ShowTopArticles   bool     `yaml:"show_top_articles"`
	TopArticlesCount  int      `yaml:"top_articles_count"`
	DedupPriorityKeys []string `yaml:"dedup_priority_keys"`
	UseFastDedup      bool     `yaml:"use_fast_dedup"`
}

// Config is the complete article filter configuration. It is passed
// explicitly to every scoring and ranking call.
type Config struct {
	QualityThreshold   float64            `yaml:"quality_threshold"`
	DedupThreshold     float64            `yaml:"dedup_threshold"`
	EnableDedup        bool               `yaml:"enable_dedup"`
	MaxArticles        int                `yaml:"max_articles"`
	SourceWeights      map[string]float64 `yaml:"source_weights"`
	ImportantKeywords  map[string]float64 `yaml:"important_keywords"`
	SpamKeywords       []string           `yaml:"spam_keywords"`
	LowQualityPatterns []string           `yaml:"low_quality_patterns"`
	ScoringWeights     Weights            `yaml:"scoring_weights"`
	ContentLength      LengthScoring      `yaml:"content_length_scoring"`
	Timeliness         []TimelinessRule   `yaml:"timeliness_scoring"`
	Advanced           Advanced           `yaml:"advanced"`

	titlePatterns []*regexp.Regexp
	keywordOrder  []string
}

// Default returns the documented fallback configuration.
func Default() *Config {
	cfg := &Config{
		QualityThreshold: 2.5,
		DedupThreshold:   0.85,
		EnableDedup:      true,
		MaxArticles:      0,
		SourceWeights:    map[string]float64{"default": 1.0},
		ScoringWeights:   DefaultWeights(),
		Advanced: Advanced{
			EnableDebugLog:    false,
			ShowTopArticles:   true,
			TopArticlesCount:  10,
			DedupPriorityKeys: []string{"content", "summary", "quality_score"},
			UseFastDedup:      true,
		},
	}
	cfg.compile(logger.Get())
	return cfg
}

// DefaultWeights returns the default per-term factors and caps.
func DefaultWeights() Weights {
	return Weights{
		SourceWeightMultiplier: 1.0,
		ContentLengthMaxScore:  2.0,
		KeywordContribution:    0.3,
		KeywordMaxScore:        3.0,
		SpamPenaltyPerKeyword:  0.5,
		SpamPenaltyMax:         3.0,
		TitlePenaltyPerPattern: 0.5,
		TitlePenaltyMax:        2.0,
		TimelinessWeight:       1.0,
	}
}

// LoadConfig reads a YAML filter configuration. A missing or malformed file
// yields the defaults; fields absent from the file keep their default value.
func LoadConfig(path string) *Config {
	log := logger.Get()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Quality filter config not found, using defaults", "path", path)
		} else {
			log.Warn("Failed to read quality filter config, using defaults", "path", path, "error", err)
		}
		return Default()
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		log.Warn("Failed to parse quality filter config, using defaults", "path", path, "error", err)
		return Default()
	}

	log.Info("Loaded quality filter config", "path", path,
		"sources", len(cfg.SourceWeights),
		"keywords", len(cfg.ImportantKeywords),
		"spam_keywords", len(cfg.SpamKeywords))
	return cfg
}

// ParseConfig decodes YAML on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode quality filter config: %w", err)
	}
	cfg.normalize(logger.Get())
	cfg.compile(logger.Get())
	return cfg, nil
}

// normalize fixes values that would otherwise break scoring. Non-finite
// numbers fall back to their default or drop the entry that holds them.
func (c *Config) normalize(log *slog.Logger) {
	c.dropNonFinite(log)
	if c.SourceWeights == nil {
		c.SourceWeights = map[string]float64{"default": 1.0}
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		c.DedupThreshold = 0.85
	}
	if c.MaxArticles < 0 {
		c.MaxArticles = 0
	}
	if c.Advanced.TopArticlesCount <= 0 {
		c.Advanced.TopArticlesCount = 10
	}
	if len(c.Advanced.DedupPriorityKeys) == 0 {
		c.Advanced.DedupPriorityKeys = []string{"content", "summary", "quality_score"}
	}
	sort.SliceStable(c.Timeliness, func(i, j int) bool {
		return c.Timeliness[i].Hours < c.Timeliness[j].Hours
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Config) dropNonFinite(log *slog.Logger) {
	defaults := Default()
	if !finite(c.QualityThreshold) {
		log.Warn("Ignoring non-finite quality threshold", "value", c.QualityThreshold)
		c.QualityThreshold = defaults.QualityThreshold
	}
	if !finite(c.DedupThreshold) {
		c.DedupThreshold = defaults.DedupThreshold
	}

	w, dw := &c.ScoringWeights, defaults.ScoringWeights
	fields := []struct {
		name string
		v    *float64
		def  float64
	}{
		{"source_weight_multiplier", &w.SourceWeightMultiplier, dw.SourceWeightMultiplier},
		{"content_length_max_score", &w.ContentLengthMaxScore, dw.ContentLengthMaxScore},
		{"keyword_contribution", &w.KeywordContribution, dw.KeywordContribution},
		{"keyword_max_score", &w.KeywordMaxScore, dw.KeywordMaxScore},
		{"spam_penalty_per_keyword", &w.SpamPenaltyPerKeyword, dw.SpamPenaltyPerKeyword},
		{"spam_penalty_max", &w.SpamPenaltyMax, dw.SpamPenaltyMax},
		{"title_penalty_per_pattern", &w.TitlePenaltyPerPattern, dw.TitlePenaltyPerPattern},
		{"title_penalty_max", &w.TitlePenaltyMax, dw.TitlePenaltyMax},
		{"timeliness_weight", &w.TimelinessWeight, dw.TimelinessWeight},
	}
	for _, f := range fields {
		if !finite(*f.v) {
			log.Warn("Ignoring non-finite scoring weight", "weight", f.name, "value", *f.v)
			*f.v = f.def
		}
	}

	for name, table := range map[string]map[string]float64{"source_weights": c.SourceWeights, "important_keywords": c.ImportantKeywords} {
		for k, v := range table {
			if !finite(v) {
				log.Warn("Dropping non-finite weight", "table", name, "key", k, "value", v)
				delete(table, k)
			}
		}
	}

	c.ContentLength.Summary = finiteLengthRules(c.ContentLength.Summary)
	c.ContentLength.Content = finiteLengthRules(c.ContentLength.Content)
	rules := c.Timeliness[:0]
	for _, r := range c.Timeliness {
		if finite(r.Score) && !math.IsNaN(r.Hours) {
			rules = append(rules, r)
		}
	}
	c.Timeliness = rules
}

func finiteLengthRules(in []LengthRule) []LengthRule {
	out := in[:0]
	for _, r := range in {
		if finite(r.Score) {
			out = append(out, r)
		}
	}
	return out
}

// compile prepares title patterns and a deterministic keyword order.
// Invalid patterns are logged and skipped.
func (c *Config) compile(log *slog.Logger) {
	c.titlePatterns = c.titlePatterns[:0]
	for _, p := range c.LowQualityPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn("Skipping invalid low quality title pattern", "pattern", p, "error", err)
			continue
		}
		c.titlePatterns = append(c.titlePatterns, re)
	}

	c.keywordOrder = make([]string, 0, len(c.ImportantKeywords))
	for k := range c.ImportantKeywords {
		c.keywordOrder = append(c.keywordOrder, k)
	}
	sort.Strings(c.keywordOrder)
}

// SourceWeight returns the configured weight for a source, falling back to
// the "default" entry and then to 1.0.
func (c *Config) SourceWeight(source string) float64 {
	if w, ok := c.SourceWeights[source]; ok {
		return w
	}
	if w, ok := c.SourceWeights["default"]; ok {
		return w
	}
	return 1.0
}
