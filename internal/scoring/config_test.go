package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))

	assert.Equal(t, 2.5, cfg.QualityThreshold)
	assert.Equal(t, 0.85, cfg.DedupThreshold)
	assert.True(t, cfg.EnableDedup)
	assert.Equal(t, 0, cfg.MaxArticles)
	assert.Equal(t, DefaultWeights(), cfg.ScoringWeights)
	assert.Equal(t, []string{"content", "summary", "quality_score"}, cfg.Advanced.DedupPriorityKeys)
	assert.True(t, cfg.Advanced.UseFastDedup)
	assert.Equal(t, 10, cfg.Advanced.TopArticlesCount)
}

func TestLoadConfigMalformedFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("quality_threshold: [1, 2\n"), 0o644))

	cfg := LoadConfig(path)
	assert.Equal(t, 2.5, cfg.QualityThreshold)
}

func TestParseConfigMergesWithDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
quality_threshold: 4
source_weights:
  华尔街见闻: 2.0
scoring_weights:
  keyword_contribution: 0.5
timeliness_scoring:
  - {hours: 24, score: 0.5}
  - {hours: 6, score: 1.5}
`))
	require.NoError(t, err)

	assert.Equal(t, 4.0, cfg.QualityThreshold)
	assert.Equal(t, 0.85, cfg.DedupThreshold)
	assert.Equal(t, 2.0, cfg.SourceWeight("华尔街见闻"))
	assert.Equal(t, 1.0, cfg.SourceWeight("未知来源"))
	assert.Equal(t, 0.5, cfg.ScoringWeights.KeywordContribution)
	assert.Equal(t, 3.0, cfg.ScoringWeights.KeywordMaxScore)
	require.Len(t, cfg.Timeliness, 2)
	assert.Equal(t, 6.0, cfg.Timeliness[0].Hours)
}

func TestInvalidTitlePatternSkipped(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
low_quality_patterns:
  - "^震惊"
  - "([unclosed"
  - "！{3,}"
`))
	require.NoError(t, err)
	assert.Len(t, cfg.titlePatterns, 2)
}

func TestSourceWeightFallback(t *testing.T) {
	cfg := Default()
	cfg.SourceWeights = map[string]float64{}
	assert.Equal(t, 1.0, cfg.SourceWeight("any"))

	cfg.SourceWeights = map[string]float64{"default": 0.7}
	assert.Equal(t, 0.7, cfg.SourceWeight("any"))
}

func TestNonFiniteValuesFallBack(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
quality_threshold: .nan
dedup_threshold: .inf
source_weights:
  default: .nan
  华尔街见闻: 2.0
important_keywords:
  美联储: .inf
  降息: 1.5
scoring_weights:
  keyword_contribution: -.inf
  keyword_max_score: .nan
  timeliness_weight: 2.0
content_length_scoring:
  summary:
    - {threshold: 10, score: .nan}
    - {threshold: 50, score: 0.5}
timeliness_scoring:
  - {hours: .nan, score: 1.0}
  - {hours: 24, score: .inf}
  - {hours: 48, score: 0.5}
`))
	require.NoError(t, err)

	def := DefaultWeights()
	assert.Equal(t, 2.5, cfg.QualityThreshold)
	assert.Equal(t, 0.85, cfg.DedupThreshold)
	assert.Equal(t, map[string]float64{"华尔街见闻": 2.0}, cfg.SourceWeights)
	assert.Equal(t, map[string]float64{"降息": 1.5}, cfg.ImportantKeywords)
	assert.Equal(t, def.KeywordContribution, cfg.ScoringWeights.KeywordContribution)
	assert.Equal(t, def.KeywordMaxScore, cfg.ScoringWeights.KeywordMaxScore)
	assert.Equal(t, 2.0, cfg.ScoringWeights.TimelinessWeight)
	assert.Equal(t, []LengthRule{{Threshold: 50, Score: 0.5}}, cfg.ContentLength.Summary)
	assert.Equal(t, []TimelinessRule{{Hours: 48, Score: 0.5}}, cfg.Timeliness)
}
