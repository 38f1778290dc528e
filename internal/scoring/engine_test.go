package scoring

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"marketbrief/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(`
source_weights:
  华尔街见闻: 2.0
  default: 1.0
important_keywords:
  美联储: 2.0
  降息: 1.5
  A股: 1.0
spam_keywords: [广告, 推广, 优惠]
low_quality_patterns: ["^震惊", "！！"]
content_length_scoring:
  summary:
    - {threshold: 50, score: 0.5}
    - {threshold: 200, score: 0.5}
  content:
    - {threshold: 1000, score: 1.0}
    - {threshold: 3000, score: 1.0}
timeliness_scoring:
  - {hours: 6, score: 1.0}
  - {hours: 24, score: 0.5}
`))
	require.NoError(t, err)
	return cfg
}

func publishedAgo(d time.Duration) *time.Time {
	ts := fixedNow.Add(-d)
	return &ts
}

func TestScoreSourceWeight(t *testing.T) {
	e := NewEngine(testConfig(t), WithClock(func() time.Time { return fixedNow }))

	assert.Equal(t, 2.0, e.Score(core.Article{Source: "华尔街见闻", Title: "x"}))
	assert.Equal(t, 1.0, e.Score(core.Article{Source: "其他", Title: "x"}))
}

func TestScoreContentBonusCapped(t *testing.T) {
	e := NewEngine(testConfig(t), WithClock(func() time.Time { return fixedNow }))

	a := core.Article{
		Source:  "其他",
		Title:   "x",
		Summary: strings.Repeat("字", 300),
		Content: core.StringPtr(strings.Repeat("文", 4000)),
	}
	b := e.Breakdown(a)
	assert.Equal(t, 2.0, b.ContentBonus)
	assert.Equal(t, 3.0, b.Total)
}

func TestScoreContentMeasuredInRunes(t *testing.T) {
	e := NewEngine(testConfig(t))

	// 40 Han runes are 120 bytes but stay under the 50 character threshold.
	b := e.Breakdown(core.Article{Summary: strings.Repeat("市", 40)})
	assert.Equal(t, 0.0, b.ContentBonus)
}

func TestScoreKeywordsAndSpam(t *testing.T) {
	e := NewEngine(testConfig(t))

	b := e.Breakdown(core.Article{
		Source:  "其他",
		Title:   "美联储宣布降息",
		Summary: "A股迎来推广活动",
	})
	assert.Equal(t, []string{"A股", "美联储", "降息"}, b.MatchedKeyword)
	assert.InDelta(t, (2.0+1.5+1.0)*0.3, b.KeywordBonus, 1e-9)
	assert.Equal(t, []string{"推广"}, b.MatchedSpam)
	assert.Equal(t, 0.5, b.SpamPenalty)
}

func TestScoreTitlePenalty(t *testing.T) {
	e := NewEngine(testConfig(t))

	b := e.Breakdown(core.Article{Source: "其他", Title: "震惊！！股市暴跌"})
	assert.Equal(t, 1.0, b.TitlePenalty)
	assert.Equal(t, 0.0, b.Total)
}

func TestScoreRecency(t *testing.T) {
	e := NewEngine(testConfig(t), WithClock(func() time.Time { return fixedNow }))

	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"fresh", 2 * time.Hour, 1.0},
		{"boundary", 6 * time.Hour, 1.0},
		{"same day", 12 * time.Hour, 0.5},
		{"stale", 48 * time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := e.Breakdown(core.Article{Title: "x", Published: publishedAgo(tt.age)})
			assert.Equal(t, tt.want, b.RecencyBonus)
		})
	}

	assert.Equal(t, 0.0, e.Breakdown(core.Article{Title: "x"}).RecencyBonus)
}

func TestScoreAlwaysWithinBounds(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourceWeights["华尔街见闻"] = 50
	e := NewEngine(cfg, WithClock(func() time.Time { return fixedNow }))

	words := []string{"美联储", "降息", "A股", "广告", "推广", "优惠", "震惊", "！！", "市场"}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		var title strings.Builder
		for j := 0; j < rng.Intn(6); j++ {
			title.WriteString(words[rng.Intn(len(words))])
		}
		a := core.Article{
			Source:    []string{"华尔街见闻", "其他"}[rng.Intn(2)],
			Title:     title.String(),
			Summary:   strings.Repeat("字", rng.Intn(400)),
			Published: publishedAgo(time.Duration(rng.Intn(72)) * time.Hour),
		}
		s := e.Score(a)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 10.0)
	}
}

func TestScoreWithinBoundsForAnyWeights(t *testing.T) {
	values := []float64{0, 0.5, 3, -4, 1e9, -1e9, math.Inf(1), math.Inf(-1), math.NaN()}
	words := []string{"美联储", "降息", "A股", "广告", "推广", "震惊", "！！", "市场"}
	rng := rand.New(rand.NewSource(11))
	pick := func() float64 { return values[rng.Intn(len(values))] }

	for i := 0; i < 300; i++ {
		cfg := testConfig(t)
		cfg.SourceWeights["华尔街见闻"] = pick()
		cfg.ImportantKeywords["美联储"] = pick()
		cfg.ScoringWeights = Weights{
			SourceWeightMultiplier: pick(),
			ContentLengthMaxScore:  pick(),
			KeywordContribution:    pick(),
			KeywordMaxScore:        pick(),
			SpamPenaltyPerKeyword:  pick(),
			SpamPenaltyMax:         pick(),
			TitlePenaltyPerPattern: pick(),
			TitlePenaltyMax:        pick(),
			TimelinessWeight:       pick(),
		}
		e := NewEngine(cfg, WithClock(func() time.Time { return fixedNow }))

		var title strings.Builder
		for j := 0; j < rng.Intn(5); j++ {
			title.WriteString(words[rng.Intn(len(words))])
		}
		s := e.Score(core.Article{
			Source:    []string{"华尔街见闻", "其他"}[rng.Intn(2)],
			Title:     title.String(),
			Summary:   strings.Repeat("字", rng.Intn(400)),
			Published: publishedAgo(time.Duration(rng.Intn(72)) * time.Hour),
		})
		require.False(t, math.IsNaN(s), "iteration %d", i)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 10.0)
	}
}

func TestAnnotateDoesNotMutateInput(t *testing.T) {
	e := NewEngine(testConfig(t))

	in := []core.Article{{Source: "华尔街见闻", Title: "a"}, {Source: "其他", Title: "b"}}
	out := e.Annotate(in)

	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].QualityScore)
	assert.Equal(t, 1.0, out[1].QualityScore)
	assert.Zero(t, in[0].QualityScore)
}

func TestNilConfigUsesDefaults(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, 1.0, e.Score(core.Article{Title: "任何标题"}))
}
