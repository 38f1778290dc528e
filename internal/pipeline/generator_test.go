package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/internal/core"
	"marketbrief/internal/ranking"
	"marketbrief/internal/render"
	"marketbrief/internal/scoring"
	"marketbrief/internal/store"
)

type fakeSource struct {
	articles []core.Article
	queries  []store.Query
}

func (f *fakeSource) Articles(_ context.Context, q store.Query) ([]core.Article, error) {
	f.queries = append(f.queries, q)
	return f.articles, nil
}

var shanghai = time.FixedZone("CST", 8*3600)

func fixedNow() time.Time {
	return time.Date(2026, 1, 7, 16, 0, 0, 0, shanghai)
}

func permissiveRanker(t *testing.T) *ranking.Ranker {
	t.Helper()
	cfg, err := scoring.ParseConfig([]byte("quality_threshold: 0\nenable_dedup: false\n"))
	require.NoError(t, err)
	return ranking.New(scoring.NewEngine(cfg, scoring.WithClock(fixedNow)))
}

func sampleArticles() []core.Article {
	return []core.Article{
		{Source: "华尔街见闻", Title: "美联储维持利率不变", Summary: "美联储宣布维持联邦基金利率不变。", Link: "https://a", PublishedRaw: "2026-01-07 09:00:00"},
		{Source: "36氪", Title: "紫金矿业发布业绩预告", Summary: "紫金矿业预计全年净利润大幅增长。", Link: "https://b", PublishedRaw: "2026-01-07 10:00:00", Content: core.StringPtr("紫金矿业公告全文")},
	}
}

func TestResolveDateRange(t *testing.T) {
	now := fixedNow()

	r, err := ResolveDateRange("", "", "", now, shanghai)
	require.NoError(t, err)
	assert.Equal(t, core.DateRange{Start: "2026-01-07", End: "2026-01-07"}, r)

	r, err = ResolveDateRange("2026-01-05", "2025-01-01", "2025-12-31", now, shanghai)
	require.NoError(t, err)
	assert.Equal(t, core.DateRange{Start: "2026-01-05", End: "2026-01-05"}, r)

	r, err = ResolveDateRange("", "2026-01-01", "", now, shanghai)
	require.NoError(t, err)
	assert.Equal(t, core.DateRange{Start: "2026-01-01", End: "2026-01-07"}, r)

	_, err = ResolveDateRange("", "2026-01-08", "2026-01-07", now, shanghai)
	assert.Error(t, err)

	_, err = ResolveDateRange("2026/01/07", "", "", now, shanghai)
	assert.Error(t, err)
}

func TestGenerate_WritesReportAndMetadata(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{articles: sampleArticles()}
	gw := &fakeGateway{reports: []string{"## 市场概况\n\n今日市场平稳。"}}
	writer := render.NewWriter(dir, render.WithClock(fixedNow), render.WithLocation(shanghai))
	g := NewGenerator(source, permissiveRanker(t), gw, writer, WithClock(fixedNow), WithLocation(shanghai))

	jsonPath := filepath.Join(dir, "out.json")
	res, err := g.Generate(context.Background(), Request{
		Date:       "2026-01-07",
		Order:      "desc",
		Prompt:     "你是财经分析师",
		HTML:       true,
		OutputJSON: jsonPath,
	})
	require.NoError(t, err)

	require.Len(t, source.queries, 1)
	assert.Equal(t, store.Query{Start: "2026-01-07", End: "2026-01-07", Order: "desc"}, source.queries[0])

	require.Len(t, gw.calls, 1)
	assert.Equal(t, "你是财经分析师", gw.calls[0].prompt)
	assert.Contains(t, gw.calls[0].content, "=== 数据统计信息 ===")
	assert.Contains(t, gw.calls[0].content, "【美联储维持利率不变】")
	assert.NotContains(t, gw.calls[0].content, "实时市场数据")

	assert.Equal(t, StatePassed, res.Outcome.State)
	assert.Nil(t, res.Metadata.QualityCheck)
	assert.Equal(t, 2, res.Metadata.ArticlesUsed)
	assert.Equal(t, 1, res.Metadata.Attempts)
	assert.NotEmpty(t, res.Metadata.RunID)
	assert.Equal(t, "fake", res.Metadata.ModelUsage.Provider)

	assert.Equal(t, "📅 2026-01-07 财经分析报告_fake.md", filepath.Base(res.ReportPath))
	saved, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(saved), "# 📅 2026-01-07 财经分析报告\n\n> 📅 生成时间: 2026-01-07 16:00:00 (北京时间)\n\n## 市场概况"))

	assert.FileExists(t, res.MetadataPath)
	assert.FileExists(t, res.HTMLPath)

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var exported struct {
		Summary  string         `json:"summary_markdown"`
		Articles []core.Article `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(raw, &exported))
	assert.Contains(t, exported.Summary, "今日市场平稳")
	assert.Len(t, exported.Articles, 2)
}

func TestGenerate_NoArticles(t *testing.T) {
	g := NewGenerator(&fakeSource{}, permissiveRanker(t), &fakeGateway{reports: []string{"r"}},
		render.NewWriter(t.TempDir()), WithClock(fixedNow), WithLocation(shanghai))

	_, err := g.Generate(context.Background(), Request{Date: "2026-01-07"})
	assert.ErrorIs(t, err, ErrNoArticles)
}

func TestGenerate_AllFilteredOut(t *testing.T) {
	cfg, err := scoring.ParseConfig([]byte("quality_threshold: 100\n"))
	require.NoError(t, err)
	gw := &fakeGateway{reports: []string{"r"}}
	g := NewGenerator(&fakeSource{articles: sampleArticles()}, ranking.New(scoring.NewEngine(cfg)), gw,
		render.NewWriter(t.TempDir()), WithClock(fixedNow), WithLocation(shanghai))

	_, err = g.Generate(context.Background(), Request{Date: "2026-01-07"})
	assert.ErrorIs(t, err, ErrNoArticles)
	assert.Empty(t, gw.calls)
}

func TestGenerate_InvalidDate(t *testing.T) {
	source := &fakeSource{articles: sampleArticles()}
	g := NewGenerator(source, permissiveRanker(t), &fakeGateway{reports: []string{"r"}}, render.NewWriter(t.TempDir()))

	_, err := g.Generate(context.Background(), Request{Date: "07-01-2026"})
	assert.Error(t, err)
	assert.Empty(t, source.queries)
}

func TestGenerate_VerifyInjectsSnapshotAndAnnotates(t *testing.T) {
	snap := &core.Snapshot{
		Stocks: map[string]core.StockQuote{
			"sh601899": {Name: "紫金矿业", Price: 15.20, ChangePct: 2.48, Timestamp: "2026-01-07 15:00:00"},
		},
		Timestamp: time.Date(2026, 1, 7, 15, 0, 0, 0, shanghai),
		Source:    "新浪财经",
	}
	gw := &fakeGateway{reports: []string{"## 市场概况\n\n紫金矿业现价15.23元,涨幅2.5%【新闻1】"}}
	g := NewGenerator(&fakeSource{articles: sampleArticles()}, permissiveRanker(t), gw,
		render.NewWriter(t.TempDir(), render.WithClock(fixedNow)),
		WithSnapshot(snap), WithClock(fixedNow), WithLocation(shanghai))

	res, err := g.Generate(context.Background(), Request{
		Date:         "2026-01-07",
		Verify:       true,
		QualityCheck: true,
		MaxRetries:   1,
	})
	require.NoError(t, err)

	require.NotEmpty(t, gw.calls)
	content := gw.calls[0].content
	assert.True(t, strings.HasPrefix(content, "## 📊 实时市场数据"))
	assert.Less(t, strings.Index(content, "实时市场数据"), strings.Index(content, "=== 数据统计信息 ==="))

	assert.Contains(t, res.Report, "## 📌 事实核查报告")
	require.NotNil(t, res.Metadata.QualityCheck)
	assert.NotNil(t, res.Metadata.QualityCheck.SubScores)
	assert.True(t, res.Metadata.VerificationEnabled)
	assert.NotEmpty(t, res.Outcome.Claims)
}

func TestGenerate_SnapshotIgnoredWithoutVerify(t *testing.T) {
	snap := &core.Snapshot{Stocks: map[string]core.StockQuote{"sh601899": {Name: "紫金矿业", Price: 15.2}}}
	gw := &fakeGateway{reports: []string{"紫金矿业现价15.23元"}}
	g := NewGenerator(&fakeSource{articles: sampleArticles()}, permissiveRanker(t), gw,
		render.NewWriter(t.TempDir()), WithSnapshot(snap), WithClock(fixedNow), WithLocation(shanghai))

	res, err := g.Generate(context.Background(), Request{Date: "2026-01-07"})
	require.NoError(t, err)
	assert.NotContains(t, gw.calls[0].content, "实时市场数据")
	assert.NotContains(t, res.Report, "事实核查报告")
}
