package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/internal/config"
	"marketbrief/internal/core"
	"marketbrief/internal/llm"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/ranking"
	"marketbrief/internal/render"
	"marketbrief/internal/scoring"
	"marketbrief/internal/store"
)

var shanghai = time.FixedZone("CST", 8*3600)

func fixedNow() time.Time {
	return time.Date(2026, 1, 7, 16, 0, 0, 0, shanghai)
}

func testSnapshot() *core.Snapshot {
	return &core.Snapshot{
		Stocks: map[string]core.StockQuote{
			"sh601899": {Name: "紫金矿业", Price: 15.20, ChangePct: 2.48, Timestamp: "2026-01-07 15:00:00"},
		},
		Timestamp: time.Date(2026, 1, 7, 15, 0, 0, 0, shanghai),
	}
}

type fakeLister struct {
	articles []core.Article
	err      error
	pingErr  error
	queries  []store.Query
}

func (f *fakeLister) Articles(_ context.Context, q store.Query) ([]core.Article, error) {
	f.queries = append(f.queries, q)
	return f.articles, f.err
}

func (f *fakeLister) Ping(context.Context) error { return f.pingErr }

func newTestServer(t *testing.T, cfg config.Server, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithClock(fixedNow), WithLocation(shanghai)}, opts...)
	return New(cfg, opts...)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.Server{})
	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["scoring"])
	assert.NotContains(t, resp.Checks, "database")
}

func TestHealth_DatabaseDown(t *testing.T) {
	s := newTestServer(t, config.Server{}, WithArticles(&fakeLister{pingErr: errors.New("gone")}))
	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "error", resp.Checks["database"])
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, config.Server{}, WithSnapshot(testSnapshot()))
	resp := decode[StatusResponse](t, do(t, s, http.MethodGet, "/api/status", nil))
	assert.True(t, resp.SnapshotLoaded)
	assert.False(t, resp.ArticlesAPI)
	assert.False(t, resp.RateLimited)
}

func TestQualityCheck_BadRequests(t *testing.T) {
	s := newTestServer(t, config.Server{})

	rec := do(t, s, http.MethodPost, "/api/quality/check", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is empty", decode[ErrorResponse](t, rec).Error)

	rec = do(t, s, http.MethodPost, "/api/quality/check", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/quality/check", QualityCheckRequest{Report: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "report is required", decode[ErrorResponse](t, rec).Error)
}

func TestQualityCheck_Structural(t *testing.T) {
	s := newTestServer(t, config.Server{})
	rec := do(t, s, http.MethodPost, "/api/quality/check", QualityCheckRequest{Report: "今日市场可能上涨，或许下跌。"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[QualityCheckResponse](t, rec)
	assert.False(t, resp.Result.Passed)
	assert.Nil(t, resp.Result.SubScores)
	assert.NotEmpty(t, resp.Feedback)
	assert.Empty(t, resp.Claims)
	assert.True(t, strings.HasPrefix(resp.Summary, "⚠️ 质量检查:"))
}

func TestQualityCheck_VerifiedUsesServerSnapshot(t *testing.T) {
	s := newTestServer(t, config.Server{}, WithSnapshot(testSnapshot()))
	rec := do(t, s, http.MethodPost, "/api/quality/check", QualityCheckRequest{
		Report:   "紫金矿业现价15.23元【新闻1】",
		Verified: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[QualityCheckResponse](t, rec)
	require.NotNil(t, resp.Result.SubScores)
	require.NotEmpty(t, resp.Claims)
	assert.True(t, resp.Claims[0].Verified)
}

func TestFactCheck(t *testing.T) {
	s := newTestServer(t, config.Server{})

	rec := do(t, s, http.MethodPost, "/api/factcheck", FactCheckRequest{Report: "紫金矿业现价15.23元"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "snapshot is required", decode[ErrorResponse](t, rec).Error)

	rec = do(t, s, http.MethodPost, "/api/factcheck", FactCheckRequest{
		Report:   "紫金矿业现价15.23元",
		Snapshot: testSnapshot(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[FactCheckResponse](t, rec)
	require.NotEmpty(t, resp.Claims)
	assert.Equal(t, len(resp.Claims), resp.Counts.Total)
	assert.GreaterOrEqual(t, resp.Counts.Verified, 1)
	assert.Contains(t, resp.Annotation, "## 📌 事实核查报告")
}

func TestFactCheck_NoClaims(t *testing.T) {
	s := newTestServer(t, config.Server{}, WithSnapshot(testSnapshot()))
	rec := do(t, s, http.MethodPost, "/api/factcheck", FactCheckRequest{Report: "今天没有任何数字"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[FactCheckResponse](t, rec)
	assert.NotNil(t, resp.Claims)
	assert.Empty(t, resp.Claims)
	assert.Empty(t, resp.Annotation)
	assert.Equal(t, 50.0, resp.Score.Score)
}

func TestRankArticles(t *testing.T) {
	cfg, err := scoring.ParseConfig([]byte("quality_threshold: 0\n"))
	require.NoError(t, err)
	s := newTestServer(t, config.Server{}, WithRanker(ranking.New(scoring.NewEngine(cfg, scoring.WithClock(fixedNow)))))

	articles := []core.Article{
		{Source: "36氪", Title: "美联储宣布维持利率不变", Summary: "短", Link: "https://a"},
		{Source: "华尔街见闻", Title: "美联储宣布维持利率不变", Summary: "美联储宣布维持联邦基金利率目标区间不变，符合市场预期。", Link: "https://b", PublishedRaw: "2026-01-07 10:00:00"},
		{Source: "东方财富", Title: "A股三大指数集体收涨", Summary: "沪指收涨1.2%。", Link: "https://c"},
	}

	rec := do(t, s, http.MethodPost, "/api/articles/rank", RankRequest{Articles: articles})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RankResponse](t, rec)
	assert.Equal(t, 3, resp.Stats.OriginalCount)
	assert.Equal(t, 1, resp.Stats.RemovedByDedup)
	assert.Len(t, resp.Articles, 2)
	assert.NotEmpty(t, resp.Report)

	noDedup := false
	one := 1
	rec = do(t, s, http.MethodPost, "/api/articles/rank", RankRequest{Articles: articles, EnableDedup: &noDedup, MaxCount: &one})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[RankResponse](t, rec)
	assert.Equal(t, 0, resp.Stats.RemovedByDedup)
	assert.Equal(t, 2, resp.Stats.RemovedByLimit)
	assert.Len(t, resp.Articles, 1)
}

func TestListArticles(t *testing.T) {
	s := newTestServer(t, config.Server{})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/articles", nil).Code)

	lister := &fakeLister{articles: []core.Article{{Title: "一"}, {Title: "二"}}}
	s = newTestServer(t, config.Server{}, WithArticles(lister))

	rec := do(t, s, http.MethodGet, "/api/articles?start=2026-01-05&order=desc&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ArticlesResponse](t, rec)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, core.DateRange{Start: "2026-01-05", End: "2026-01-07"}, resp.DateRange)
	require.Len(t, lister.queries, 1)
	assert.Equal(t, store.Query{Start: "2026-01-05", End: "2026-01-07", Order: "desc", Limit: 10}, lister.queries[0])

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/articles?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/articles?date=yesterday", nil).Code)

	lister.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/articles", nil).Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.Server{RateLimit: config.RateLimit{Enabled: true, RPS: 0.001, Burst: 2}})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)

	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	other := httptest.NewRecorder()
	s.Router().ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestClientLimiter_KeysOnHostNotPort(t *testing.T) {
	l := newClientLimiter(0.001, 1)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := l.middleware(ok)

	var codes []int
	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.1:1001", "10.0.0.1:1002"} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, l.size())
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.1:1000", "10.0.0.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.9", "203.0.113.9"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clientKey(tt.addr), tt.addr)
	}
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	l := newClientLimiter(1, 1)
	now := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("b"))
	assert.Equal(t, 2, l.size())

	now = now.Add(limiterIdleTTL + limiterSweepTick + time.Second)
	assert.True(t, l.allow("c"))
	assert.Equal(t, 1, l.size())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, config.Server{CORS: config.CORS{Enabled: true, AllowedOrigins: []string{"https://app.example.com"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/quality/check", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type stubGateway struct {
	report string
	err    error
}

func (g stubGateway) Generate(context.Context, string, string, llm.Options) (string, core.Usage, error) {
	return g.report, core.Usage{Model: "stub-model", Provider: "stub"}, g.err
}

func newGenerateServer(t *testing.T, lister *fakeLister, gw stubGateway) *Server {
	t.Helper()
	cfg, err := scoring.ParseConfig([]byte("quality_threshold: 0\nenable_dedup: false\n"))
	require.NoError(t, err)
	gen := pipeline.NewGenerator(lister, ranking.New(scoring.NewEngine(cfg)), gw,
		render.NewWriter(t.TempDir(), render.WithClock(fixedNow)),
		pipeline.WithClock(fixedNow), pipeline.WithLocation(shanghai))
	return newTestServer(t, config.Server{}, WithGenerator(gen, pipeline.Request{Prompt: "prompt", Order: "desc"}))
}

func TestGenerate(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, do(t, newTestServer(t, config.Server{}), http.MethodPost, "/api/reports/generate", GenerateRequest{}).Code)

	lister := &fakeLister{articles: []core.Article{{Source: "36氪", Title: "AI芯片需求旺盛", Summary: "英伟达数据中心收入增长。", Link: "https://a"}}}
	s := newGenerateServer(t, lister, stubGateway{report: "## 市场概况\n\n平稳"})

	rec := do(t, s, http.MethodPost, "/api/reports/generate", GenerateRequest{Date: "2026-01-06"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[GenerateResponse](t, rec)
	assert.Equal(t, "passed", resp.State)
	assert.FileExists(t, resp.ReportPath)
	assert.Equal(t, core.DateRange{Start: "2026-01-06", End: "2026-01-06"}, resp.Metadata.DateRange)
	assert.Equal(t, "desc", lister.queries[0].Order)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/reports/generate", GenerateRequest{Date: "bad"}).Code)
}

func TestGenerate_ErrorMapping(t *testing.T) {
	s := newGenerateServer(t, &fakeLister{}, stubGateway{report: "r"})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/reports/generate", GenerateRequest{}).Code)

	lister := &fakeLister{articles: []core.Article{{Source: "36氪", Title: "标题", Summary: "摘要", Link: "https://a"}}}
	s = newGenerateServer(t, lister, stubGateway{err: errors.New("upstream down")})
	rec := do(t, s, http.MethodPost, "/api/reports/generate", GenerateRequest{})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "upstream down")
}
