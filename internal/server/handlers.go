package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketbrief/internal/core"
	"marketbrief/internal/factcheck"
	"marketbrief/internal/logger"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/quality"
	"marketbrief/internal/ranking"
	"marketbrief/internal/store"
)

// maxBodyBytes caps request bodies; reports and article batches stay well
// below it.
const maxBodyBytes = 8 << 20

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	Uptime         string `json:"uptime"`
	SnapshotLoaded bool   `json:"snapshot_loaded"`
	ArticlesAPI    bool   `json:"articles_api"`
	RateLimited    bool   `json:"rate_limited"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// QualityCheckRequest is the body of POST /api/quality/check
type QualityCheckRequest struct {
	Report   string         `json:"report"`
	Verified bool           `json:"verified"`
	Snapshot *core.Snapshot `json:"snapshot,omitempty"`
}

// QualityCheckResponse carries the verdict and the advice for a failed check
type QualityCheckResponse struct {
	Result   core.QualityResult `json:"result"`
	Summary  string             `json:"summary"`
	Feedback []string           `json:"feedback,omitempty"`
	Claims   []core.Claim       `json:"claims,omitempty"`
}

// FactCheckRequest is the body of POST /api/factcheck
type FactCheckRequest struct {
	Report   string         `json:"report"`
	Snapshot *core.Snapshot `json:"snapshot,omitempty"`
}

// FactCheckResponse lists the verified claims and their markdown annotation
type FactCheckResponse struct {
	Claims            []core.Claim      `json:"claims"`
	Counts            factcheck.Counts  `json:"counts"`
	AverageConfidence float64           `json:"average_confidence"`
	Score             factcheck.Summary `json:"score"`
	Annotation        string            `json:"annotation"`
}

// RankRequest is the body of POST /api/articles/rank. Nil overrides fall
// back to the scoring configuration.
type RankRequest struct {
	Articles         []core.Article `json:"articles"`
	QualityThreshold *float64       `json:"quality_threshold,omitempty"`
	EnableDedup      *bool          `json:"enable_dedup,omitempty"`
	DedupThreshold   *float64       `json:"dedup_threshold,omitempty"`
	MaxCount         *int           `json:"max_count,omitempty"`
}

// RankResponse holds the kept articles in rank order
type RankResponse struct {
	Articles []core.Article   `json:"articles"`
	Stats    core.FilterStats `json:"stats"`
	Report   string           `json:"report"`
}

// GenerateRequest is the body of POST /api/reports/generate. Unset fields
// keep the server defaults.
type GenerateRequest struct {
	Date         string `json:"date,omitempty"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
	Model        string `json:"model,omitempty"`
	MaxArticles  *int   `json:"max_articles,omitempty"`
	QualityCheck *bool  `json:"quality_check,omitempty"`
	MaxRetries   *int   `json:"max_retries,omitempty"`
	Verify       *bool  `json:"verify,omitempty"`
}

// GenerateResponse describes the saved report
type GenerateResponse struct {
	ReportPath   string              `json:"report_path"`
	MetadataPath string              `json:"metadata_path"`
	HTMLPath     string              `json:"html_path,omitempty"`
	State        string              `json:"state"`
	Metadata     core.ReportMetadata `json:"metadata"`
}

// ArticlesResponse is returned by GET /api/articles
type ArticlesResponse struct {
	DateRange core.DateRange `json:"date_range"`
	Count     int            `json:"count"`
	Articles  []core.Article `json:"articles"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"scoring": "ok"}

	if p, ok := s.articles.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.log.Warn("Health check failed", "check", "database", "error", err)
			checks["database"] = "error"
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
			return
		}
		checks["database"] = "ok"
	}

	if s.snapshot != nil {
		checks["snapshot"] = "ok"
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

// handleStatus handles the /api/status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
		SnapshotLoaded: s.snapshot != nil,
		ArticlesAPI:    s.articles != nil,
		RateLimited:    s.limiter != nil,
	})
}

// handleQualityCheck handles POST /api/quality/check
func (s *Server) handleQualityCheck(w http.ResponseWriter, r *http.Request) {
	var req QualityCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Report) == "" {
		respondError(w, http.StatusBadRequest, "report is required")
		return
	}

	var (
		checker quality.Checker = quality.NewStructuralChecker()
		claims  []core.Claim
	)
	if req.Verified {
		snap := s.snapshotFor(req.Snapshot)
		checker = quality.NewVerifiedChecker(snap, quality.WithClock(s.now), quality.WithLocation(s.loc))
		if snap != nil {
			claims = s.factChecker.Verify(s.factChecker.Extract(req.Report), snap)
			if claims == nil {
				claims = []core.Claim{}
			}
		}
	}

	result := checker.Check(r.Context(), req.Report, claims)
	resp := QualityCheckResponse{Result: result, Summary: quality.Summary(result), Claims: claims}
	if !result.Passed {
		resp.Feedback = quality.FeedbackItems(result)
	}

	s.log.Info("Quality check served", "verified", req.Verified, "score", result.Score, "passed", result.Passed)
	respondJSON(w, http.StatusOK, resp)
}

// handleFactCheck handles POST /api/factcheck
func (s *Server) handleFactCheck(w http.ResponseWriter, r *http.Request) {
	var req FactCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Report) == "" {
		respondError(w, http.StatusBadRequest, "report is required")
		return
	}
	snap := s.snapshotFor(req.Snapshot)
	if snap == nil {
		respondError(w, http.StatusBadRequest, "snapshot is required")
		return
	}

	claims := s.factChecker.Verify(s.factChecker.Extract(req.Report), snap)
	if claims == nil {
		claims = []core.Claim{}
	}
	respondJSON(w, http.StatusOK, FactCheckResponse{
		Claims:            claims,
		Counts:            factcheck.Count(claims),
		AverageConfidence: factcheck.AverageConfidence(claims),
		Score:             factcheck.Score(claims),
		Annotation:        factcheck.Annotate(claims),
	})
}

// handleRankArticles handles POST /api/articles/rank
func (s *Server) handleRankArticles(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	for i := range req.Articles {
		if req.Articles[i].Published == nil {
			req.Articles[i].Published = store.ParsePublished(req.Articles[i].PublishedRaw, s.loc)
		}
	}

	kept, stats := s.ranker.RankAndLimit(req.Articles, ranking.Options{
		QualityThreshold: req.QualityThreshold,
		EnableDedup:      req.EnableDedup,
		DedupThreshold:   req.DedupThreshold,
		MaxCount:         req.MaxCount,
	})
	respondJSON(w, http.StatusOK, RankResponse{
		Articles: kept,
		Stats:    stats,
		Report:   ranking.QualityReport(kept),
	})
}

// handleListArticles handles GET /api/articles
func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	if s.articles == nil {
		respondError(w, http.StatusNotFound, "article store not configured")
		return
	}

	q := r.URL.Query()
	dates, err := pipeline.ResolveDateRange(q.Get("date"), q.Get("start"), q.Get("end"), s.now(), s.loc)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	articles, err := s.articles.Articles(r.Context(), store.Query{
		Start: dates.Start,
		End:   dates.End,
		Order: q.Get("order"),
		Limit: limit,
	})
	if err != nil {
		s.log.Error("Failed to list articles", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load articles")
		return
	}
	if articles == nil {
		articles = []core.Article{}
	}
	respondJSON(w, http.StatusOK, ArticlesResponse{DateRange: dates, Count: len(articles), Articles: articles})
}

// handleGenerate handles POST /api/reports/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		respondError(w, http.StatusNotFound, "report generation not configured")
		return
	}

	var body GenerateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := pipeline.ResolveDateRange(body.Date, body.Start, body.End, s.now(), s.loc); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := s.genDefaults
	req.Date, req.Start, req.End = body.Date, body.Start, body.End
	if body.Model != "" {
		req.Model = body.Model
	}
	if body.MaxArticles != nil {
		req.MaxArticles = *body.MaxArticles
	}
	if body.QualityCheck != nil {
		req.QualityCheck = *body.QualityCheck
	}
	if body.MaxRetries != nil {
		req.MaxRetries = *body.MaxRetries
	}
	if body.Verify != nil {
		req.Verify = *body.Verify
	}
	req.OutputJSON = ""

	res, err := s.generator.Generate(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrNoArticles):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.log.Error("Report generation failed", "error", err)
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, GenerateResponse{
		ReportPath:   res.ReportPath,
		MetadataPath: res.MetadataPath,
		HTMLPath:     res.HTMLPath,
		State:        res.Outcome.State.String(),
		Metadata:     res.Metadata,
	})
}

// snapshotFor prefers the snapshot sent with the request.
func (s *Server) snapshotFor(requested *core.Snapshot) *core.Snapshot {
	if requested != nil {
		return requested
	}
	return s.snapshot
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Get().Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
