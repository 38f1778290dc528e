package pipeline

import (
	"context"

	"marketbrief/internal/core"
	"marketbrief/internal/llm"
	"marketbrief/internal/store"
)

// TextGenerator produces a report from a system prompt and user content
type TextGenerator interface {
	Generate(ctx context.Context, prompt, content string, opts llm.Options) (string, core.Usage, error)
}

// ClaimVerifier extracts numeric claims from a report and checks them
// against market data
type ClaimVerifier interface {
	Extract(report string) []core.Claim
	Verify(claims []core.Claim, snapshot *core.Snapshot) []core.Claim
}

// ArticleSource loads the articles of a date range
type ArticleSource interface {
	Articles(ctx context.Context, q store.Query) ([]core.Article, error)
}

// ReportWriter persists reports and run metadata
type ReportWriter interface {
	SaveReport(date, report, suffix string) (string, error)
	SaveMetadata(date string, meta core.ReportMetadata) (string, error)
	SaveHTML(date, report, suffix string) (string, error)
	WriteJSON(path, report string, articles []core.Article) error
}
