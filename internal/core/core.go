package core

import (
	"time"
	"unicode/utf8"
)

// Article represents one stored news item read from the article store.
type Article struct {
	ID             int64      `json:"id" yaml:"id"`                                               // Store identifier
	Source         string     `json:"source_name" yaml:"source_name"`                             // Feed/source display name
	Title          string     `json:"title" yaml:"title"`                                         // Headline
	Summary        string     `json:"summary" yaml:"summary"`                                     // Feed summary (plain text)
	Content        *string    `json:"content,omitempty" yaml:"content,omitempty"`                 // Full body when the crawler captured it
	Published      *time.Time `json:"-" yaml:"-"`                                                 // Parsed publish time, nil when absent or unparsable
	PublishedRaw   string     `json:"published,omitempty" yaml:"published,omitempty"`             // Publish time as stored
	Link           string     `json:"link" yaml:"link"`                                           // Canonical URL
	CollectionDate string     `json:"collection_date,omitempty" yaml:"collection_date,omitempty"` // YYYY-MM-DD the item was collected
	QualityScore   float64    `json:"quality_score" yaml:"quality_score"`                         // Derived score in [0,10], recomputable
}

// ContentText returns the content body or an empty string.
func (a Article) ContentText() string {
	if a.Content == nil {
		return ""
	}
	return *a.Content
}

// HasContent reports whether a non-empty content body is present.
func (a Article) HasContent() bool {
	return a.Content != nil && *a.Content != ""
}

// RuneLen counts characters rather than bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}

// DuplicateGroup is one cell of the partition over an article batch.
type DuplicateGroup []int

// Usage carries per-call accounting returned by an LLM backend.
type Usage struct {
	Model            string `json:"model"`
	Provider         string `json:"provider"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
}

// GenerationAttempt records one pass through the generation gateway.
type GenerationAttempt struct {
	Number int    `json:"number"` // Zero-based attempt ordinal
	Report string `json:"-"`      // Generated report text
	Usage  Usage  `json:"usage"`
}

// ClaimKind classifies an extracted numeric assertion.
type ClaimKind string

const (
	ClaimStockPrice  ClaimKind = "stock_price"
	ClaimPriceChange ClaimKind = "price_change"
	ClaimGoldPrice   ClaimKind = "gold_price"
	ClaimForexRate   ClaimKind = "forex_rate"
	ClaimMacro       ClaimKind = "macro"
)

// Label returns the display name used in annotations.
func (k ClaimKind) Label() string {
	switch k {
	case ClaimStockPrice:
		return "股价断言"
	case ClaimPriceChange:
		return "涨跌幅断言"
	case ClaimGoldPrice:
		return "金价断言"
	case ClaimForexRate:
		return "汇率断言"
	case ClaimMacro:
		return "宏观数据断言"
	default:
		return string(k)
	}
}

// Claim is a numeric assertion extracted from report text.
type Claim struct {
	Kind       ClaimKind `json:"kind"`
	Text       string    `json:"text"`                // Raw matched text
	RawValue   string    `json:"raw_value"`           // Captured numeric text
	Value      *float64  `json:"value,omitempty"`     // Parsed value, nil when unparsable
	Verified   bool      `json:"verified"`
	Confidence float64   `json:"confidence"`          // In [0,1]
	Evidence   string    `json:"evidence,omitempty"`
	Source     string    `json:"source,omitempty"`    // Data source that confirmed the claim
	Timestamp  string    `json:"timestamp,omitempty"` // Snapshot timestamp used for verification
	Error      string    `json:"error,omitempty"`     // Set for violations and unparsable values
}

// SubScores holds the fact-check-integrated score breakdown.
type SubScores struct {
	Accuracy    float64 `json:"accuracy_score"`    // Up to 60
	Timeliness  float64 `json:"timeliness_score"`  // Up to 20
	Reliability float64 `json:"reliability_score"` // Up to 20
}

// QualityResult is the verdict of a quality check over a generated report.
type QualityResult struct {
	Score               float64        `json:"score"`
	Passed              bool           `json:"passed"`
	Issues              []string       `json:"issues"`   // Blocking
	Warnings            []string       `json:"warnings"` // Non-blocking
	Stats               map[string]any `json:"stats"`
	SubScores           *SubScores     `json:"sub_scores,omitempty"`
	FabricationDetected bool           `json:"fabrication_detected,omitempty"`
	CheckedAt           time.Time      `json:"timestamp"`
}

// StockQuote is one equity entry of a snapshot.
type StockQuote struct {
	Name      string  `json:"name" yaml:"name"`
	Price     float64 `json:"price" yaml:"price"`
	ChangePct float64 `json:"change_pct" yaml:"change_pct"`
	Timestamp string  `json:"timestamp" yaml:"timestamp"`
}

// GoldQuote is the spot gold entry of a snapshot.
type GoldQuote struct {
	PriceUSD  float64 `json:"price_usd" yaml:"price_usd"`
	Timestamp string  `json:"timestamp" yaml:"timestamp"`
}

// ForexQuote is one currency pair entry of a snapshot.
type ForexQuote struct {
	Rate      float64 `json:"rate" yaml:"rate"`
	Timestamp string  `json:"timestamp" yaml:"timestamp"`
}

// Snapshot is a point-in-time capture of market data used to verify claims.
type Snapshot struct {
	Stocks    map[string]StockQuote `json:"stocks" yaml:"stocks"`
	Gold      *GoldQuote            `json:"gold,omitempty" yaml:"gold,omitempty"`
	Forex     map[string]ForexQuote `json:"forex" yaml:"forex"`
	Timestamp time.Time             `json:"timestamp" yaml:"timestamp"`
	Source    string                `json:"source,omitempty" yaml:"source,omitempty"` // Data provider name shown in evidence
}

// DateRange is an inclusive YYYY-MM-DD range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FilterStats summarises the ranking stage of a run.
type FilterStats struct {
	OriginalCount      int    `json:"original_count"`
	AfterQualityFilter int    `json:"after_quality_filter"`
	AfterDedup         int    `json:"after_dedup"`
	FinalCount         int    `json:"final_count"`
	RemovedByQuality   int    `json:"removed_by_quality"`
	RemovedByDedup     int    `json:"removed_by_dedup"`
	RemovedByLimit     int    `json:"removed_by_limit"`
	RetentionRate      string `json:"retention_rate,omitempty"`
}

// ReportMetadata is written next to every generated report.
type ReportMetadata struct {
	RunID               string         `json:"run_id"`
	DateRange           DateRange      `json:"date_range"`
	ArticlesUsed        int            `json:"articles_used"`
	Chunks              int            `json:"chunks"`
	ModelUsage          Usage          `json:"model_usage"`
	EstimatedCostUSD    float64        `json:"estimated_cost_usd,omitempty"`
	QualityCheck        *QualityResult `json:"quality_check"`
	VerificationEnabled bool           `json:"verification_enabled"`
	FilterStats         FilterStats    `json:"filter_stats"`
	Attempts            int            `json:"attempts"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
