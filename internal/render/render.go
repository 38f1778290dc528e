// Package render writes generated reports and their metadata to the
// archive tree.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"marketbrief/internal/core"
	"marketbrief/internal/logger"
)

// MetadataFile is the name of the per-day metadata file.
const MetadataFile = "analysis_meta.json"

// Writer lays reports out as <root>/YYYY-MM/<date>/reports/.
type Writer struct {
	root string
	now  func() time.Time
	loc  *time.Location
	log  *slog.Logger
}

// Option customises a Writer.
type Option func(*Writer)

// WithClock sets the clock used for the generation time header.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithLocation sets the zone of the generation time header.
func WithLocation(loc *time.Location) Option {
	return func(w *Writer) { w.loc = loc }
}

// NewWriter creates a writer rooted at root.
func NewWriter(root string, opts ...Option) *Writer {
	if root == "" {
		root = filepath.Join("docs", "archive")
	}
	w := &Writer{root: root, now: time.Now, loc: time.Local, log: logger.Get()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ReportDir returns the report directory for a YYYY-MM-DD date.
func (w *Writer) ReportDir(date string) (string, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid report date %q: %w", date, err)
	}
	return filepath.Join(w.root, date[:7], date, "reports"), nil
}

func (w *Writer) ensureDir(date string) (string, error) {
	dir, err := w.ReportDir(date)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return dir, nil
}

// ReportFileName returns the markdown file name for a date and model suffix.
func ReportFileName(date, suffix string) string {
	return fmt.Sprintf("📅 %s 财经分析报告_%s.md", date, suffix)
}

// SaveReport writes the report with a title and generation time header and
// returns its path.
func (w *Writer) SaveReport(date, report, suffix string) (string, error) {
	dir, err := w.ensureDir(date)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# 📅 %s 财经分析报告\n\n", date)
	fmt.Fprintf(&b, "> 📅 生成时间: %s (北京时间)\n\n", w.now().In(w.loc).Format("2006-01-02 15:04:05"))
	b.WriteString(strings.TrimSpace(report))
	b.WriteString("\n")

	path := filepath.Join(dir, ReportFileName(date, suffix))
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	w.log.Info("Report saved", "path", path)
	return path, nil
}

// SaveMetadata writes the run metadata next to the report.
func (w *Writer) SaveMetadata(date string, meta core.ReportMetadata) (string, error) {
	dir, err := w.ensureDir(date)
	if err != nil {
		return "", err
	}

	data, err := marshalIndent(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	path := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	w.log.Info("Metadata saved", "path", path)
	return path, nil
}

// SaveHTML renders the report to a standalone HTML page next to the
// markdown file.
func (w *Writer) SaveHTML(date, report, suffix string) (string, error) {
	dir, err := w.ensureDir(date)
	if err != nil {
		return "", err
	}

	title := fmt.Sprintf("%s 财经分析报告", date)
	page := fmt.Sprintf("<!DOCTYPE html>\n<html lang=\"zh-CN\">\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title), ToHTML(report))

	name := strings.TrimSuffix(ReportFileName(date, suffix), ".md") + ".html"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		return "", fmt.Errorf("failed to write HTML report: %w", err)
	}
	w.log.Info("HTML report saved", "path", path)
	return path, nil
}

// WriteJSON exports the report together with the articles it was built from.
func (w *Writer) WriteJSON(path, report string, articles []core.Article) error {
	if articles == nil {
		articles = []core.Article{}
	}
	data, err := marshalIndent(struct {
		SummaryMarkdown string         `json:"summary_markdown"`
		Articles        []core.Article `json:"articles"`
	}{report, articles})
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	w.log.Info("JSON exported", "path", path, "articles", len(articles))
	return nil
}

// ToHTML converts markdown to an HTML fragment.
func ToHTML(text string) string {
	if text == "" {
		return ""
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})

	return string(markdown.ToHTML([]byte(text), mdParser, renderer))
}

// marshalIndent encodes v with two-space indentation without escaping HTML
// characters.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
