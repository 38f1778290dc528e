package pipeline

import (
	"fmt"
	"strings"

	"marketbrief/internal/core"
)

// ContentField selects the article body fed to the model.
type ContentField string

const (
	FieldSummary ContentField = "summary"
	FieldContent ContentField = "content"
	FieldAuto    ContentField = "auto"
)

// ParseContentField maps a flag value to a ContentField, defaulting to auto.
func ParseContentField(s string) ContentField {
	switch ContentField(strings.ToLower(strings.TrimSpace(s))) {
	case FieldSummary:
		return FieldSummary
	case FieldContent:
		return FieldContent
	default:
		return FieldAuto
	}
}

const (
	// DefaultChunkChars is the target size of one corpus chunk.
	DefaultChunkChars = 3000
	// DefaultMaxChars caps the corpus handed to the model.
	DefaultMaxChars = 500000
	// autoSummaryOver switches auto mode to the summary for long bodies.
	autoSummaryOver = 5000
)

// ArticleChunks is one article and the chunks of its corpus entry.
type ArticleChunks struct {
	Article core.Article
	Chunks  []string
}

// Corpus is the chunked model input built from ranked articles.
type Corpus struct {
	Entries []ArticleChunks
	// TotalLen is the length before max_chars truncation, in characters.
	TotalLen int
}

// Len returns the length of the kept chunks in characters.
func (c Corpus) Len() int {
	n := 0
	for _, e := range c.Entries {
		for _, ch := range e.Chunks {
			n += core.RuneLen(ch)
		}
	}
	return n
}

// ChunkCount returns the number of kept chunks.
func (c Corpus) ChunkCount() int {
	n := 0
	for _, e := range c.Entries {
		n += len(e.Chunks)
	}
	return n
}

// Text joins every kept chunk with blank lines.
func (c Corpus) Text() string {
	var parts []string
	for _, e := range c.Entries {
		parts = append(parts, e.Chunks...)
	}
	return strings.Join(parts, "\n\n")
}

// Truncated reports whether max_chars dropped part of the corpus.
func (c Corpus) Truncated() bool {
	return c.Len() < c.TotalLen
}

// articleBody picks the body text for the requested field.
func articleBody(a core.Article, field ContentField) string {
	content := a.ContentText()
	switch field {
	case FieldSummary:
		if a.Summary != "" {
			return a.Summary
		}
		return content
	case FieldContent:
		if content != "" {
			return content
		}
		return a.Summary
	default:
		if core.RuneLen(content) > autoSummaryOver && a.Summary != "" {
			return a.Summary
		}
		if content != "" {
			return content
		}
		return a.Summary
	}
}

// ArticleText renders the corpus entry of one article.
func ArticleText(a core.Article, field ContentField) string {
	header := fmt.Sprintf("【%s】\n来源: %s | 时间: %s\n链接: %s\n", a.Title, a.Source, a.PublishedRaw, a.Link)
	return header + articleBody(a, field)
}

// BuildCorpus renders and chunks every article, then keeps whole chunks in
// order until maxChars is reached. A non-positive maxChars keeps everything.
func BuildCorpus(articles []core.Article, maxChars, perChunk int, field ContentField) Corpus {
	var corpus Corpus
	for _, a := range articles {
		text := ArticleText(a, field)
		corpus.TotalLen += core.RuneLen(text)
		corpus.Entries = append(corpus.Entries, ArticleChunks{Article: a, Chunks: ChunkText(text, perChunk)})
	}

	if maxChars <= 0 {
		return corpus
	}

	acc := 0
	var kept []ArticleChunks
	for _, e := range corpus.Entries {
		var chunks []string
		for _, ch := range e.Chunks {
			n := core.RuneLen(ch)
			if acc+n > maxChars {
				break
			}
			chunks = append(chunks, ch)
			acc += n
		}
		if len(chunks) > 0 {
			kept = append(kept, ArticleChunks{Article: e.Article, Chunks: chunks})
		}
		if acc >= maxChars {
			break
		}
	}
	corpus.Entries = kept
	return corpus
}

// ChunkText splits text into pieces of at most maxChars characters,
// preferring to cut at a blank line that lies past the middle of the window.
// The blank line starts the next chunk.
func ChunkText(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}

	r := []rune(text)
	n := len(r)
	var chunks []string
	for start := 0; start < n; {
		end := min(n, start+maxChars)
		boundary := lastBlankLine(r, start, end)
		if boundary == -1 || boundary <= start+maxChars/2 {
			boundary = end
		}
		chunks = append(chunks, string(r[start:boundary]))
		start = boundary
	}
	return chunks
}

// lastBlankLine returns the index of the last "\n\n" lying entirely within
// r[start:end], or -1.
func lastBlankLine(r []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		if r[i] == '\n' && r[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// trackedSources are counted individually in the statistics block.
var trackedSources = []string{"华尔街见闻", "36氪", "东方财富", "国家统计局", "中新网"}

var sourceAliases = map[string]string{
	"东方财富网":          "东方财富",
	"国家统计局-最新发布":     "国家统计局",
	"中新社":            "中新网",
	"中国新闻网":          "中新网",
	"Wall Street CN": "华尔街见闻",
	"WallstreetCN":   "华尔街见闻",
}

// NormalizeSourceName maps feed names onto their canonical outlet name.
func NormalizeSourceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "未知来源"
	}
	if alias, ok := sourceAliases[name]; ok {
		return alias
	}
	return name
}

// SourceStatsBlock summarises the selected articles for the model.
func SourceStatsBlock(articles []core.Article, field ContentField, start, end string) string {
	counts := make(map[string]int, len(trackedSources))
	other := 0
	withContent := 0
	for _, a := range articles {
		name := NormalizeSourceName(a.Source)
		if isTracked(name) {
			counts[name]++
		} else {
			other++
		}
		if a.HasContent() {
			withContent++
		}
	}

	total := len(articles)
	ratio := 0.0
	if total > 0 {
		ratio = float64(withContent) / float64(total) * 100
	}

	var b strings.Builder
	b.WriteString("\n=== 数据统计信息 ===\n")
	fmt.Fprintf(&b, "分析日期范围: %s 至 %s\n", start, end)
	fmt.Fprintf(&b, "处理文章总数: %d篇\n", total)
	fmt.Fprintf(&b, "内容类型: %s\n", field)
	fmt.Fprintf(&b, "数据完整性: %.1f%%的文章包含完整内容\n\n", ratio)
	b.WriteString("新闻源统计:\n本次分析基于以下新闻源：\n")
	for _, name := range trackedSources {
		fmt.Fprintf(&b, "- %s：%d篇\n", name, counts[name])
	}
	fmt.Fprintf(&b, "- 其他来源：%d篇\n\n", other)
	fmt.Fprintf(&b, "总计: %d篇新闻文章\n", total)
	return b.String()
}

func isTracked(name string) bool {
	for _, t := range trackedSources {
		if t == name {
			return true
		}
	}
	return false
}

// FilterOptions narrows the loaded articles before ranking.
type FilterOptions struct {
	Sources     []string // exact source names
	Keywords    []string // matched case-insensitively in title and summary
	MaxArticles int
}

// FilterArticles applies the source, keyword and count filters in that
// order.
func FilterArticles(articles []core.Article, opts FilterOptions) []core.Article {
	sources := make(map[string]bool)
	for _, s := range opts.Sources {
		if s = strings.TrimSpace(s); s != "" {
			sources[s] = true
		}
	}
	var keywords []string
	for _, k := range opts.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, strings.ToLower(k))
		}
	}

	selected := make([]core.Article, 0, len(articles))
	for _, a := range articles {
		if len(sources) > 0 && !sources[a.Source] {
			continue
		}
		if len(keywords) > 0 && !containsAny(strings.ToLower(a.Title+" "+a.Summary), keywords) {
			continue
		}
		selected = append(selected, a)
	}

	if opts.MaxArticles > 0 && len(selected) > opts.MaxArticles {
		selected = selected[:opts.MaxArticles]
	}
	return selected
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// SplitList splits a comma separated flag value.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
