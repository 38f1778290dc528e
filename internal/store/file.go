package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketbrief/internal/core"
)

// FileSource serves articles from a JSON or YAML export instead of the
// database.
type FileSource struct {
	articles []core.Article
}

type export struct {
	Articles []core.Article `json:"articles" yaml:"articles"`
}

// LoadFile reads an article list. JSON files may hold either a bare array or
// an object with an articles field, as written by the report exporter.
func LoadFile(path string, loc *time.Location) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read articles file: %w", err)
	}

	var articles []core.Article
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc export
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse articles file: %w", err)
		}
		articles = doc.Articles
	default:
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			err = json.Unmarshal(data, &articles)
		} else {
			var doc export
			err = json.Unmarshal(data, &doc)
			articles = doc.Articles
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse articles file: %w", err)
		}
	}

	for i := range articles {
		articles[i].Published = ParsePublished(articles[i].PublishedRaw, loc)
		articles[i].Summary = FlattenHTML(articles[i].Summary)
	}
	return &FileSource{articles: articles}, nil
}

// NewFileSource serves an in-memory article list.
func NewFileSource(articles []core.Article) *FileSource {
	return &FileSource{articles: append([]core.Article(nil), articles...)}
}

// Articles filters by collection date when the article carries one, then
// orders by publish time and applies the limit.
func (f *FileSource) Articles(_ context.Context, q Query) ([]core.Article, error) {
	var out []core.Article
	for _, a := range f.articles {
		if a.CollectionDate != "" && q.Start != "" && q.End != "" &&
			(a.CollectionDate < q.Start || a.CollectionDate > q.End) {
			continue
		}
		out = append(out, a)
	}

	desc := q.Direction() == "DESC"
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].PublishedRaw > out[j].PublishedRaw
		}
		return out[i].PublishedRaw < out[j].PublishedRaw
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// All returns every loaded article in file order.
func (f *FileSource) All() []core.Article {
	return append([]core.Article(nil), f.articles...)
}
