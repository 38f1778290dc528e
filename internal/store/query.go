package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"marketbrief/internal/core"
)

// Query selects articles by collection date.
type Query struct {
	Start string // YYYY-MM-DD, inclusive
	End   string // YYYY-MM-DD, inclusive
	Order string // asc or desc, default asc
	Limit int    // zero means no limit
}

// Direction returns the SQL sort direction of the query.
func (q Query) Direction() string {
	if strings.EqualFold(q.Order, "desc") {
		return "DESC"
	}
	return "ASC"
}

func (s *Store) articlesQuery(q Query) sq.SelectBuilder {
	b := s.builder.
		Select("a.id", "a.collection_date", "a.title", "a.link", "a.published", "a.summary", "a.content", "s.source_name").
		From("news_articles a").
		Join("rss_sources s ON a.source_id = s.id").
		Where(sq.Expr("a.collection_date BETWEEN ? AND ?", q.Start, q.End)).
		OrderBy("COALESCE(a.published, CAST(a.created_at AS TEXT)) " + q.Direction())
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b
}

// Articles returns the articles collected in the query's date range.
func (s *Store) Articles(ctx context.Context, q Query) ([]core.Article, error) {
	query, args, err := s.articlesQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build article query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var (
			a                                   core.Article
			collection, published, summary, src sql.NullString
			content                             sql.NullString
		)
		if err := rows.Scan(&a.ID, &collection, &a.Title, &a.Link, &published, &summary, &content, &src); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}

		a.CollectionDate = collection.String
		a.Source = src.String
		a.PublishedRaw = published.String
		a.Published = ParsePublished(published.String, s.loc)
		a.Summary = FlattenHTML(summary.String)
		if content.Valid && content.String != "" {
			a.Content = core.StringPtr(content.String)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	s.log.Info("Loaded articles", "start", q.Start, "end", q.End, "count", len(articles))
	return articles, nil
}

// Save stores an article under its source name, creating the source when
// needed. Articles with a link already present are skipped.
func (s *Store) Save(ctx context.Context, a core.Article) error {
	sourceID, err := s.ensureSource(ctx, a.Source)
	if err != nil {
		return err
	}

	var content any
	if a.Content != nil {
		content = *a.Content
	}

	query, args, err := s.builder.
		Insert("news_articles").
		Columns("collection_date", "title", "link", "source_id", "published", "summary", "content").
		Values(a.CollectionDate, a.Title, a.Link, sourceID, a.PublishedRaw, a.Summary, content).
		Suffix("ON CONFLICT (link) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert article %q: %w", a.Title, err)
	}
	return nil
}

// SaveAll stores articles in order and returns how many were processed.
func (s *Store) SaveAll(ctx context.Context, articles []core.Article) (int, error) {
	for i, a := range articles {
		if err := s.Save(ctx, a); err != nil {
			return i, err
		}
	}
	return len(articles), nil
}

func (s *Store) ensureSource(ctx context.Context, name string) (int64, error) {
	if name == "" {
		name = "未知来源"
	}

	insert, args, err := s.builder.
		Insert("rss_sources").
		Columns("source_name", "rss_url").
		Values(name, "").
		Suffix("ON CONFLICT (source_name) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build source insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert, args...); err != nil {
		return 0, fmt.Errorf("failed to insert source %q: %w", name, err)
	}

	query, args, err := s.builder.Select("id").From("rss_sources").Where(sq.Eq{"source_name": name}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build source query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up source %q: %w", name, err)
	}
	return id, nil
}
