// Package store reads collected news articles from the crawler database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"marketbrief/internal/logger"
)

// Store is the article store backed by SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
	loc     *time.Location
	log     *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithLocation sets the zone used for publish times stored without one.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// Open connects to the article database. driver is sqlite3 or postgres.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	var placeholders sq.PlaceholderFormat
	switch driver {
	case "sqlite3":
		placeholders = sq.Question
	case "postgres":
		placeholders = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "postgres" {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholders),
		loc:     time.Local,
		log:     logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS rss_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name TEXT UNIQUE NOT NULL,
		rss_url TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS news_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection_date TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT UNIQUE NOT NULL,
		source_id INTEGER NOT NULL,
		published TEXT,
		summary TEXT,
		content TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (source_id) REFERENCES rss_sources (id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_collection_date ON news_articles(collection_date)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS rss_sources (
		id SERIAL PRIMARY KEY,
		source_name TEXT UNIQUE NOT NULL,
		rss_url TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS news_articles (
		id SERIAL PRIMARY KEY,
		collection_date TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT UNIQUE NOT NULL,
		source_id INTEGER NOT NULL REFERENCES rss_sources (id),
		published TEXT,
		summary TEXT,
		content TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_collection_date ON news_articles(collection_date)`,
}

// EnsureSchema creates the source and article tables when missing. The
// crawler owns the production schema; this is for local databases and tests.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == "postgres" {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}
