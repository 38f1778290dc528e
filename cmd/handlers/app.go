package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"marketbrief/internal/config"
	"marketbrief/internal/core"
	"marketbrief/internal/factcheck"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/ranking"
	"marketbrief/internal/scoring"
	"marketbrief/internal/store"
)

// now is the clock used to resolve "today".
var now = time.Now

// sourceOptions selects where articles are read from.
type sourceOptions struct {
	File   string // JSON/YAML export, overrides the database
	Driver string
	DSN    string
}

// openSource opens the article store, or a file source when one is given.
// The returned close func is never nil.
func openSource(ctx context.Context, cfg *config.Config, opts sourceOptions) (pipeline.ArticleSource, func() error, error) {
	loc := cfg.Location()
	if opts.File != "" {
		src, err := store.LoadFile(opts.File, loc)
		if err != nil {
			return nil, nil, err
		}
		return src, func() error { return nil }, nil
	}

	st, err := openStore(ctx, cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

// openStore opens the configured database and makes sure the tables exist.
func openStore(ctx context.Context, cfg *config.Config, opts sourceOptions) (*store.Store, error) {
	driver, dsn := cfg.Database.Driver, cfg.Database.DSN
	if opts.Driver != "" {
		driver = opts.Driver
	}
	if opts.DSN != "" {
		dsn = opts.DSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("database dsn not configured\n\n" +
			"Set database.dsn in .marketbrief.yaml or MARKETBRIEF_DB, or pass --file")
	}

	st, err := store.Open(ctx, driver, dsn, store.WithLocation(cfg.Location()))
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newRanker builds a ranker from the scoring config file. A missing or
// malformed file falls back to the defaults.
func newRanker(path string) *ranking.Ranker {
	return ranking.New(scoring.NewEngine(scoring.LoadConfig(path)))
}

// loadSnapshot reads a market data snapshot; an empty path yields nil.
func loadSnapshot(path string) (*core.Snapshot, error) {
	if path == "" {
		return nil, nil
	}
	return factcheck.LoadSnapshot(path)
}

func readReport(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}
