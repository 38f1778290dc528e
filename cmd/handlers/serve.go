package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"marketbrief/internal/config"
	"marketbrief/internal/llm"
	"marketbrief/internal/logger"
	"marketbrief/internal/observability"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/ranking"
	"marketbrief/internal/render"
	"marketbrief/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port    int
		host    string
		file    string
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the marketbrief HTTP API.

Endpoints:
  • GET  /health                 health check
  • GET  /api/status             server status
  • GET  /api/articles           stored articles of a date range
  • POST /api/articles/rank      score, dedup and rank posted articles
  • POST /api/quality/check      structural or fact-checked quality check
  • POST /api/factcheck          verify report claims against market data
  • POST /api/reports/generate   run the generation pipeline

Examples:
  # Start on the configured address
  marketbrief serve

  # Serve a JSON export without a database
  marketbrief serve --file articles.json --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host, file, noStore)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 127.0.0.1)")
	cmd.Flags().StringVar(&file, "file", "", "Serve articles from a JSON/YAML export instead of the database")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Run without an article store (stateless endpoints only)")

	return cmd
}

func runServe(ctx context.Context, port int, host, file string, noStore bool) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	loc := cfg.Location()
	ranker := newRanker(cfg.Quality.FilterConfig)
	opts := []server.Option{server.WithRanker(ranker), server.WithLocation(loc)}

	snap, err := loadSnapshot(cfg.Quality.SnapshotFile)
	if err != nil {
		log.Warn("Market data snapshot not loaded", "path", cfg.Quality.SnapshotFile, "error", err)
	} else if snap != nil {
		opts = append(opts, server.WithSnapshot(snap))
	}

	posthog, err := observability.NewPostHogClient(cfg.PostHog)
	if err != nil {
		log.Warn("PostHog disabled", "error", err)
		posthog = observability.Disabled()
	}
	defer func() { _ = posthog.Shutdown(context.Background()) }()

	if !noStore {
		source, closeSource, err := openSource(ctx, cfg, sourceOptions{File: file})
		if err != nil {
			return fmt.Errorf("failed to open article store: %w\n\nRun with --no-store to serve the stateless endpoints only", err)
		}
		defer closeSource()
		opts = append(opts, server.WithArticles(source))

		if gen, defaults, err := newServerGenerator(ctx, cfg, source, ranker, posthog); err != nil {
			log.Warn("Report generation endpoint disabled", "error", err)
		} else {
			opts = append(opts, server.WithGenerator(gen, defaults))
		}
	}

	srv := server.New(serverCfg, opts...)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed", "error", err)
			return err
		}
		log.Info("Server stopped successfully")
	}
	return nil
}

// newServerGenerator wires the pipeline behind POST /api/reports/generate
// with the configured defaults.
func newServerGenerator(ctx context.Context, cfg *config.Config, source pipeline.ArticleSource, ranker *ranking.Ranker, posthog *observability.PostHogClient) (*pipeline.Generator, pipeline.Request, error) {
	opts := &generateOptions{}
	opts.applyConfigDefaults(nil, cfg)

	prompt, err := loadPromptText(cfg, opts)
	if err != nil {
		return nil, pipeline.Request{}, err
	}
	gateway, err := llm.NewFromConfig(ctx, cfg, "", posthog)
	if err != nil {
		return nil, pipeline.Request{}, err
	}

	genOpts := []pipeline.GeneratorOption{pipeline.WithPostHog(posthog), pipeline.WithLocation(cfg.Location())}
	if opts.verify {
		snap, err := loadSnapshot(opts.snapshot)
		if err != nil {
			return nil, pipeline.Request{}, err
		}
		genOpts = append(genOpts, pipeline.WithSnapshot(snap))
	}

	writer := render.NewWriter(cfg.Output.Directory, render.WithLocation(cfg.Location()))
	gen := pipeline.NewGenerator(source, ranker, gateway, writer, genOpts...)
	return gen, opts.request(prompt), nil
}
