package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"marketbrief/internal/config"
	"marketbrief/internal/logger"
)

// NewScheduleCmd creates the schedule command
func NewScheduleCmd() *cobra.Command {
	var (
		spec     string
		provider string
		runNow   bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate today's report on a cron schedule",
		Long: `Run report generation for the current day on a standard five-field cron
expression, evaluated in the configured timezone. Generation settings come
from the configuration file.

Examples:
  # Use schedule.cron from the config (default 07:30 every day)
  marketbrief schedule

  # Every weekday at 18:00, plus one run right away
  marketbrief schedule --cron "0 18 * * 1-5" --run-now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, spec, provider, runNow)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression (default from config: schedule.cron)")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider: gemini or deepseek (default from config)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Also generate once at startup")

	return cmd
}

func runSchedule(cmd *cobra.Command, spec, provider string, runNow bool) error {
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if spec == "" {
		spec = cfg.Schedule.Cron
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := func() {
		opts := &generateOptions{provider: provider, order: "desc"}
		if err := runGenerate(ctx, cmd.OutOrStdout(), nil, opts); err != nil {
			log.Error("Scheduled generation failed", "error", err)
		}
	}

	c := cron.New(cron.WithLocation(cfg.Location()))
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to schedule generation: %w", err)
	}
	c.Start()

	log.Info("Scheduled report generation", "cron", spec, "timezone", cfg.App.Timezone, "next", c.Entry(id).Next)
	if runNow {
		go job()
	}

	<-ctx.Done()
	log.Info("Stopping scheduler, waiting for a running job")
	<-c.Stop().Done()
	return nil
}
