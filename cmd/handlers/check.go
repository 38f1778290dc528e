package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"marketbrief/internal/config"
	"marketbrief/internal/core"
	"marketbrief/internal/factcheck"
	"marketbrief/internal/quality"
)

// errCheckFailed is returned in strict mode when the report does not pass.
var errCheckFailed = errors.New("quality check failed")

type checkOptions struct {
	verify   bool
	snapshot string
	verbose  bool
	compare  bool
	feedback bool
	strict   bool
}

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check <report.md>",
		Short: "Run the quality check on a saved report",
		Long: `Score a saved report with the structural check, or with --verify the
fact-check integrated check that verifies numeric claims against a market
data snapshot.

Examples:
  marketbrief check "docs/archive/2025-10/2025-10-11/reports/📅 2025-10-11 财经分析报告_gemini.md"
  marketbrief check report.md --verify --snapshot snapshot.json --verbose --compare`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport(args[0])
			if err != nil {
				return err
			}
			if opts.snapshot == "" && opts.verify {
				if cfg, err := config.Load(cfgFile); err == nil {
					opts.snapshot = cfg.Quality.SnapshotFile
				}
			}
			snap, err := loadSnapshot(opts.snapshot)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), report, snap, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.verify, "verify", false, "Use the fact-check integrated check")
	f.StringVar(&opts.snapshot, "snapshot", "", "Market data snapshot file (JSON or YAML)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Show sub-scores and statistics")
	f.BoolVar(&opts.compare, "compare", false, "With --verify, compare against the structural check")
	f.BoolVar(&opts.feedback, "feedback", false, "Print improvement advice for a failed check")
	f.BoolVar(&opts.strict, "strict", false, "Exit with an error when the check fails")

	return cmd
}

func runCheck(ctx context.Context, out io.Writer, report string, snap *core.Snapshot, opts *checkOptions) error {
	var (
		checker quality.Checker = quality.NewStructuralChecker()
		claims  []core.Claim
	)
	if opts.verify {
		checker = quality.NewVerifiedChecker(snap)
		if snap != nil {
			fc := factcheck.New()
			claims = fc.Verify(fc.Extract(report), snap)
			if claims == nil {
				claims = []core.Claim{}
			}
		}
	}

	result := checker.Check(ctx, report, claims)
	fmt.Fprintln(out, quality.Render(result, opts.verbose))

	if opts.verify && opts.compare {
		baseline := quality.NewStructuralChecker().Check(ctx, report, nil)
		fmt.Fprintln(out, quality.Compare(baseline, result))
	}
	if opts.feedback && !result.Passed {
		fmt.Fprintln(out, quality.Feedback(result))
	}

	if opts.strict && !result.Passed {
		return fmt.Errorf("%w: score %s/100", errCheckFailed, quality.FormatScore(result.Score))
	}
	return nil
}
