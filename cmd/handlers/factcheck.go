package handlers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"marketbrief/internal/core"
	"marketbrief/internal/factcheck"
)

type factCheckOptions struct {
	snapshot string
	output   string
}

// NewFactCheckCmd creates the factcheck command
func NewFactCheckCmd() *cobra.Command {
	opts := &factCheckOptions{}

	cmd := &cobra.Command{
		Use:   "factcheck <report.md>",
		Short: "Verify the numeric claims of a report against market data",
		Long: `Extract price, change, gold and forex claims from a report and verify
them against a market data snapshot. The fact-check section is printed, or
appended to the report and written to --output.

Examples:
  marketbrief factcheck report.md --snapshot snapshot.json
  marketbrief factcheck report.md --snapshot snapshot.yaml --output checked.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport(args[0])
			if err != nil {
				return err
			}
			snap, err := loadSnapshot(opts.snapshot)
			if err != nil {
				return err
			}
			return runFactCheck(cmd.OutOrStdout(), report, snap, opts.output)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Market data snapshot file (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the annotated report to this file")
	_ = cmd.MarkFlagRequired("snapshot")

	return cmd
}

func runFactCheck(out io.Writer, report string, snap *core.Snapshot, output string) error {
	if snap == nil {
		return fmt.Errorf("a market data snapshot is required")
	}

	fc := factcheck.New()
	claims := fc.Verify(fc.Extract(report), snap)
	summary := factcheck.Score(claims)

	fmt.Fprintf(out, "🔍 Claims: %d, verified: %d, errors: %d\n", summary.Total, summary.Verified, summary.Errors)
	fmt.Fprintf(out, "   Score: %.1f/60 (average confidence %.0f%%)\n", summary.Score, factcheck.AverageConfidence(claims)*100)
	for _, issue := range summary.Issues {
		fmt.Fprintf(out, "   ❌ %s\n", issue)
	}

	annotation := factcheck.Annotate(claims)
	if output == "" {
		if annotation != "" {
			fmt.Fprintln(out, strings.TrimLeft(annotation, "\n"))
		}
		return nil
	}

	if err := os.WriteFile(output, []byte(report+annotation), 0644); err != nil {
		return fmt.Errorf("failed to write annotated report: %w", err)
	}
	fmt.Fprintf(out, "✅ Annotated report written to %s\n", output)
	return nil
}
