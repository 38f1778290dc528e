package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"marketbrief/internal/core"
	"marketbrief/internal/llm"
	"marketbrief/internal/logger"
	"marketbrief/internal/quality"
)

// State is a step of the generate and check loop.
type State int

const (
	StateGenerating State = iota
	StateChecking
	StatePassed
	StateRetrying
	StateExhaustedWithWarning
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateChecking:
		return "checking"
	case StatePassed:
		return "passed"
	case StateRetrying:
		return "retrying"
	case StateExhaustedWithWarning:
		return "exhausted_with_warning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of a controller run.
type Outcome struct {
	Report   string
	Usage    core.Usage
	Quality  *core.QualityResult // nil when checking is disabled
	Claims   []core.Claim        // verified claims of the final attempt
	State    State
	Attempts []core.GenerationAttempt
	Feedback []string // advice for the last failed check, logged only
}

// Controller regenerates a report until it passes the quality check or the
// retry budget is spent.
type Controller struct {
	Gateway      TextGenerator
	Checker      quality.Checker
	FactChecker  ClaimVerifier // optional
	Snapshot     *core.Snapshot
	MaxRetries   int
	CheckEnabled bool
	Logger       *slog.Logger
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}

// Run calls the gateway at most MaxRetries+1 times. Only a gateway error is
// returned as an error; a report that never passes comes back prefixed with
// a quality warning.
func (c *Controller) Run(ctx context.Context, prompt, content string, opts llm.Options) (Outcome, error) {
	log := c.logger()
	maxRetries := max(c.MaxRetries, 0)
	out := Outcome{State: StateGenerating}

	for attempt := 0; ; attempt++ {
		out.State = StateGenerating
		if attempt > 0 {
			log.Warn("Quality below target, regenerating", "retry", attempt, "max_retries", maxRetries)
		}

		report, usage, err := c.Gateway.Generate(ctx, prompt, content, opts)
		if err != nil {
			return out, fmt.Errorf("generation attempt %d failed: %w", attempt+1, err)
		}
		out.Report = report
		out.Usage = usage
		out.Attempts = append(out.Attempts, core.GenerationAttempt{Number: attempt, Report: report, Usage: usage})

		if !c.CheckEnabled || c.Checker == nil {
			out.State = StatePassed
			log.Info("Quality check disabled, report accepted as generated")
			return out, nil
		}

		out.State = StateChecking
		var claims []core.Claim
		if c.FactChecker != nil {
			claims = c.FactChecker.Verify(c.FactChecker.Extract(report), c.Snapshot)
			if claims == nil {
				claims = []core.Claim{}
			}
		}
		result := c.Checker.Check(ctx, report, claims)
		out.Quality = &result
		out.Claims = claims

		log.Info("Quality checked", "attempt", attempt+1, "score", result.Score, "passed", result.Passed,
			"issues", len(result.Issues), "warnings", len(result.Warnings))

		if result.Passed {
			out.State = StatePassed
			out.Feedback = nil
			return out, nil
		}

		out.Feedback = quality.FeedbackItems(result)
		for _, item := range out.Feedback {
			log.Info("Quality feedback", "advice", item)
		}

		if attempt < maxRetries {
			out.State = StateRetrying
			continue
		}

		log.Warn("Retry budget spent, keeping last report with a quality warning",
			"max_retries", maxRetries, "score", result.Score)
		out.State = StateExhaustedWithWarning
		out.Report = quality.AddWarning(report, result)
		return out, nil
	}
}
