package cleanup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
)

// DefaultStepTimeout bounds a single step. Docker prunes on slow disks
// can take minutes, anything past this is stuck.
const DefaultStepTimeout = 10 * time.Minute

// Status is the outcome class of one step.
type Status string

const (
	StatusDone     Status = "done"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
	StatusWouldRun Status = "would run"
)

// Result is the outcome of one step.
type Result struct {
	Name     string
	Status   Status
	Detail   string
	Duration time.Duration
}

// Report is the outcome of a cleanup run.
type Report struct {
	Results []Result
}

// Failed returns the steps that ran and failed.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Table renders the run summary.
func (r *Report) Table() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTATUS\tDURATION\tDETAIL")
	for _, res := range r.Results {
		glyph := "✓"
		switch res.Status {
		case StatusFailed:
			glyph = "✗"
		case StatusSkipped:
			glyph = "-"
		case StatusWouldRun:
			glyph = "·"
		}
		duration := "-"
		if res.Status == StatusDone || res.Status == StatusFailed {
			duration = res.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", res.Name, glyph, res.Status, duration, res.Detail)
	}
	w.Flush()
	return sb.String()
}

// Options control a cleanup run.
type Options struct {
	DryRun bool
	// Only restricts the run to the named steps; Skip removes steps.
	Only []string
	Skip []string
	// StepTimeout bounds each step; zero means DefaultStepTimeout.
	StepTimeout time.Duration
}

// Run executes the cleanup steps in order. Failures are collected, not
// fatal; the returned error only reports invalid options.
func Run(ctx context.Context, runner execx.Runner, cfg *config.CleanupConfig, opts Options) (*Report, error) {
	steps := Steps(cfg)
	selected, err := filterSteps(steps, opts.Only, opts.Skip)
	if err != nil {
		return nil, err
	}

	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	isRoot := os.Geteuid() == 0

	report := &Report{}
	for _, step := range selected {
		report.Results = append(report.Results, runStep(ctx, runner, step, opts.DryRun, timeout, isRoot))
	}
	return report, nil
}

func runStep(ctx context.Context, runner execx.Runner, step Step, dryRun bool, timeout time.Duration, isRoot bool) Result {
	if step.Gate != "" {
		if _, err := runner.LookPath(step.Gate); err != nil {
			log.Debugf("skipping %s: %s not installed", step.Name, step.Gate)
			return Result{Name: step.Name, Status: StatusSkipped, Detail: step.Gate + " not installed"}
		}
	}

	if dryRun {
		return Result{Name: step.Name, Status: StatusWouldRun, Detail: step.Summary}
	}

	if step.NeedsRoot && !isRoot {
		// The original scripts just ran and let the tool complain, so
		// warn and attempt anyway.
		log.Warnf("%s usually needs root, attempting anyway", step.Name)
	}

	log.Infof("running %s", step.Name)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	detail, err := step.Run(stepCtx, runner)
	result := Result{Name: step.Name, Status: StatusDone, Detail: detail, Duration: time.Since(start)}
	if err != nil {
		log.WithError(err).Warnf("%s failed", step.Name)
		result.Status = StatusFailed
		result.Detail = err.Error()
	}
	return result
}

// filterSteps applies --only/--skip, validating names against the
// registry so a typo does not silently no-op.
func filterSteps(steps []Step, only, skip []string) ([]Step, error) {
	known := make(map[string]bool, len(steps))
	for _, step := range steps {
		known[step.Name] = true
	}
	for _, name := range append(append([]string{}, only...), skip...) {
		if !known[name] {
			return nil, errors.Errorf("unknown cleanup step %q", name)
		}
	}

	onlySet := toSet(only)
	skipSet := toSet(skip)
	var selected []Step
	for _, step := range steps {
		if len(onlySet) > 0 && !onlySet[step.Name] {
			continue
		}
		if skipSet[step.Name] {
			continue
		}
		selected = append(selected, step)
	}
	return selected, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
