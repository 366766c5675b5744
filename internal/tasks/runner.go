// Package tasks composes the build stages into the top-level operations
// (setup, dev, prod, release) and times every named task.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/buildwp/internal/build"
	"github.com/conneroisu/buildwp/internal/logging"
)

// Task names as they appear in timing lines.
const (
	TaskSetup      = "setup"
	TaskDev        = "dev"
	TaskProd       = "prod"
	TaskRelease    = "release"
	TaskCopyStatic = "copyStatic"
	TaskBuildJS    = "buildJS"
	TaskBuildCSS   = "buildCSS"
	TaskComposer   = "composer"
	TaskZip        = "zip"
)

// Runner wraps task bodies with start and finish lines.
type Runner struct {
	logger  logging.Logger
	metrics *build.Metrics
	clock   func() time.Time
}

// NewRunner creates a runner. A nil metrics gets a fresh tracker.
func NewRunner(logger logging.Logger, metrics *build.Metrics) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = build.NewMetrics()
	}
	return &Runner{logger: logger, metrics: metrics, clock: time.Now}
}

// Metrics returns the runner's run metrics.
func (r *Runner) Metrics() *build.Metrics {
	return r.metrics
}

// Run executes fn as the task called name. The returned error is fn's.
func (r *Runner) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	start := r.clock()
	r.logger.Info(ctx, fmt.Sprintf("starting: '%s'", name))

	err := fn(ctx)
	elapsed := r.clock().Sub(start)
	r.metrics.Record(build.StageRun{Name: name, Duration: elapsed, Err: err})

	if err != nil {
		r.logger.Error(ctx, err, fmt.Sprintf("failed: '%s'", name), "after", logging.FormatDuration(elapsed))
		return err
	}
	r.logger.Info(ctx, fmt.Sprintf("finished: '%s' - %s", name, logging.FormatDuration(elapsed)))
	return nil
}
