package sitefeed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner re-executes the pipeline on the site's configured update interval.
// The first run happens immediately on start.
type Runner struct {
	pipeline   *Pipeline
	interval   time.Duration
	outputPath string
	stopChan   chan struct{}
	logger     *zap.Logger
}

// NewRunner creates a runner using the site's update interval.
func NewRunner(pipeline *Pipeline, outputPath string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		pipeline:   pipeline,
		interval:   pipeline.cfg.UpdatePeriod(),
		outputPath: outputPath,
		stopChan:   make(chan struct{}),
		logger:     logger,
	}
}

// Run executes the pipeline now and then on every interval tick until
// Stop() is called or the context is cancelled. A failed run never stops
// the loop; the next tick tries again.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner starting", zap.Duration("interval", r.interval))

	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping (context cancelled)")
			return ctx.Err()
		case <-r.stopChan:
			r.logger.Info("runner stopping")
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// Stop signals the runner to stop after the current run.
func (r *Runner) Stop() {
	close(r.stopChan)
}

func (r *Runner) runOnce(ctx context.Context) {
	summary, err := r.pipeline.Run(ctx, r.outputPath)
	if err != nil {
		r.logger.Error("pipeline run failed", zap.Error(err))
		return
	}
	r.logger.Info("pipeline run finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("published", summary.SuccessfulItems),
		zap.Float64("success_rate", summary.SuccessRate()))
}
