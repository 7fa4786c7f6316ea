package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/snackline/snackline/internal/jobs"
)

// Warmer rebuilds the analytics cache.
type Warmer interface {
	Warm(ctx context.Context) error
}

// AnalyticsWarmupJob bumps the dashboard cache version and prefetches the
// overview so the first admin request after an invalidation stays fast.
type AnalyticsWarmupJob struct {
	Warmer  Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAnalyticsWarmupJob initialises the warmup handler.
func NewAnalyticsWarmupJob(warmer Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics}
}

// Handle executes the warmup.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTypeAnalyticsWarmup)
	err := j.Warmer.Warm(ctx)
	if err != nil {
		j.logger().ErrorContext(ctx, "analytics warmup failed", slog.Any("error", err))
	} else {
		j.logger().InfoContext(ctx, "analytics cache warmed")
	}
	return tracker.End(err)
}

func (j *AnalyticsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
