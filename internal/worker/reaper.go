package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrstream/employee-import/internal/metrics"
	"github.com/hrstream/employee-import/internal/repository"
)

const reapBatchSize = 100

// Reaper rescues jobs whose worker died mid-stream: processing rows
// with a stale heartbeat go back to pending, or to failed once their
// attempts are spent. The checkpoint survives, so the next attempt
// resumes instead of starting over.
type Reaper struct {
	jobs             repository.JobRepository
	logger           *slog.Logger
	interval         time.Duration
	heartbeatTimeout time.Duration
}

func NewReaper(jobs repository.JobRepository, logger *slog.Logger, interval, heartbeatTimeout time.Duration) *Reaper {
	return &Reaper{
		jobs:             jobs,
		logger:           logger.With("component", "reaper"),
		interval:         interval,
		heartbeatTimeout: heartbeatTimeout,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "heartbeat_timeout", r.heartbeatTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds())
	}()

	staleCutoff := time.Now().Add(-r.heartbeatTimeout)

	rescheduled, err := r.jobs.RescheduleStale(ctx, staleCutoff, reapBatchSize)
	if err != nil {
		r.logger.Error("reschedule stale jobs", "error", err)
	} else if rescheduled > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("rescheduled").Add(float64(rescheduled))
		r.logger.Warn("rescheduled stale jobs", "count", rescheduled)
	}

	failed, err := r.jobs.FailStale(ctx, staleCutoff, reapBatchSize)
	if err != nil {
		r.logger.Error("fail stale jobs", "error", err)
	} else if failed > 0 {
		metrics.ReaperRescuedTotal.WithLabelValues("failed").Add(float64(failed))
		r.logger.Warn("permanently failed stale jobs", "count", failed)
	}
}
