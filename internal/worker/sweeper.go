package worker

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hrstream/employee-import/internal/metrics"
	"github.com/hrstream/employee-import/internal/repository"
)

const sweepBatchSize = 500

// Sweeper deletes terminal jobs older than the retention window on a
// cron schedule, child records cascading with them, and unlinks the
// uploaded files.
type Sweeper struct {
	jobs      repository.JobRepository
	logger    *slog.Logger
	schedule  string
	retention time.Duration
	cron      *cron.Cron
}

func NewSweeper(jobs repository.JobRepository, logger *slog.Logger, schedule string, retention time.Duration) *Sweeper {
	return &Sweeper{
		jobs:      jobs,
		logger:    logger.With("component", "sweeper"),
		schedule:  schedule,
		retention: retention,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule, "retention", s.retention)

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("sweeper shut down")
	}()
	return nil
}

func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)

	total := 0
	for {
		swept, err := s.jobs.DeleteTerminalBefore(ctx, cutoff, sweepBatchSize)
		if err != nil {
			s.logger.Error("sweep terminal jobs", "error", err)
			return
		}
		if len(swept) == 0 {
			break
		}

		for _, job := range swept {
			if job.FilePath == "" {
				continue
			}
			if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("remove swept file", "job_id", job.ID, "path", job.FilePath, "error", err)
			}
		}
		total += len(swept)
	}

	if total > 0 {
		metrics.SweptJobsTotal.Add(float64(total))
		s.logger.Info("swept expired jobs", "count", total, "cutoff", cutoff)
	}
}
