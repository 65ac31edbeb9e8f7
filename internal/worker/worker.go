package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/metrics"
	"github.com/hrstream/employee-import/internal/repository"
)

// Worker polls the queues and hands claimed jobs to the processor.
// Each queue class gets its own semaphore so one huge file cannot
// starve the small uploads.
type Worker struct {
	id        string
	jobs      repository.JobRepository
	processor *Processor
	logger    *slog.Logger

	pollInterval time.Duration
	queues       map[domain.QueueClass]chan struct{}
}

func New(
	jobs repository.JobRepository,
	processor *Processor,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency map[domain.QueueClass]int,
) *Worker {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	queues := make(map[domain.QueueClass]chan struct{}, len(concurrency))
	for queue, n := range concurrency {
		queues[queue] = make(chan struct{}, n)
	}

	return &Worker{
		id:           id,
		jobs:         jobs,
		processor:    processor,
		logger:       logger.With("worker_id", id),
		pollInterval: pollInterval,
		queues:       queues,
	}
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for queue, sem := range w.queues {
		w.logger.Info("worker queue ready", "queue", queue, "concurrency", cap(sem))
	}

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			metrics.WorkerShutdownsTotal.Inc()
			w.logger.Info("worker shut down")
			return
		case <-ticker.C:
			for queue := range w.queues {
				w.processBatch(ctx, queue, &wg)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, queue domain.QueueClass, wg *sync.WaitGroup) {
	sem := w.queues[queue]
	available := cap(sem) - len(sem)
	if available == 0 {
		return
	}

	jobs, err := w.jobs.Claim(ctx, w.id, queue, available)
	if err != nil {
		w.logger.Error("claim jobs", "queue", queue, "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	w.logger.Info("claimed jobs",
		"queue", queue,
		"count", len(jobs),
		"slots_used", len(sem)+len(jobs),
		"slots_total", cap(sem))

	for _, job := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		go func(j *domain.ImportJob) {
			metrics.JobsInFlight.Inc()
			defer metrics.JobsInFlight.Dec()
			defer func() { <-sem }()
			defer wg.Done()
			w.processor.Run(ctx, j)
		}(job)
	}
}
