package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/progress"
	"github.com/hrstream/employee-import/internal/repository"
)

const (
	defaultErrorsPerPage = 50
	maxErrorsPerPage     = 100
)

type StatusUsecase struct {
	jobs        repository.JobRepository
	errors      repository.ErrorRepository
	resumptions repository.ResumptionLogRepository
	cache       *progress.Cache
	logger      *slog.Logger
}

func NewStatusUsecase(
	jobs repository.JobRepository,
	errs repository.ErrorRepository,
	resumptions repository.ResumptionLogRepository,
	cache *progress.Cache,
	logger *slog.Logger,
) *StatusUsecase {
	return &StatusUsecase{
		jobs:        jobs,
		errors:      errs,
		resumptions: resumptions,
		cache:       cache,
		logger:      logger.With("component", "status"),
	}
}

// Progress serves the fast-read snapshot, falling back to the durable
// counters and repopulating the cache on a miss.
func (s *StatusUsecase) Progress(ctx context.Context, jobID string) (*progress.Snapshot, error) {
	snap, ok, err := s.cache.Get(ctx, jobID)
	if err != nil {
		s.logger.Warn("progress cache read failed, falling back", "job_id", jobID, "error", err)
	} else if ok {
		return snap, nil
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	snap = progress.FromJob(job)
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("progress cache repopulate failed", "job_id", jobID, "error", err)
	}
	return snap, nil
}

// ErrorPage is one page of a job's error records.
type ErrorPage struct {
	Errors     []*domain.ErrorRecord
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

func (s *StatusUsecase) Errors(ctx context.Context, input repository.ListErrorsInput) (*ErrorPage, error) {
	if _, err := s.jobs.GetByID(ctx, input.JobID); err != nil {
		return nil, err
	}

	if input.Page < 1 {
		input.Page = 1
	}
	if input.PerPage < 1 {
		input.PerPage = defaultErrorsPerPage
	}
	if input.PerPage > maxErrorsPerPage {
		input.PerPage = maxErrorsPerPage
	}

	records, total, err := s.errors.List(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list import errors: %w", err)
	}

	totalPages := (total + input.PerPage - 1) / input.PerPage
	return &ErrorPage{
		Errors:     records,
		Page:       input.Page,
		PerPage:    input.PerPage,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// Summary is the terminal report for a job: counters, error histogram,
// derived rates, and the resumption history.
type Summary struct {
	Job               *domain.ImportJob
	ErrorHistogram    map[domain.ErrorType]int
	SuccessRate       float64
	ErrorRate         float64
	ProcessingSeconds *float64
	ResumptionEvents  []*domain.ResumptionEvent
}

func (s *StatusUsecase) Summary(ctx context.Context, jobID string) (*Summary, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	histogram, err := s.errors.Histogram(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("error histogram: %w", err)
	}

	events, err := s.resumptions.ListForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("resumption history: %w", err)
	}

	summary := &Summary{
		Job:              job,
		ErrorHistogram:   histogram,
		ResumptionEvents: events,
	}
	if job.ProcessedRows > 0 {
		summary.SuccessRate = rate(job.SuccessfulRows, job.ProcessedRows)
		summary.ErrorRate = rate(job.ErrorRows, job.ProcessedRows)
	}
	if job.StartedAt != nil {
		end := time.Now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		secs := end.Sub(*job.StartedAt).Seconds()
		summary.ProcessingSeconds = &secs
	}
	return summary, nil
}

func rate(part, whole int) float64 {
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
