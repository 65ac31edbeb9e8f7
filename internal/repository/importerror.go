package repository

import (
	"context"

	"github.com/hrstream/employee-import/internal/domain"
)

type ListErrorsInput struct {
	JobID     string
	Type      domain.ErrorType // empty = all types
	RowStart  int              // 0 = unbounded
	RowEnd    int              // 0 = unbounded
	Search    string           // free-text match against message and row data
	Page      int              // 1-based
	PerPage   int
}

type ErrorRepository interface {
	// Record appends a single error outside any chunk. Row-level errors
	// travel inside JobRepository.CommitChunk; this path is for the
	// terminal system record of a permanently failed job.
	Record(ctx context.Context, rec *domain.ErrorRecord) error

	// List returns one page of a job's errors plus the total count for
	// the filter.
	List(ctx context.Context, input ListErrorsInput) ([]*domain.ErrorRecord, int, error)

	// Histogram counts a job's errors by type.
	Histogram(ctx context.Context, jobID string) (map[domain.ErrorType]int, error)
}
