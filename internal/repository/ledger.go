package repository

import (
	"context"

	"github.com/hrstream/employee-import/internal/domain"
)

type LedgerRepository interface {
	// EntriesForJob returns every ledger entry of a job ordered by row
	// number. The processor loads this once per attempt to gate replay
	// and to reseed the duplicate detector.
	EntriesForJob(ctx context.Context, jobID string) ([]*domain.LedgerEntry, error)

	ClearForJob(ctx context.Context, jobID string) error
}
