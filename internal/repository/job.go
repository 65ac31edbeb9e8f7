package repository

import (
	"context"
	"time"

	"github.com/hrstream/employee-import/internal/domain"
)

// ChunkCommit is the single transactional write closing a chunk:
// counter deltas, new ledger entries, retroactive skips, and error
// records all land together or not at all.
type ChunkCommit struct {
	JobID string

	ProcessedDelta int
	// SuccessfulDelta may be negative: a later duplicate reclassifies
	// an earlier successful row to an error.
	SuccessfulDelta  int
	ErrorDelta       int
	LastProcessedRow int

	ResumptionMetadata map[string]string

	Ledger      []domain.LedgerEntry
	SkippedRows []int // existing ledger rows flipped to skipped
	Errors      []domain.ErrorRecord
}

// SweptJob identifies a job removed by the retention sweep so the
// caller can unlink its file.
type SweptJob struct {
	ID       string
	FilePath string
}

type JobRepository interface {
	Create(ctx context.Context, job *domain.ImportJob) (*domain.ImportJob, error)
	GetByID(ctx context.Context, id string) (*domain.ImportJob, error)

	// Claim atomically moves due pending jobs of one queue class to
	// processing and increments their attempt counter. FOR UPDATE SKIP
	// LOCKED prevents double-claiming across workers.
	Claim(ctx context.Context, workerID string, queue domain.QueueClass, limit int) ([]*domain.ImportJob, error)

	UpdateHeartbeat(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, lastError string) error
	Reschedule(ctx context.Context, jobID string, lastError string, retryAt time.Time) error

	// CommitChunk applies one chunk's results transactionally.
	CommitChunk(ctx context.Context, commit ChunkCommit) error

	// ResetProgress zeroes the counters, checkpoint, ledger and error
	// records of a job whose file no longer matches its fingerprint.
	ResetProgress(ctx context.Context, jobID string) error

	// SetFingerprint replaces the stored fingerprint before a
	// fresh-from-row-1 restart over changed file bytes.
	SetFingerprint(ctx context.Context, jobID string, fp domain.Fingerprint) error

	// SetTotalRows records the exact row count the reader observed.
	SetTotalRows(ctx context.Context, jobID string, total int) error

	// Reaper: processing jobs whose heartbeat predates cutoff.
	RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)
	FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error)

	// DeleteTerminalBefore removes terminal jobs older than cutoff;
	// ledger, error and resumption rows cascade with them.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]SweptJob, error)
}
