package domain

import (
	"math"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// QueueClass routes a job to a worker pool sized for its file.
type QueueClass string

const (
	QueueSmall  QueueClass = "small"
	QueueMedium QueueClass = "medium"
	QueueLarge  QueueClass = "large"
)

const (
	smallQueueMaxRows  = 1_000
	mediumQueueMaxRows = 10_000
)

// QueueFor picks the size class from the (possibly approximate) row
// count reported at upload time.
func QueueFor(totalRows int) QueueClass {
	switch {
	case totalRows < smallQueueMaxRows:
		return QueueSmall
	case totalRows < mediumQueueMaxRows:
		return QueueMedium
	default:
		return QueueLarge
	}
}

// Fingerprint identifies the file contents as they were at upload.
// Resumption requires an exact match on all three fields.
type Fingerprint struct {
	FileSize         int64
	FileHash         string // sha-256, lowercase hex
	FileLastModified time.Time
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.FileSize == other.FileSize &&
		f.FileHash == other.FileHash &&
		f.FileLastModified.UTC().Truncate(time.Second).Equal(other.FileLastModified.UTC().Truncate(time.Second))
}

// ImportJob is a single import attempt over one uploaded file.
// Counters are monotonically non-decreasing within a processing
// episode and satisfy processed = successful + error at chunk
// boundaries.
type ImportJob struct {
	ID       string
	Filename string
	FilePath string

	Status JobStatus
	Queue  QueueClass

	TotalRows        int
	ProcessedRows    int
	SuccessfulRows   int
	ErrorRows        int
	LastProcessedRow int

	Fingerprint Fingerprint

	Attempts    int
	MaxAttempts int
	ScheduledAt time.Time
	RetryUntil  *time.Time

	// ResumptionMetadata is free-form checkpoint state owned by the
	// reader (byte offset, sheet cursor).
	ResumptionMetadata map[string]string

	ClaimedBy   *string
	HeartbeatAt *time.Time
	LastError   *string

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (j *ImportJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// Percentage is processed/total rounded to two decimals; 0 when the
// total is unknown.
func (j *ImportJob) Percentage() float64 {
	if j.TotalRows == 0 {
		return 0
	}
	pct := float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	return math.Round(pct*100) / 100
}
