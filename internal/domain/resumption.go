package domain

import "time"

type ResumptionEventType string

const (
	ResumptionAttempt        ResumptionEventType = "attempt"
	ResumptionSuccess        ResumptionEventType = "success"
	ResumptionFailure        ResumptionEventType = "failure"
	ResumptionIntegrityCheck ResumptionEventType = "integrity_check"
	ResumptionLockRenewal    ResumptionEventType = "lock_renewal"
)

// ResumptionEvent is an observability record of the worker-job
// lifecycle: lock traffic, integrity checks, resume outcomes.
type ResumptionEvent struct {
	ID             string
	JobID          string
	EventType      ResumptionEventType
	AttemptNumber  int
	ResumedFromRow int
	Details        string
	Metadata       map[string]string
	CreatedAt      time.Time
}
