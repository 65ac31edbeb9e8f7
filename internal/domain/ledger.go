package domain

import "time"

type LedgerStatus string

const (
	LedgerProcessed LedgerStatus = "processed"
	LedgerSkipped   LedgerStatus = "skipped"
	LedgerError     LedgerStatus = "error"
)

// LedgerEntry records that a row of a job has been applied. Unique per
// (job, employee_number) and per (job, email); a conflicting insert
// means the worker is replaying a row it already persisted.
type LedgerEntry struct {
	ID             string
	JobID          string
	RowNumber      int
	EmployeeNumber string
	Email          string // lowercased for the uniqueness check
	Status         LedgerStatus
	ProcessedAt    time.Time
}
