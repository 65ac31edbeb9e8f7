package domain

import "errors"

var (
	ErrJobNotFound      = errors.New("import job not found")
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrCrossKeyCollision means a row's employee_number and email
	// match two different existing employees. Surfaced to the caller
	// as a business_rule error record.
	ErrCrossKeyCollision = errors.New("employee_number and email match different employees")

	// ErrLedgerConflict means a ledger insert hit the per-job unique
	// key: the row was already applied by a previous attempt.
	ErrLedgerConflict = errors.New("row already recorded in ledger")

	ErrLockNotAcquired = errors.New("job lock held by another worker")
	ErrLockLost        = errors.New("job lock no longer held")

	ErrFingerprintMismatch = errors.New("file fingerprint does not match the one captured at upload")
)
