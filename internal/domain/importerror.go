package domain

import "time"

type ErrorType string

const (
	ErrorValidation   ErrorType = "validation"
	ErrorDuplicate    ErrorType = "duplicate"
	ErrorFormat       ErrorType = "format"
	ErrorBusinessRule ErrorType = "business_rule"
	ErrorSystem       ErrorType = "system"
)

// ErrorRecord is an append-only, row-level import error.
type ErrorRecord struct {
	ID        string
	JobID     string
	RowNumber int
	Type      ErrorType
	Message   string
	RowData   map[string]string
	CreatedAt time.Time
}
