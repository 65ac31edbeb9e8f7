package importer

import (
	"fmt"

	"github.com/hrstream/employee-import/internal/domain"
)

// RowError is a categorized row-level fault. The category maps onto
// the wire error_type; row-local faults never abort the pipeline.
type RowError struct {
	Kind     domain.ErrorType
	Field    string // set for validation errors
	OtherRow int    // set for duplicate errors: the row that superseded this one
	Msg      string
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func ValidationError(field, msg string) RowError {
	return RowError{Kind: domain.ErrorValidation, Field: field, Msg: msg}
}

func DuplicateError(key, value string, laterRow int) RowError {
	return RowError{
		Kind:     domain.ErrorDuplicate,
		OtherRow: laterRow,
		Msg:      fmt.Sprintf("duplicate %s %q, superseded by row %d", key, value, laterRow),
	}
}

func FormatError(msg string) RowError {
	return RowError{Kind: domain.ErrorFormat, Msg: msg}
}

func BusinessRuleError(msg string) RowError {
	return RowError{Kind: domain.ErrorBusinessRule, Msg: msg}
}

func SystemError(msg string) RowError {
	return RowError{Kind: domain.ErrorSystem, Msg: msg}
}
