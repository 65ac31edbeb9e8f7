package importer

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one data row keyed by canonical column name. Row numbers
// are 1-based; the header is row 0 and never surfaces here.
type RawRow struct {
	Number int
	Fields map[string]string

	// FormatError is set when the row could not be parsed into the
	// header's shape (ragged column count, broken quoting). Fields may
	// be partially populated in that case.
	FormatError string
}

// Empty reports whether every cell is blank. Such rows carry no data
// and are skipped by the readers.
func (r *RawRow) Empty() bool {
	for _, v := range r.Fields {
		if v != "" {
			return false
		}
	}
	return true
}

// NormalizedRow is validator output, ready for upsert.
type NormalizedRow struct {
	Number         int
	EmployeeNumber string
	FirstName      string
	LastName       string

	// Email keeps the casing as entered; EmailKey is the lowercased
	// form used for uniqueness and dedup.
	Email    string
	EmailKey string

	Department  *string
	Salary      *decimal.Decimal
	Currency    *string
	CountryCode *string
	StartDate   *time.Time
}
