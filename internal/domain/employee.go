package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Employee is the canonical record the import pipeline writes into.
// employee_number and email are each globally unique; email comparison
// is case-insensitive while the stored value keeps its original casing.
type Employee struct {
	ID             string
	EmployeeNumber string
	FirstName      string
	LastName       string
	Email          string

	Department  *string
	Salary      *decimal.Decimal
	Currency    *string
	CountryCode *string
	StartDate   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
