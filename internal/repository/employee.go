package repository

import (
	"context"
	"time"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/shopspring/decimal"
)

// EmployeeUpsert is a validated, normalized row ready to persist.
type EmployeeUpsert struct {
	EmployeeNumber string
	FirstName      string
	LastName       string
	Email          string
	Department     *string
	Salary         *decimal.Decimal
	Currency       *string
	CountryCode    *string
	StartDate      *time.Time
}

// The processor depends on the interface, not the pgx implementation,
// so chunk tests run against closure fakes.
type EmployeeRepository interface {
	// Upsert finds an existing employee by employee_number (exact) or
	// email (case-insensitive) and updates it; inserts when neither
	// matches. Returns domain.ErrCrossKeyCollision when the two keys
	// resolve to different rows.
	Upsert(ctx context.Context, row EmployeeUpsert) (*domain.Employee, error)

	FindByEmployeeNumber(ctx context.Context, number string) (*domain.Employee, error)
	FindByEmail(ctx context.Context, email string) (*domain.Employee, error)

	// FindByKeys is the chunk-sized batched lookup: any employee whose
	// number is in numbers or whose email is in emails.
	FindByKeys(ctx context.Context, numbers, emails []string) ([]*domain.Employee, error)
}
