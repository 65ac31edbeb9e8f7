package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type EmployeeRepository struct {
	pool *pgxpool.Pool
}

func NewEmployeeRepository(pool *pgxpool.Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

const employeeColumns = `id, employee_number, first_name, last_name, email,
	       department, salary::text, currency, country_code, start_date,
	       created_at, updated_at`

func (r *EmployeeRepository) Upsert(ctx context.Context, row repository.EmployeeUpsert) (*domain.Employee, error) {
	// A concurrent writer can insert the same key between our lookup
	// and our insert; the unique violation is resolved by re-running
	// the lookup once, which then takes the update path.
	for attempt := 0; ; attempt++ {
		emp, err := r.upsertOnce(ctx, row)
		var pgErr *pgconn.PgError
		if err != nil && errors.As(err, &pgErr) && pgErr.Code == "23505" && attempt == 0 {
			continue
		}
		return emp, err
	}
}

func (r *EmployeeRepository) upsertOnce(ctx context.Context, row repository.EmployeeUpsert) (*domain.Employee, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	byNumber, err := findID(ctx, tx, `SELECT id FROM employees WHERE employee_number = $1`, row.EmployeeNumber)
	if err != nil {
		return nil, err
	}
	byEmail, err := findID(ctx, tx, `SELECT id FROM employees WHERE lower(email) = lower($1)`, row.Email)
	if err != nil {
		return nil, err
	}

	if byNumber != "" && byEmail != "" && byNumber != byEmail {
		return nil, domain.ErrCrossKeyCollision
	}

	id := byNumber
	if id == "" {
		id = byEmail
	}

	var scanned rowScanner
	if id == "" {
		scanned = tx.QueryRow(ctx, `
			INSERT INTO employees (
				employee_number, first_name, last_name, email,
				department, salary, currency, country_code, start_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+employeeColumns,
			row.EmployeeNumber, row.FirstName, row.LastName, row.Email,
			row.Department, salaryParam(row.Salary), row.Currency, row.CountryCode, row.StartDate,
		)
	} else {
		scanned = tx.QueryRow(ctx, `
			UPDATE employees
			SET    employee_number = $2,
			       first_name      = $3,
			       last_name       = $4,
			       email           = $5,
			       department      = $6,
			       salary          = $7,
			       currency        = $8,
			       country_code    = $9,
			       start_date      = $10,
			       updated_at      = NOW()
			WHERE id = $1
			RETURNING `+employeeColumns,
			id,
			row.EmployeeNumber, row.FirstName, row.LastName, row.Email,
			row.Department, salaryParam(row.Salary), row.Currency, row.CountryCode, row.StartDate,
		)
	}

	emp, err := scanEmployee(scanned)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return emp, nil
}

func (r *EmployeeRepository) FindByEmployeeNumber(ctx context.Context, number string) (*domain.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE employee_number = $1`, number)
	return scanEmployee(row)
}

func (r *EmployeeRepository) FindByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE lower(email) = lower($1)`, email)
	return scanEmployee(row)
}

func (r *EmployeeRepository) FindByKeys(ctx context.Context, numbers, emails []string) ([]*domain.Employee, error) {
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE employee_number = ANY($1) OR lower(email) = ANY($2)`,
		numbers, lowered)
	if err != nil {
		return nil, fmt.Errorf("find by keys: %w", err)
	}
	defer rows.Close()

	var employees []*domain.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func findID(ctx context.Context, tx pgx.Tx, query, key string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, query, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup employee: %w", err)
	}
	return id, nil
}

// salary travels as text so NUMERIC round-trips without float drift.
func salaryParam(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func scanEmployee(row rowScanner) (*domain.Employee, error) {
	var e domain.Employee
	var salary *string
	err := row.Scan(
		&e.ID, &e.EmployeeNumber, &e.FirstName, &e.LastName, &e.Email,
		&e.Department, &salary, &e.Currency, &e.CountryCode, &e.StartDate,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	if salary != nil {
		d, err := decimal.NewFromString(*salary)
		if err != nil {
			return nil, fmt.Errorf("parse stored salary: %w", err)
		}
		e.Salary = &d
	}
	return &e, nil
}
