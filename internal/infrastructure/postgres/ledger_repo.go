package postgres

import (
	"context"
	"fmt"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) EntriesForJob(ctx context.Context, jobID string) ([]*domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, row_number, COALESCE(employee_number, ''), COALESCE(email, ''), status, processed_at
		FROM import_processed_records
		WHERE job_id = $1
		ORDER BY row_number ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		err := rows.Scan(&e.ID, &e.JobID, &e.RowNumber, &e.EmployeeNumber, &e.Email, &e.Status, &e.ProcessedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *LedgerRepository) ClearForJob(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM import_processed_records WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}
