package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ErrorRepository struct {
	pool *pgxpool.Pool
}

func NewErrorRepository(pool *pgxpool.Pool) *ErrorRepository {
	return &ErrorRepository{pool: pool}
}

func (r *ErrorRepository) Record(ctx context.Context, rec *domain.ErrorRecord) error {
	rowData, err := json.Marshal(rec.RowData)
	if err != nil {
		return fmt.Errorf("encode row data: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO import_errors (job_id, row_number, error_type, message, row_data)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.JobID, rec.RowNumber, rec.Type, rec.Message, rowData)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

func (r *ErrorRepository) List(ctx context.Context, input repository.ListErrorsInput) ([]*domain.ErrorRecord, int, error) {
	args := []any{input.JobID}
	where := []string{"job_id = $1"}

	if input.Type != "" {
		args = append(args, input.Type)
		where = append(where, fmt.Sprintf("error_type = $%d", len(args)))
	}
	if input.RowStart > 0 {
		args = append(args, input.RowStart)
		where = append(where, fmt.Sprintf("row_number >= $%d", len(args)))
	}
	if input.RowEnd > 0 {
		args = append(args, input.RowEnd)
		where = append(where, fmt.Sprintf("row_number <= $%d", len(args)))
	}
	if input.Search != "" {
		args = append(args, "%"+input.Search+"%")
		where = append(where, fmt.Sprintf("(message ILIKE $%d OR row_data::text ILIKE $%d)", len(args), len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM import_errors WHERE %s`, whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count errors: %w", err)
	}

	offset := (input.Page - 1) * input.PerPage
	args = append(args, input.PerPage, offset)
	query := fmt.Sprintf(`
		SELECT id, job_id, row_number, error_type, message, row_data, created_at
		FROM import_errors
		WHERE %s
		ORDER BY row_number ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		whereClause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var records []*domain.ErrorRecord
	for rows.Next() {
		var rec domain.ErrorRecord
		var rowData []byte
		err := rows.Scan(&rec.ID, &rec.JobID, &rec.RowNumber, &rec.Type, &rec.Message, &rowData, &rec.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan error record: %w", err)
		}
		if len(rowData) > 0 {
			if err := json.Unmarshal(rowData, &rec.RowData); err != nil {
				return nil, 0, fmt.Errorf("decode row data: %w", err)
			}
		}
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}

func (r *ErrorRepository) Histogram(ctx context.Context, jobID string) (map[domain.ErrorType]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT error_type, COUNT(*)
		FROM import_errors
		WHERE job_id = $1
		GROUP BY error_type`, jobID)
	if err != nil {
		return nil, fmt.Errorf("error histogram: %w", err)
	}
	defer rows.Close()

	hist := make(map[domain.ErrorType]int)
	for rows.Next() {
		var t domain.ErrorType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan histogram row: %w", err)
		}
		hist[t] = n
	}
	return hist, rows.Err()
}
