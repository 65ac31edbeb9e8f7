package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ResumptionLogRepository struct {
	pool *pgxpool.Pool
}

func NewResumptionLogRepository(pool *pgxpool.Pool) *ResumptionLogRepository {
	return &ResumptionLogRepository{pool: pool}
}

func (r *ResumptionLogRepository) Append(ctx context.Context, event *domain.ResumptionEvent) error {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO import_resumption_logs (job_id, event_type, attempt_number, resumed_from_row, details, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.JobID, event.EventType, event.AttemptNumber, event.ResumedFromRow, event.Details, meta)
	if err != nil {
		return fmt.Errorf("append resumption event: %w", err)
	}
	return nil
}

func (r *ResumptionLogRepository) ListForJob(ctx context.Context, jobID string) ([]*domain.ResumptionEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, event_type, attempt_number, resumed_from_row, details, metadata, created_at
		FROM import_resumption_logs
		WHERE job_id = $1
		ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list resumption events: %w", err)
	}
	defer rows.Close()

	var events []*domain.ResumptionEvent
	for rows.Next() {
		var e domain.ResumptionEvent
		var meta []byte
		err := rows.Scan(&e.ID, &e.JobID, &e.EventType, &e.AttemptNumber, &e.ResumedFromRow, &e.Details, &meta, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan resumption event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
