package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, filename, file_path, status, queue,
	          total_rows, processed_rows, successful_rows, error_rows, last_processed_row,
	          file_size, file_hash, file_last_modified,
	          attempts, max_attempts, scheduled_at, retry_until, resumption_metadata,
	          claimed_by, heartbeat_at, last_error,
	          started_at, completed_at, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, job *domain.ImportJob) (*domain.ImportJob, error) {
	meta, err := metadataParam(job.ResumptionMetadata)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO import_jobs (
			id, filename, file_path, status, queue,
			total_rows, file_size, file_hash, file_last_modified,
			max_attempts, scheduled_at, resumption_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+jobColumns,
		job.ID, job.Filename, job.FilePath, job.Status, job.Queue,
		job.TotalRows, job.Fingerprint.FileSize, job.Fingerprint.FileHash, job.Fingerprint.FileLastModified,
		job.MaxAttempts, job.ScheduledAt, meta,
	)
	return scanJob(row)
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (r *JobRepository) Claim(ctx context.Context, workerID string, queue domain.QueueClass, limit int) ([]*domain.ImportJob, error) {
	// FOR UPDATE SKIP LOCKED prevents double-claiming across workers.
	// retry_until starts ticking at the first claim.
	rows, err := r.pool.Query(ctx, `
		UPDATE import_jobs
		SET    status       = 'processing',
		       attempts     = attempts + 1,
		       claimed_by   = $1,
		       heartbeat_at = NOW(),
		       started_at   = COALESCE(started_at, NOW()),
		       retry_until  = COALESCE(retry_until, NOW() + interval '2 hours'),
		       updated_at   = NOW()
		WHERE id IN (
			SELECT id FROM import_jobs
			WHERE  status       = 'pending'
			  AND  queue        = $2
			  AND  scheduled_at <= NOW()
			ORDER BY scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		workerID, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.ImportJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) UpdateHeartbeat(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs SET heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`, jobID)
	return err
}

func (r *JobRepository) Complete(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs
		SET status = 'completed', completed_at = NOW(), claimed_by = NULL, updated_at = NOW()
		WHERE id = $1`, jobID)
	return err
}

func (r *JobRepository) Fail(ctx context.Context, jobID string, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs
		SET status = 'failed', last_error = $2, completed_at = NOW(), claimed_by = NULL, updated_at = NOW()
		WHERE id = $1`, jobID, lastError)
	return err
}

func (r *JobRepository) Reschedule(ctx context.Context, jobID string, lastError string, retryAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs
		SET    status       = 'pending',
		       last_error   = $2,
		       scheduled_at = $3,
		       claimed_by   = NULL,
		       heartbeat_at = NULL,
		       updated_at   = NOW()
		WHERE id = $1`, jobID, lastError, retryAt)
	return err
}

func (r *JobRepository) CommitChunk(ctx context.Context, commit repository.ChunkCommit) error {
	meta, err := metadataParam(commit.ResumptionMetadata)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunk commit: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE import_jobs
		SET    processed_rows     = processed_rows + $2,
		       successful_rows    = successful_rows + $3,
		       error_rows         = error_rows + $4,
		       last_processed_row = GREATEST(last_processed_row, $5),
		       resumption_metadata = $6,
		       heartbeat_at       = NOW(),
		       updated_at         = NOW()
		WHERE id = $1 AND status = 'processing'`,
		commit.JobID, commit.ProcessedDelta, commit.SuccessfulDelta, commit.ErrorDelta,
		commit.LastProcessedRow, meta)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}

	// Skips flip first and release their keys, so a superseding row's
	// ledger insert below does not collide on the per-key uniqueness.
	if len(commit.SkippedRows) > 0 {
		_, err := tx.Exec(ctx, `
			UPDATE import_processed_records
			SET status = 'skipped', employee_number = NULL, email = NULL
			WHERE job_id = $1 AND row_number = ANY($2)`,
			commit.JobID, commit.SkippedRows)
		if err != nil {
			return fmt.Errorf("flip skipped rows: %w", err)
		}
	}

	for _, entry := range commit.Ledger {
		_, err := tx.Exec(ctx, `
			INSERT INTO import_processed_records (job_id, row_number, employee_number, email, status)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
			ON CONFLICT DO NOTHING`,
			entry.JobID, entry.RowNumber, entry.EmployeeNumber, entry.Email, entry.Status)
		if err != nil {
			return fmt.Errorf("insert ledger row %d: %w", entry.RowNumber, err)
		}
	}

	for _, rec := range commit.Errors {
		rowData, err := json.Marshal(rec.RowData)
		if err != nil {
			return fmt.Errorf("encode row data: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO import_errors (job_id, row_number, error_type, message, row_data)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.JobID, rec.RowNumber, rec.Type, rec.Message, rowData)
		if err != nil {
			return fmt.Errorf("insert error record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk: %w", err)
	}
	return nil
}

func (r *JobRepository) ResetProgress(ctx context.Context, jobID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE import_jobs
		SET    processed_rows      = 0,
		       successful_rows     = 0,
		       error_rows          = 0,
		       last_processed_row  = 0,
		       resumption_metadata = '{}',
		       updated_at          = NOW()
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM import_processed_records WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM import_errors WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clear errors: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (r *JobRepository) SetFingerprint(ctx context.Context, jobID string, fp domain.Fingerprint) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET file_size = $2, file_hash = $3, file_last_modified = $4, updated_at = NOW()
		WHERE id = $1`,
		jobID, fp.FileSize, fp.FileHash, fp.FileLastModified)
	return err
}

func (r *JobRepository) SetTotalRows(ctx context.Context, jobID string, total int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_jobs SET total_rows = $2, updated_at = NOW() WHERE id = $1`,
		jobID, total)
	return err
}

func (r *JobRepository) RescheduleStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET    status       = 'pending',
		       last_error   = 'worker timeout',
		       claimed_by   = NULL,
		       heartbeat_at = NULL,
		       updated_at   = NOW()
		WHERE id IN (
			SELECT id FROM import_jobs
			WHERE  status       = 'processing'
			  AND  heartbeat_at < $1
			  AND  attempts     < max_attempts
			ORDER BY heartbeat_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

func (r *JobRepository) FailStale(ctx context.Context, staleCutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET    status       = 'failed',
		       last_error   = 'worker timeout: max attempts exceeded',
		       completed_at = NOW(),
		       updated_at   = NOW()
		WHERE id IN (
			SELECT id FROM import_jobs
			WHERE  status       = 'processing'
			  AND  heartbeat_at < $1
			  AND  attempts     >= max_attempts
			ORDER BY heartbeat_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, limit)
	return int(tag.RowsAffected()), err
}

func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]repository.SweptJob, error) {
	// Ledger, error and resumption rows cascade via their FKs.
	rows, err := r.pool.Query(ctx, `
		DELETE FROM import_jobs
		WHERE id IN (
			SELECT id FROM import_jobs
			WHERE  status IN ('completed', 'failed')
			  AND  updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, file_path`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep jobs: %w", err)
	}
	defer rows.Close()

	var swept []repository.SweptJob
	for rows.Next() {
		var s repository.SweptJob
		if err := rows.Scan(&s.ID, &s.FilePath); err != nil {
			return nil, fmt.Errorf("scan swept job: %w", err)
		}
		swept = append(swept, s)
	}
	return swept, rows.Err()
}

func metadataParam(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode resumption metadata: %w", err)
	}
	return b, nil
}

func scanJob(row rowScanner) (*domain.ImportJob, error) {
	var j domain.ImportJob
	var meta []byte
	err := row.Scan(
		&j.ID, &j.Filename, &j.FilePath, &j.Status, &j.Queue,
		&j.TotalRows, &j.ProcessedRows, &j.SuccessfulRows, &j.ErrorRows, &j.LastProcessedRow,
		&j.Fingerprint.FileSize, &j.Fingerprint.FileHash, &j.Fingerprint.FileLastModified,
		&j.Attempts, &j.MaxAttempts, &j.ScheduledAt, &j.RetryUntil, &meta,
		&j.ClaimedBy, &j.HeartbeatAt, &j.LastError,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.ResumptionMetadata); err != nil {
			return nil, fmt.Errorf("decode resumption metadata: %w", err)
		}
	}
	return &j, nil
}
