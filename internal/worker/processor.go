package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/importer"
	"github.com/hrstream/employee-import/internal/importlock"
	"github.com/hrstream/employee-import/internal/metrics"
	"github.com/hrstream/employee-import/internal/notify"
	"github.com/hrstream/employee-import/internal/progress"
	"github.com/hrstream/employee-import/internal/repository"
)

// retryBackoff is indexed by the attempt that just failed.
var retryBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

const lockDeferDelay = 30 * time.Second

// fatalErr marks faults that retrying cannot fix: malformed headers,
// unreadable files, exhausted retry budgets. Everything else is
// transient and reschedules the job.
type fatalErr struct{ err error }

func (e fatalErr) Error() string { return e.err.Error() }
func (e fatalErr) Unwrap() error { return e.err }

func fatal(err error) error { return fatalErr{err: err} }

func isFatal(err error) bool {
	var f fatalErr
	return errors.As(err, &f)
}

type ProcessorConfig struct {
	Jobs        repository.JobRepository
	Employees   repository.EmployeeRepository
	Ledger      repository.LedgerRepository
	Errors      repository.ErrorRepository
	Resumptions repository.ResumptionLogRepository
	Locks       *importlock.Manager
	Cache       *progress.Cache
	Notifier    *notify.Notifier
	Logger      *slog.Logger

	CSVChunkSize  int
	XLSXChunkSize int
	Timeout       time.Duration
}

// Processor runs one import attempt end to end: lock, integrity
// check, seek to the checkpoint, then stream chunks through
// validation, duplicate detection and upsert.
type Processor struct {
	jobs        repository.JobRepository
	employees   repository.EmployeeRepository
	ledger      repository.LedgerRepository
	errors      repository.ErrorRepository
	resumptions repository.ResumptionLogRepository
	locks       *importlock.Manager
	cache       *progress.Cache
	notifier    *notify.Notifier
	logger      *slog.Logger

	csvChunkSize  int
	xlsxChunkSize int
	timeout       time.Duration

	openReader func(path string) (importer.RowReader, error)
	now        func() time.Time
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		jobs:          cfg.Jobs,
		employees:     cfg.Employees,
		ledger:        cfg.Ledger,
		errors:        cfg.Errors,
		resumptions:   cfg.Resumptions,
		locks:         cfg.Locks,
		cache:         cfg.Cache,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		csvChunkSize:  cfg.CSVChunkSize,
		xlsxChunkSize: cfg.XLSXChunkSize,
		timeout:       cfg.Timeout,
		openReader:    importer.Open,
		now:           time.Now,
	}
}

// Run processes one claimed job. Terminal transitions and retry
// scheduling happen here; the streaming itself lives in process.
func (p *Processor) Run(ctx context.Context, claimed *domain.ImportJob) {
	logger := p.logger.With("job_id", claimed.ID, "attempt", claimed.Attempts)
	metrics.JobPickupLatency.Observe(p.now().Sub(claimed.CreatedAt).Seconds())
	started := p.now()

	// Reload before doing any work: a concurrent transition (reaper,
	// another attempt) may already have finished this job.
	job, err := p.jobs.GetByID(ctx, claimed.ID)
	if err != nil {
		logger.Error("reload job, aborting run — reaper will reschedule", "error", err)
		return
	}
	if job.Terminal() {
		logger.Info("job already terminal, nothing to do", "status", job.Status)
		return
	}

	token, err := p.locks.Acquire(ctx, job.ID)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		metrics.LockContentionTotal.Inc()
		logger.Warn("job lock held elsewhere, deferring")
		if err := p.jobs.Reschedule(ctx, job.ID, "lock held by another worker", p.now().Add(lockDeferDelay)); err != nil {
			logger.Error("defer locked job", "error", err)
		}
		return
	}
	if err != nil {
		logger.Error("acquire lock, aborting run — reaper will reschedule", "error", err)
		return
	}
	defer func() {
		if err := p.locks.Release(context.WithoutCancel(ctx), job.ID, token); err != nil {
			logger.Warn("release lock", "error", err)
		}
	}()

	runCtx := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(runCtx)
	defer stopHeartbeat()
	go p.heartbeat(heartbeatCtx, job.ID, logger)

	procErr := p.process(runCtx, job, token, logger)
	duration := p.now().Sub(started)

	switch {
	case procErr == nil:
		p.finishCompleted(ctx, job, logger)
		metrics.JobDuration.WithLabelValues(string(job.Queue), "success").Observe(duration.Seconds())
		metrics.JobsCompletedTotal.WithLabelValues("success").Inc()

	case isFatal(procErr):
		p.finishFailed(ctx, job, procErr, logger)
		metrics.JobDuration.WithLabelValues(string(job.Queue), "failed").Observe(duration.Seconds())
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()

	default:
		p.handleTransient(ctx, job, procErr, logger)
		metrics.JobDuration.WithLabelValues(string(job.Queue), "retry").Observe(duration.Seconds())
	}
}

func (p *Processor) finishCompleted(ctx context.Context, job *domain.ImportJob, logger *slog.Logger) {
	if err := p.jobs.Complete(ctx, job.ID); err != nil {
		logger.Error("mark job complete", "error", err)
		return
	}
	job.Status = domain.JobCompleted

	p.logEvent(ctx, job, domain.ResumptionSuccess,
		fmt.Sprintf("import completed: %d rows, %d successful, %d failed",
			job.ProcessedRows, job.SuccessfulRows, job.ErrorRows), logger)

	if err := p.cache.Invalidate(ctx, job.ID); err != nil {
		logger.Warn("invalidate progress snapshot", "error", err)
	}
	if p.notifier != nil {
		p.notifier.JobFinished(ctx, job)
	}
	logger.Info("import completed",
		"total_rows", job.TotalRows,
		"successful_rows", job.SuccessfulRows,
		"error_rows", job.ErrorRows)
}

func (p *Processor) finishFailed(ctx context.Context, job *domain.ImportJob, procErr error, logger *slog.Logger) {
	if err := p.jobs.Fail(ctx, job.ID, procErr.Error()); err != nil {
		logger.Error("mark job failed", "error", err)
		return
	}
	job.Status = domain.JobFailed
	msg := procErr.Error()
	job.LastError = &msg

	// A permanently failed job gets one system error record at the row
	// the next attempt would have started from.
	rerr := importer.SystemError(msg)
	err := p.errors.Record(ctx, &domain.ErrorRecord{
		JobID:     job.ID,
		RowNumber: job.LastProcessedRow + 1,
		Type:      rerr.Kind,
		Message:   rerr.Error(),
	})
	if err != nil {
		logger.Warn("record terminal system error", "error", err)
	}

	p.logEvent(ctx, job, domain.ResumptionFailure, "import failed: "+msg, logger)
	metrics.ResumptionsTotal.WithLabelValues("failure").Inc()

	if err := p.cache.Invalidate(ctx, job.ID); err != nil {
		logger.Warn("invalidate progress snapshot", "error", err)
	}
	if p.notifier != nil {
		p.notifier.JobFinished(ctx, job)
	}
	logger.Warn("import permanently failed", "error", msg)
}

func (p *Processor) handleTransient(ctx context.Context, job *domain.ImportJob, procErr error, logger *slog.Logger) {
	now := p.now()
	exhausted := job.Attempts >= job.MaxAttempts ||
		(job.RetryUntil != nil && now.After(*job.RetryUntil))
	if exhausted {
		p.finishFailed(ctx, job, fmt.Errorf("retries exhausted: %w", procErr), logger)
		metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
		return
	}

	delay := retryBackoff[len(retryBackoff)-1]
	if job.Attempts-1 < len(retryBackoff) {
		delay = retryBackoff[job.Attempts-1]
	}
	if err := p.jobs.Reschedule(ctx, job.ID, procErr.Error(), now.Add(delay)); err != nil {
		logger.Error("reschedule job", "error", err)
		return
	}
	metrics.JobsCompletedTotal.WithLabelValues("retry").Inc()
	logger.Warn("attempt failed, will retry",
		"error", procErr,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"retry_in", delay)
}

// runState carries per-attempt pipeline state across chunks.
type runState struct {
	detector  *importer.Detector
	rowStatus map[int]domain.LedgerStatus

	chunk     repository.ChunkCommit
	pending   map[int]int // row number -> index into chunk.Ledger
	chunkRows int
	lastRow   int
}

func (p *Processor) process(ctx context.Context, job *domain.ImportJob, token string, logger *slog.Logger) error {
	if err := p.verifyIntegrity(ctx, job, logger); err != nil {
		return err
	}

	reader, err := p.openReader(job.FilePath)
	if err != nil {
		var headerErr *importer.HeaderError
		if errors.As(err, &headerErr) {
			return fatal(headerErr)
		}
		return fatal(fmt.Errorf("open import file: %w", err))
	}
	defer reader.Close()

	state := &runState{
		detector:  importer.NewDetector(),
		rowStatus: make(map[int]domain.LedgerStatus),
		pending:   make(map[int]int),
		lastRow:   job.LastProcessedRow,
	}

	entries, err := p.ledger.EntriesForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		state.rowStatus[e.RowNumber] = e.Status
		state.detector.Seed(e.RowNumber, e.EmployeeNumber, e.Email)
	}

	resuming := job.LastProcessedRow > 0 || job.Attempts > 1
	if resuming {
		metrics.ResumptionsTotal.WithLabelValues("attempt").Inc()
		p.logEvent(ctx, job, domain.ResumptionAttempt,
			fmt.Sprintf("resuming from row %d", job.LastProcessedRow+1), logger)
	}

	if err := reader.Seek(job.LastProcessedRow + 1); err != nil {
		return fmt.Errorf("seek to checkpoint: %w", err)
	}

	chunkSize := p.chunkSize(job.FilePath)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("attempt interrupted: %w", err)
		}

		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}

		if err := p.handleRow(ctx, job, state, row); err != nil {
			return err
		}

		if state.chunkRows >= chunkSize {
			if err := p.commitChunk(ctx, job, state, token, logger); err != nil {
				return err
			}
		}
	}

	if state.chunkRows > 0 {
		if err := p.commitChunk(ctx, job, state, token, logger); err != nil {
			return err
		}
	}

	// The uploader's row count is approximate; the stream is exact.
	if state.lastRow != job.TotalRows {
		if err := p.jobs.SetTotalRows(ctx, job.ID, state.lastRow); err != nil {
			return err
		}
		job.TotalRows = state.lastRow
	}
	return nil
}

// verifyIntegrity enforces the resumption gate: the file bytes must be
// exactly what was uploaded, or every checkpoint derived from them is
// meaningless and the job restarts from row 1.
func (p *Processor) verifyIntegrity(ctx context.Context, job *domain.ImportJob, logger *slog.Logger) error {
	got, err := importer.VerifyFingerprint(job.FilePath, job.Fingerprint)
	if errors.Is(err, domain.ErrFingerprintMismatch) {
		logger.Warn("file changed since upload, restarting from row 1", "error", err)
		p.logEvent(ctx, job, domain.ResumptionFailure, "integrity check failed: "+err.Error(), logger)
		metrics.ResumptionsTotal.WithLabelValues("reset").Inc()

		if err := p.jobs.ResetProgress(ctx, job.ID); err != nil {
			return err
		}
		if err := p.jobs.SetFingerprint(ctx, job.ID, got); err != nil {
			return err
		}
		job.Fingerprint = got
		job.ProcessedRows = 0
		job.SuccessfulRows = 0
		job.ErrorRows = 0
		job.LastProcessedRow = 0
		job.ResumptionMetadata = nil
		return nil
	}
	if err != nil {
		return fatal(fmt.Errorf("verify file integrity: %w", err))
	}

	if job.LastProcessedRow > 0 || job.Attempts > 1 {
		p.logEvent(ctx, job, domain.ResumptionIntegrityCheck, "fingerprint verified", logger)
	}
	return nil
}

func (p *Processor) handleRow(ctx context.Context, job *domain.ImportJob, state *runState, row *importer.RawRow) error {
	k := row.Number
	state.lastRow = k

	// Replay gate: a ledger entry for this row number means a prior
	// attempt already committed it, counters included.
	if _, done := state.rowStatus[k]; done {
		return nil
	}

	state.chunkRows++

	if row.FormatError != "" {
		p.recordRowError(job, state, row, importer.FormatError(row.FormatError))
		return nil
	}

	norm, fieldErrs := importer.Validate(row, p.now().UTC())
	if fieldErrs != nil {
		msgs := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			msgs[i] = fe.Field + " " + fe.Message
		}
		p.recordRowError(job, state, row, importer.ValidationError(fieldErrs[0].Field, strings.Join(msgs, "; ")))
		return nil
	}

	for _, c := range state.detector.Observe(k, norm.EmployeeNumber, norm.EmailKey) {
		p.flipDuplicate(job, state, c, k)
	}

	_, err := p.employees.Upsert(ctx, repository.EmployeeUpsert{
		EmployeeNumber: norm.EmployeeNumber,
		FirstName:      norm.FirstName,
		LastName:       norm.LastName,
		Email:          norm.Email,
		Department:     norm.Department,
		Salary:         norm.Salary,
		Currency:       norm.Currency,
		CountryCode:    norm.CountryCode,
		StartDate:      norm.StartDate,
	})
	if errors.Is(err, domain.ErrCrossKeyCollision) {
		p.recordRowError(job, state, row, importer.BusinessRuleError(err.Error()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert row %d: %w", k, err)
	}

	state.pending[k] = len(state.chunk.Ledger)
	state.chunk.Ledger = append(state.chunk.Ledger, domain.LedgerEntry{
		JobID:          job.ID,
		RowNumber:      k,
		EmployeeNumber: norm.EmployeeNumber,
		Email:          norm.EmailKey,
		Status:         domain.LedgerProcessed,
	})
	state.chunk.ProcessedDelta++
	state.chunk.SuccessfulDelta++
	state.rowStatus[k] = domain.LedgerProcessed
	metrics.RowsProcessedTotal.WithLabelValues("successful").Inc()
	return nil
}

func (p *Processor) recordRowError(job *domain.ImportJob, state *runState, row *importer.RawRow, rerr importer.RowError) {
	state.chunk.Errors = append(state.chunk.Errors, domain.ErrorRecord{
		JobID:     job.ID,
		RowNumber: row.Number,
		Type:      rerr.Kind,
		Message:   rerr.Error(),
		RowData:   row.Fields,
	})
	// Error rows carry no keys in the ledger: their values may repeat
	// across rows and must not trip the per-job uniqueness gate.
	state.pending[row.Number] = len(state.chunk.Ledger)
	state.chunk.Ledger = append(state.chunk.Ledger, domain.LedgerEntry{
		JobID:     job.ID,
		RowNumber: row.Number,
		Status:    domain.LedgerError,
	})
	state.chunk.ProcessedDelta++
	state.chunk.ErrorDelta++
	state.rowStatus[row.Number] = domain.LedgerError
	metrics.RowsProcessedTotal.WithLabelValues("error").Inc()
}

// flipDuplicate applies last-wins: the earlier occurrence loses its
// successful accounting and becomes a skipped ledger row with a
// duplicate error. The database write already made for it stays; the
// later row's upsert supersedes it.
func (p *Processor) flipDuplicate(job *domain.ImportJob, state *runState, c importer.Conflict, laterRow int) {
	if state.rowStatus[c.PriorRow] != domain.LedgerProcessed {
		return
	}

	rerr := importer.DuplicateError(c.Key, c.Value, laterRow)
	state.chunk.Errors = append(state.chunk.Errors, domain.ErrorRecord{
		JobID:     job.ID,
		RowNumber: c.PriorRow,
		Type:      rerr.Kind,
		Message:   rerr.Error(),
	})
	state.chunk.SuccessfulDelta--
	state.chunk.ErrorDelta++

	// The skipped entry releases its keys so the superseding row's
	// ledger entry can claim them.
	if idx, inChunk := state.pending[c.PriorRow]; inChunk {
		state.chunk.Ledger[idx].Status = domain.LedgerSkipped
		state.chunk.Ledger[idx].EmployeeNumber = ""
		state.chunk.Ledger[idx].Email = ""
	} else {
		state.chunk.SkippedRows = append(state.chunk.SkippedRows, c.PriorRow)
	}
	state.rowStatus[c.PriorRow] = domain.LedgerSkipped
	metrics.RowsProcessedTotal.WithLabelValues("skipped").Inc()
}

func (p *Processor) commitChunk(ctx context.Context, job *domain.ImportJob, state *runState, token string, logger *slog.Logger) error {
	commit := state.chunk
	commit.JobID = job.ID
	commit.LastProcessedRow = state.lastRow
	commit.ResumptionMetadata = job.ResumptionMetadata

	if err := p.jobs.CommitChunk(ctx, commit); err != nil {
		return fmt.Errorf("commit chunk at row %d: %w", state.lastRow, err)
	}
	metrics.ChunksCommittedTotal.Inc()

	job.ProcessedRows += commit.ProcessedDelta
	job.SuccessfulRows += commit.SuccessfulDelta
	job.ErrorRows += commit.ErrorDelta
	job.LastProcessedRow = state.lastRow
	job.UpdatedAt = p.now()

	state.chunk = repository.ChunkCommit{}
	state.pending = make(map[int]int)
	state.chunkRows = 0

	// Snapshot after the durable write so readers never see progress
	// ahead of the counters.
	if err := p.cache.Set(ctx, progress.FromJob(job)); err != nil {
		logger.Warn("write progress snapshot", "error", err)
	}

	if err := p.locks.Renew(ctx, job.ID, token); err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	p.logEvent(ctx, job, domain.ResumptionLockRenewal,
		fmt.Sprintf("lock renewed at row %d", state.lastRow), logger)
	return nil
}

func (p *Processor) chunkSize(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return p.xlsxChunkSize
	default:
		return p.csvChunkSize
	}
}

func (p *Processor) logEvent(ctx context.Context, job *domain.ImportJob, typ domain.ResumptionEventType, details string, logger *slog.Logger) {
	err := p.resumptions.Append(ctx, &domain.ResumptionEvent{
		JobID:          job.ID,
		EventType:      typ,
		AttemptNumber:  job.Attempts,
		ResumedFromRow: job.LastProcessedRow,
		Details:        details,
	})
	if err != nil {
		logger.Warn("append resumption event", "event_type", typ, "error", err)
	}
}

func (p *Processor) heartbeat(ctx context.Context, jobID string, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.jobs.UpdateHeartbeat(ctx, jobID); err != nil {
				logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}
