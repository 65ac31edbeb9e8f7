package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/importer"
	"github.com/hrstream/employee-import/internal/importlock"
	"github.com/hrstream/employee-import/internal/progress"
	"github.com/hrstream/employee-import/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories with
// the same semantics the processor relies on: transactional chunk
// commits, key-based upserts, cascade on reset.
type memStore struct {
	mu sync.Mutex

	job    *domain.ImportJob
	ledger []domain.LedgerEntry
	errs   []domain.ErrorRecord
	events []domain.ResumptionEvent

	employees map[string]*domain.Employee // by employee_number

	upsertErr   error
	commitCount int
}

func newMemStore(job *domain.ImportJob) *memStore {
	return &memStore{job: job, employees: make(map[string]*domain.Employee)}
}

func (s *memStore) snapshotJob() *domain.ImportJob {
	j := *s.job
	return &j
}

// JobRepository

func (s *memStore) Create(_ context.Context, _ *domain.ImportJob) (*domain.ImportJob, error) {
	panic("not used")
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.ID != id {
		return nil, domain.ErrJobNotFound
	}
	return s.snapshotJob(), nil
}

func (s *memStore) Claim(_ context.Context, _ string, _ domain.QueueClass, _ int) ([]*domain.ImportJob, error) {
	panic("not used")
}

func (s *memStore) UpdateHeartbeat(_ context.Context, _ string) error { return nil }

func (s *memStore) Complete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = domain.JobCompleted
	return nil
}

func (s *memStore) Fail(_ context.Context, jobID string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = domain.JobFailed
	s.job.LastError = &lastError
	return nil
}

func (s *memStore) Reschedule(_ context.Context, jobID string, lastError string, retryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = domain.JobPending
	s.job.LastError = &lastError
	s.job.ScheduledAt = retryAt
	return nil
}

func (s *memStore) CommitChunk(_ context.Context, commit repository.ChunkCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitCount++

	s.job.ProcessedRows += commit.ProcessedDelta
	s.job.SuccessfulRows += commit.SuccessfulDelta
	s.job.ErrorRows += commit.ErrorDelta
	if commit.LastProcessedRow > s.job.LastProcessedRow {
		s.job.LastProcessedRow = commit.LastProcessedRow
	}
	for _, rowNum := range commit.SkippedRows {
		for i := range s.ledger {
			if s.ledger[i].RowNumber == rowNum {
				s.ledger[i].Status = domain.LedgerSkipped
				s.ledger[i].EmployeeNumber = ""
				s.ledger[i].Email = ""
			}
		}
	}
	s.ledger = append(s.ledger, commit.Ledger...)
	s.errs = append(s.errs, commit.Errors...)
	return nil
}

func (s *memStore) ResetProgress(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.ProcessedRows = 0
	s.job.SuccessfulRows = 0
	s.job.ErrorRows = 0
	s.job.LastProcessedRow = 0
	s.ledger = nil
	s.errs = nil
	return nil
}

func (s *memStore) SetFingerprint(_ context.Context, jobID string, fp domain.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Fingerprint = fp
	return nil
}

func (s *memStore) SetTotalRows(_ context.Context, jobID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.TotalRows = total
	return nil
}

func (s *memStore) RescheduleStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

func (s *memStore) FailStale(_ context.Context, _ time.Time, _ int) (int, error) {
	return 0, nil
}

func (s *memStore) DeleteTerminalBefore(_ context.Context, _ time.Time, _ int) ([]repository.SweptJob, error) {
	return nil, nil
}

// EmployeeRepository

func (s *memStore) Upsert(_ context.Context, row repository.EmployeeUpsert) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}

	byNumber := s.employees[row.EmployeeNumber]
	var byEmail *domain.Employee
	for _, e := range s.employees {
		if strings.EqualFold(e.Email, row.Email) {
			byEmail = e
			break
		}
	}
	if byNumber != nil && byEmail != nil && byNumber != byEmail {
		return nil, domain.ErrCrossKeyCollision
	}

	existing := byNumber
	if existing == nil {
		existing = byEmail
	}
	if existing != nil {
		delete(s.employees, existing.EmployeeNumber)
		existing.EmployeeNumber = row.EmployeeNumber
		existing.FirstName = row.FirstName
		existing.LastName = row.LastName
		existing.Email = row.Email
		existing.Department = row.Department
		existing.Salary = row.Salary
		s.employees[row.EmployeeNumber] = existing
		return existing, nil
	}

	emp := &domain.Employee{
		EmployeeNumber: row.EmployeeNumber,
		FirstName:      row.FirstName,
		LastName:       row.LastName,
		Email:          row.Email,
		Department:     row.Department,
		Salary:         row.Salary,
	}
	s.employees[row.EmployeeNumber] = emp
	return emp, nil
}

func (s *memStore) FindByEmployeeNumber(_ context.Context, number string) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.employees[number]; ok {
		return e, nil
	}
	return nil, domain.ErrEmployeeNotFound
}

func (s *memStore) FindByEmail(_ context.Context, _ string) (*domain.Employee, error) {
	panic("not used")
}

func (s *memStore) FindByKeys(_ context.Context, _, _ []string) ([]*domain.Employee, error) {
	panic("not used")
}

// ErrorRepository

func (s *memStore) Record(_ context.Context, rec *domain.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, *rec)
	return nil
}

func (s *memStore) List(_ context.Context, _ repository.ListErrorsInput) ([]*domain.ErrorRecord, int, error) {
	panic("not used")
}

func (s *memStore) Histogram(_ context.Context, _ string) (map[domain.ErrorType]int, error) {
	panic("not used")
}

// LedgerRepository

func (s *memStore) EntriesForJob(_ context.Context, jobID string) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.LedgerEntry, 0, len(s.ledger))
	for i := range s.ledger {
		e := s.ledger[i]
		out = append(out, &e)
	}
	return out, nil
}

func (s *memStore) ClearForJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = nil
	return nil
}

// ResumptionLogRepository

func (s *memStore) Append(_ context.Context, event *domain.ResumptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *memStore) ListForJob(_ context.Context, _ string) ([]*domain.ResumptionEvent, error) {
	panic("not used")
}

func (s *memStore) ledgerStatus(rowNum int) domain.LedgerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.ledger {
		if e.RowNumber == rowNum {
			return e.Status
		}
	}
	return ""
}

func (s *memStore) errorsOfType(t domain.ErrorType) []domain.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ErrorRecord
	for _, e := range s.errs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type procHarness struct {
	store *memStore
	proc  *Processor
	locks *importlock.Manager
	cache *progress.Cache
	mr    *miniredis.Miniredis
}

func newHarness(t *testing.T, job *domain.ImportJob) *procHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := newMemStore(job)
	locks := importlock.NewManager(client, 90*time.Second)
	cache := progress.NewCache(client)

	proc := NewProcessor(ProcessorConfig{
		Jobs:          store,
		Employees:     store,
		Ledger:        store,
		Errors:        store,
		Resumptions:   store,
		Locks:         locks,
		Cache:         cache,
		Logger:        slog.New(slog.DiscardHandler),
		CSVChunkSize:  2,
		XLSXChunkSize: 2,
		Timeout:       time.Minute,
	})
	return &procHarness{store: store, proc: proc, locks: locks, cache: cache, mr: mr}
}

func writeCSV(t *testing.T, rows ...string) string {
	t.Helper()
	content := "employee_number,first_name,last_name,email,department,salary,currency,country_code,start_date\n" +
		strings.Join(rows, "\n") + "\n"
	path := filepath.Join(t.TempDir(), "employees.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func claimedJob(t *testing.T, path string) *domain.ImportJob {
	t.Helper()
	fp, err := importer.ComputeFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	retryUntil := time.Now().Add(2 * time.Hour)
	return &domain.ImportJob{
		ID:          "job-1",
		Filename:    filepath.Base(path),
		FilePath:    path,
		Status:      domain.JobProcessing,
		Queue:       domain.QueueSmall,
		Fingerprint: fp,
		Attempts:    1,
		MaxAttempts: 3,
		RetryUntil:  &retryUntil,
		CreatedAt:   time.Now(),
	}
}

func TestRunHappyPath(t *testing.T) {
	path := writeCSV(t,
		"E1,Amina,Odhiambo,a@x.co,Engineering,120000.50,KES,KE,2024-01-01",
		"E2,Brian,Mwangi,b@x.co,,,,,",
		"E3,Carol,Njeri,c@x.co,Sales,90000,USD,KE,",
	)
	job := claimedJob(t, path)
	h := newHarness(t, job)

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s, last_error = %v", got.Status, got.LastError)
	}
	if got.ProcessedRows != 3 || got.SuccessfulRows != 3 || got.ErrorRows != 0 {
		t.Errorf("counters = %d/%d/%d", got.ProcessedRows, got.SuccessfulRows, got.ErrorRows)
	}
	if got.TotalRows != 3 || got.LastProcessedRow != 3 {
		t.Errorf("total = %d, checkpoint = %d", got.TotalRows, got.LastProcessedRow)
	}
	if len(h.store.employees) != 3 {
		t.Errorf("employees = %d", len(h.store.employees))
	}
	// Chunk size 2 means two commits for three rows.
	if h.store.commitCount != 2 {
		t.Errorf("commits = %d", h.store.commitCount)
	}
	// Completed jobs drop their snapshot; the summary reads durable state.
	if _, ok, _ := h.cache.Get(context.Background(), job.ID); ok {
		t.Error("snapshot should be invalidated on completion")
	}
}

func TestRunInvalidRowRecordsValidationError(t *testing.T) {
	path := writeCSV(t, "E4,Dee,Dunn,d@x.co,,50k,,,")
	job := claimedJob(t, path)
	h := newHarness(t, job)

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ProcessedRows != 1 || got.SuccessfulRows != 0 || got.ErrorRows != 1 {
		t.Errorf("counters = %d/%d/%d", got.ProcessedRows, got.SuccessfulRows, got.ErrorRows)
	}
	if len(h.store.employees) != 0 {
		t.Error("invalid row must not create an employee")
	}
	recs := h.store.errorsOfType(domain.ErrorValidation)
	if len(recs) != 1 || recs[0].RowNumber != 1 {
		t.Fatalf("validation errors = %+v", recs)
	}
	if !strings.Contains(recs[0].Message, "salary") {
		t.Errorf("message = %q", recs[0].Message)
	}
	if recs[0].RowData[importer.ColSalary] != "50k" {
		t.Errorf("row data = %v", recs[0].RowData)
	}
}

func TestRunLastWinsDuplicate(t *testing.T) {
	path := writeCSV(t,
		"E1,First,Version,a@x.co,,,,,",
		"E2,Other,Person,b@x.co,,,,,",
		"E1,Last,Version,c@x.co,,,,,",
	)
	job := claimedJob(t, path)
	h := newHarness(t, job)

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ProcessedRows != 3 || got.SuccessfulRows != 2 || got.ErrorRows != 1 {
		t.Errorf("counters = %d/%d/%d", got.ProcessedRows, got.SuccessfulRows, got.ErrorRows)
	}

	emp, err := h.store.FindByEmployeeNumber(context.Background(), "E1")
	if err != nil {
		t.Fatal(err)
	}
	if emp.FirstName != "Last" || emp.Email != "c@x.co" {
		t.Errorf("last occurrence should win: %+v", emp)
	}

	if st := h.store.ledgerStatus(1); st != domain.LedgerSkipped {
		t.Errorf("row 1 ledger status = %s, want skipped", st)
	}
	dups := h.store.errorsOfType(domain.ErrorDuplicate)
	if len(dups) != 1 || dups[0].RowNumber != 1 {
		t.Fatalf("duplicate errors = %+v", dups)
	}
}

func TestRunResumeFromCheckpoint(t *testing.T) {
	path := writeCSV(t,
		"E1,First,Version,a@x.co,,,,,",
		"E2,Other,Person,b@x.co,,,,,",
		"E1,Last,Version,c@x.co,,,,,",
		"E3,Third,Person,e@x.co,,,,,",
	)
	job := claimedJob(t, path)
	job.Attempts = 2
	job.TotalRows = 4
	job.ProcessedRows = 2
	job.SuccessfulRows = 2
	job.LastProcessedRow = 2
	h := newHarness(t, job)
	h.store.ledger = []domain.LedgerEntry{
		{JobID: job.ID, RowNumber: 1, EmployeeNumber: "E1", Email: "a@x.co", Status: domain.LedgerProcessed},
		{JobID: job.ID, RowNumber: 2, EmployeeNumber: "E2", Email: "b@x.co", Status: domain.LedgerProcessed},
	}
	h.store.employees["E1"] = &domain.Employee{EmployeeNumber: "E1", FirstName: "First", Email: "a@x.co"}
	h.store.employees["E2"] = &domain.Employee{EmployeeNumber: "E2", FirstName: "Other", Email: "b@x.co"}

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s, last_error = %v", got.Status, got.LastError)
	}
	// Rows 3 and 4 processed this attempt; row 3 supersedes row 1.
	if got.ProcessedRows != 4 || got.SuccessfulRows != 3 || got.ErrorRows != 1 {
		t.Errorf("counters = %d/%d/%d", got.ProcessedRows, got.SuccessfulRows, got.ErrorRows)
	}

	emp, err := h.store.FindByEmployeeNumber(context.Background(), "E1")
	if err != nil {
		t.Fatal(err)
	}
	if emp.FirstName != "Last" {
		t.Errorf("duplicate across the checkpoint should still flip: %+v", emp)
	}
	if st := h.store.ledgerStatus(1); st != domain.LedgerSkipped {
		t.Errorf("row 1 ledger status = %s, want skipped", st)
	}

	var sawAttempt bool
	for _, ev := range h.store.events {
		if ev.EventType == domain.ResumptionAttempt {
			sawAttempt = true
		}
	}
	if !sawAttempt {
		t.Error("resume should log a resumption attempt")
	}
}

func TestRunReplaySkipsCommittedRows(t *testing.T) {
	path := writeCSV(t,
		"E1,A,B,a@x.co,,,,,",
		"E2,C,D,b@x.co,,,,,",
	)
	job := claimedJob(t, path)
	job.Attempts = 2
	job.ProcessedRows = 2
	job.SuccessfulRows = 2
	job.LastProcessedRow = 1 // checkpoint lags the ledger by one row
	h := newHarness(t, job)
	h.store.ledger = []domain.LedgerEntry{
		{JobID: job.ID, RowNumber: 1, EmployeeNumber: "E1", Email: "a@x.co", Status: domain.LedgerProcessed},
		{JobID: job.ID, RowNumber: 2, EmployeeNumber: "E2", Email: "b@x.co", Status: domain.LedgerProcessed},
	}

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	// Row 2 is replayed, not recounted and not re-upserted.
	if got.ProcessedRows != 2 || got.SuccessfulRows != 2 || got.ErrorRows != 0 {
		t.Errorf("counters = %d/%d/%d", got.ProcessedRows, got.SuccessfulRows, got.ErrorRows)
	}
	if len(h.store.employees) != 0 {
		t.Error("replayed rows must not re-upsert")
	}
}

func TestRunFingerprintMismatchResetsAndReprocesses(t *testing.T) {
	path := writeCSV(t,
		"E1,A,B,a@x.co,,,,,",
		"E2,C,D,b@x.co,,,,,",
	)
	job := claimedJob(t, path)
	job.Attempts = 2
	job.ProcessedRows = 1
	job.SuccessfulRows = 1
	job.LastProcessedRow = 1
	job.Fingerprint.FileHash = strings.Repeat("0", 64) // stored hash no longer matches
	h := newHarness(t, job)
	h.store.ledger = []domain.LedgerEntry{
		{JobID: job.ID, RowNumber: 1, EmployeeNumber: "OLD", Email: "old@x.co", Status: domain.LedgerProcessed},
	}

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s, last_error = %v", got.Status, got.LastError)
	}
	if got.ProcessedRows != 2 || got.SuccessfulRows != 2 {
		t.Errorf("counters after reset = %d/%d", got.ProcessedRows, got.SuccessfulRows)
	}
	if len(h.store.employees) != 2 {
		t.Errorf("employees = %d", len(h.store.employees))
	}
	if got.Fingerprint.FileHash == strings.Repeat("0", 64) {
		t.Error("fingerprint should be replaced with the recomputed one")
	}

	var sawFailure bool
	for _, ev := range h.store.events {
		if ev.EventType == domain.ResumptionFailure {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("integrity mismatch should log a resumption failure")
	}
}

func TestRunMissingHeaderFailsPermanently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "employees.csv")
	if err := os.WriteFile(path, []byte("employee_number,first_name,last_name\nE1,A,B\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	job := claimedJob(t, path)
	h := newHarness(t, job)

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.LastError == nil || !strings.Contains(*got.LastError, "email") {
		t.Errorf("last_error = %v", got.LastError)
	}
}

func TestRunTransientErrorReschedules(t *testing.T) {
	path := writeCSV(t, "E1,A,B,a@x.co,,,,,")
	job := claimedJob(t, path)
	h := newHarness(t, job)
	h.store.upsertErr = errors.New("connection refused")

	before := time.Now()
	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobPending {
		t.Fatalf("status = %s", got.Status)
	}
	delay := got.ScheduledAt.Sub(before)
	if delay < 25*time.Second || delay > 35*time.Second {
		t.Errorf("first retry delay = %s, want ~30s", delay)
	}
}

func TestRunRetriesExhaustedFails(t *testing.T) {
	path := writeCSV(t, "E1,A,B,a@x.co,,,,,")
	job := claimedJob(t, path)
	job.Attempts = 3
	h := newHarness(t, job)
	h.store.upsertErr = errors.New("connection refused")

	h.proc.Run(context.Background(), job)

	if h.store.job.Status != domain.JobFailed {
		t.Fatalf("status = %s", h.store.job.Status)
	}
}

func TestRunPermanentFailureRecordsSystemError(t *testing.T) {
	path := writeCSV(t,
		"E1,A,B,a@x.co,,,,,",
		"E2,C,D,b@x.co,,,,,",
	)
	job := claimedJob(t, path)
	job.Attempts = 3
	job.ProcessedRows = 1
	job.SuccessfulRows = 1
	job.LastProcessedRow = 1
	h := newHarness(t, job)
	h.store.ledger = []domain.LedgerEntry{
		{JobID: job.ID, RowNumber: 1, EmployeeNumber: "E1", Email: "a@x.co", Status: domain.LedgerProcessed},
	}
	h.store.upsertErr = errors.New("connection refused")

	h.proc.Run(context.Background(), job)

	if h.store.job.Status != domain.JobFailed {
		t.Fatalf("status = %s", h.store.job.Status)
	}
	recs := h.store.errorsOfType(domain.ErrorSystem)
	if len(recs) != 1 {
		t.Fatalf("system error records = %d, want 1", len(recs))
	}
	// The record points at the row the next attempt would have resumed from.
	if recs[0].RowNumber != 2 {
		t.Errorf("system error row = %d, want 2", recs[0].RowNumber)
	}
	if !strings.Contains(recs[0].Message, "connection refused") {
		t.Errorf("message = %q", recs[0].Message)
	}
}

func TestRunTerminalJobIsNoOp(t *testing.T) {
	path := writeCSV(t, "E1,A,B,a@x.co,,,,,")
	job := claimedJob(t, path)
	h := newHarness(t, job)
	h.store.job.Status = domain.JobCompleted

	h.proc.Run(context.Background(), job)

	if h.store.commitCount != 0 || len(h.store.employees) != 0 {
		t.Error("terminal job must not be processed again")
	}
}

func TestRunLockContentionDefersJob(t *testing.T) {
	path := writeCSV(t, "E1,A,B,a@x.co,,,,,")
	job := claimedJob(t, path)
	h := newHarness(t, job)

	if _, err := h.locks.Acquire(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	before := time.Now()
	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobPending {
		t.Fatalf("status = %s", got.Status)
	}
	delay := got.ScheduledAt.Sub(before)
	if delay < 25*time.Second || delay > 35*time.Second {
		t.Errorf("defer delay = %s, want ~30s", delay)
	}
	if h.store.commitCount != 0 {
		t.Error("no chunk should commit without the lock")
	}
}

func TestRunCrossKeyCollisionIsBusinessRuleError(t *testing.T) {
	path := writeCSV(t, "E2,New,Person,a@x.co,,,,,")
	job := claimedJob(t, path)
	h := newHarness(t, job)
	h.store.employees["E1"] = &domain.Employee{EmployeeNumber: "E1", Email: "a@x.co"}
	h.store.employees["E2"] = &domain.Employee{EmployeeNumber: "E2", Email: "other@x.co"}

	h.proc.Run(context.Background(), job)

	got := h.store.job
	if got.Status != domain.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ErrorRows != 1 || got.SuccessfulRows != 0 {
		t.Errorf("counters = %d/%d/%d", got.ProcessedRows, got.SuccessfulRows, got.ErrorRows)
	}
	recs := h.store.errorsOfType(domain.ErrorBusinessRule)
	if len(recs) != 1 {
		t.Fatalf("business rule errors = %+v", recs)
	}
}

func TestRunWritesProgressSnapshots(t *testing.T) {
	rows := make([]string, 5)
	for i := range rows {
		rows[i] = fmt.Sprintf("E%d,Person,Number%d,p%d@x.co,,,,,", i+1, i+1, i+1)
	}
	path := writeCSV(t, rows...)
	job := claimedJob(t, path)
	h := newHarness(t, job)

	// Capture the snapshot mid-flight by checking after the run that
	// the final pre-invalidation write carried the full counters: the
	// memStore's commit count proves chunking happened.
	h.proc.Run(context.Background(), job)

	if h.store.commitCount != 3 {
		t.Errorf("commits = %d, want 3 for 5 rows at chunk size 2", h.store.commitCount)
	}
	if h.store.job.SuccessfulRows != 5 {
		t.Errorf("successful = %d", h.store.job.SuccessfulRows)
	}
}
