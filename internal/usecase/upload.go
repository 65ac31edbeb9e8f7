package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/importer"
	"github.com/hrstream/employee-import/internal/repository"
)

var acceptedMediaTypes = map[string]struct{}{
	"text/csv":        {},
	"application/csv": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-excel":                                          {},
}

var acceptedExtensions = map[string]struct{}{
	".csv": {}, ".txt": {}, ".xlsx": {}, ".xls": {},
}

// UploadValidationError carries the reasons a file was rejected; the
// handler turns it into a 422.
type UploadValidationError struct {
	Message string
	Errors  []string
}

func (e *UploadValidationError) Error() string { return e.Message }

func invalidUpload(message string, errs ...string) error {
	return &UploadValidationError{Message: message, Errors: errs}
}

type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	File        io.Reader
}

type UploadUsecase struct {
	jobs      repository.JobRepository
	logger    *slog.Logger
	uploadDir string
	maxBytes  int64
	maxRows   int
}

func NewUploadUsecase(jobs repository.JobRepository, logger *slog.Logger, uploadDir string, maxBytes int64, maxRows int) *UploadUsecase {
	return &UploadUsecase{
		jobs:      jobs,
		logger:    logger.With("component", "upload"),
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		maxRows:   maxRows,
	}
}

// Upload validates the file, persists it, fingerprints it, counts its
// rows exactly, and creates a pending job on the queue matching its
// size.
func (u *UploadUsecase) Upload(ctx context.Context, input UploadInput) (*domain.ImportJob, error) {
	if err := u.validateMeta(input); err != nil {
		return nil, err
	}

	path, err := u.saveFile(input)
	if err != nil {
		return nil, err
	}

	job, err := u.createJob(ctx, input.Filename, path)
	if err != nil {
		// The job row is the only reference to the stored file.
		if rmErr := os.Remove(path); rmErr != nil {
			u.logger.Warn("remove rejected upload", "path", path, "error", rmErr)
		}
		return nil, err
	}
	return job, nil
}

func (u *UploadUsecase) validateMeta(input UploadInput) error {
	if input.Size > u.maxBytes {
		return invalidUpload("file is too large",
			fmt.Sprintf("file size %d exceeds the %d byte limit", input.Size, u.maxBytes))
	}

	ext := strings.ToLower(filepath.Ext(input.Filename))
	_, extOK := acceptedExtensions[ext]
	if !extOK {
		return invalidUpload("unsupported file type",
			fmt.Sprintf("extension %q is not supported; upload a CSV or Excel file", ext))
	}

	if input.ContentType != "" {
		mediaType := strings.ToLower(strings.TrimSpace(strings.Split(input.ContentType, ";")[0]))
		if _, ok := acceptedMediaTypes[mediaType]; !ok && mediaType != "application/octet-stream" {
			return invalidUpload("unsupported file type",
				fmt.Sprintf("media type %q is not supported", mediaType))
		}
	}
	return nil
}

func (u *UploadUsecase) saveFile(input UploadInput) (string, error) {
	if err := os.MkdirAll(u.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(input.Filename))
	path := filepath.Join(u.uploadDir, uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	// The size header is advisory; the copy enforces the real limit.
	written, err := io.Copy(dst, io.LimitReader(input.File, u.maxBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store upload: %w", err)
	}
	if written > u.maxBytes {
		os.Remove(path)
		return "", invalidUpload("file is too large",
			fmt.Sprintf("file exceeds the %d byte limit", u.maxBytes))
	}
	return path, nil
}

func (u *UploadUsecase) createJob(ctx context.Context, filename, path string) (*domain.ImportJob, error) {
	fp, err := importer.ComputeFingerprint(path)
	if err != nil {
		return nil, fmt.Errorf("fingerprint upload: %w", err)
	}

	reader, err := importer.Open(path)
	if err != nil {
		var headerErr *importer.HeaderError
		if errors.As(err, &headerErr) {
			return nil, invalidUpload("missing required columns", headerErr.Missing...)
		}
		return nil, invalidUpload("file could not be read", err.Error())
	}
	defer reader.Close()

	totalRows, err := importer.CountRows(reader)
	if err != nil {
		return nil, invalidUpload("file could not be read", err.Error())
	}
	if totalRows == 0 {
		return nil, invalidUpload("file has no data rows")
	}
	if totalRows > u.maxRows {
		return nil, invalidUpload("file has too many rows",
			fmt.Sprintf("%d rows exceeds the %d row limit", totalRows, u.maxRows))
	}

	job := &domain.ImportJob{
		ID:          uuid.NewString(),
		Filename:    filename,
		FilePath:    path,
		Status:      domain.JobPending,
		Queue:       domain.QueueFor(totalRows),
		TotalRows:   totalRows,
		Fingerprint: fp,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	created, err := u.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	u.logger.Info("import job created",
		"job_id", created.ID,
		"filename", filename,
		"total_rows", totalRows,
		"queue", created.Queue)
	return created, nil
}
