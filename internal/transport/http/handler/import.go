package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hrstream/employee-import/internal/domain"
	"github.com/hrstream/employee-import/internal/repository"
	"github.com/hrstream/employee-import/internal/usecase"
)

type ImportHandler struct {
	upload *usecase.UploadUsecase
	status *usecase.StatusUsecase
	logger *slog.Logger
}

func NewImportHandler(upload *usecase.UploadUsecase, status *usecase.StatusUsecase, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		upload: upload,
		status: status,
		logger: logger.With("component", "import_handler"),
	}
}

func respond(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, code int, message string, errs []string) {
	body := gin.H{"success": false, "message": message}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	c.JSON(code, body)
}

type uploadResponse struct {
	ImportJobID string `json:"import_job_id"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	TotalRows   int    `json:"total_rows"`
	Queue       string `json:"queue"`
}

func (h *ImportHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, errFileMissing, nil)
		return
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file", "error", err)
		respondError(c, http.StatusInternalServerError, errInternalServer, nil)
		return
	}
	defer src.Close()

	job, err := h.upload.Upload(c.Request.Context(), usecase.UploadInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		File:        src,
	})
	if err != nil {
		var vErr *usecase.UploadValidationError
		if errors.As(err, &vErr) {
			respondError(c, http.StatusUnprocessableEntity, vErr.Message, vErr.Errors)
			return
		}
		h.logger.Error("upload import file", "filename", file.Filename, "error", err)
		respondError(c, http.StatusInternalServerError, errInternalServer, nil)
		return
	}

	respond(c, http.StatusCreated, uploadResponse{
		ImportJobID: job.ID,
		Filename:    job.Filename,
		Status:      string(job.Status),
		TotalRows:   job.TotalRows,
		Queue:       string(job.Queue),
	})
}

type progressResponse struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	TotalRows      int        `json:"total_rows"`
	ProcessedRows  int        `json:"processed_rows"`
	SuccessfulRows int        `json:"successful_rows"`
	ErrorRows      int        `json:"error_rows"`
	Percentage     float64    `json:"percentage"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

func (h *ImportHandler) Progress(c *gin.Context) {
	jobID := c.Param("id")

	snap, err := h.status.Progress(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, errJobNotFound, nil)
			return
		}
		h.logger.Error("read progress", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, errInternalServer, nil)
		return
	}

	respond(c, http.StatusOK, progressResponse{
		ID:             snap.JobID,
		Status:         snap.Status,
		TotalRows:      snap.TotalRows,
		ProcessedRows:  snap.ProcessedRows,
		SuccessfulRows: snap.SuccessfulRows,
		ErrorRows:      snap.ErrorRows,
		Percentage:     snap.Percentage,
		StartedAt:      snap.StartedAt,
		CompletedAt:    snap.CompletedAt,
	})
}

type listErrorsQuery struct {
	ErrorType string `form:"error_type" binding:"omitempty,oneof=validation duplicate format business_rule system"`
	RowStart  int    `form:"row_start"  binding:"omitempty,min=1"`
	RowEnd    int    `form:"row_end"    binding:"omitempty,min=1"`
	Search    string `form:"search"`
	Page      int    `form:"page"       binding:"omitempty,min=1"`
	PerPage   int    `form:"per_page"   binding:"omitempty,min=1,max=100"`
}

type errorRecordResponse struct {
	RowNumber int               `json:"row_number"`
	ErrorType string            `json:"error_type"`
	Message   string            `json:"message"`
	RowData   map[string]string `json:"row_data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func (h *ImportHandler) Errors(c *gin.Context) {
	jobID := c.Param("id")

	var q listErrorsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "invalid query parameters", []string{err.Error()})
		return
	}

	page, err := h.status.Errors(c.Request.Context(), repository.ListErrorsInput{
		JobID:    jobID,
		Type:     domain.ErrorType(q.ErrorType),
		RowStart: q.RowStart,
		RowEnd:   q.RowEnd,
		Search:   q.Search,
		Page:     q.Page,
		PerPage:  q.PerPage,
	})
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, errJobNotFound, nil)
			return
		}
		h.logger.Error("list import errors", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, errInternalServer, nil)
		return
	}

	records := make([]errorRecordResponse, len(page.Errors))
	for i, rec := range page.Errors {
		records[i] = errorRecordResponse{
			RowNumber: rec.RowNumber,
			ErrorType: string(rec.Type),
			Message:   rec.Message,
			RowData:   rec.RowData,
			CreatedAt: rec.CreatedAt,
		}
	}

	respond(c, http.StatusOK, gin.H{
		"errors": records,
		"pagination": paginationResponse{
			Page:       page.Page,
			PerPage:    page.PerPage,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

type summaryResponse struct {
	ID                string                    `json:"id"`
	Filename          string                    `json:"filename"`
	Status            string                    `json:"status"`
	Queue             string                    `json:"queue"`
	TotalRows         int                       `json:"total_rows"`
	ProcessedRows     int                       `json:"processed_rows"`
	SuccessfulRows    int                       `json:"successful_rows"`
	ErrorRows         int                       `json:"error_rows"`
	Attempts          int                       `json:"attempts"`
	SuccessRate       float64                   `json:"success_rate"`
	ErrorRate         float64                   `json:"error_rate"`
	ErrorHistogram    map[string]int            `json:"error_histogram"`
	ProcessingSeconds *float64                  `json:"processing_seconds"`
	StartedAt         *time.Time                `json:"started_at"`
	CompletedAt       *time.Time                `json:"completed_at"`
	LastError         *string                   `json:"last_error,omitempty"`
	Resumptions       []resumptionEventResponse `json:"resumptions"`
}

type resumptionEventResponse struct {
	EventType      string    `json:"event_type"`
	AttemptNumber  int       `json:"attempt_number"`
	ResumedFromRow int       `json:"resumed_from_row"`
	Details        string    `json:"details"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *ImportHandler) Summary(c *gin.Context) {
	jobID := c.Param("id")

	summary, err := h.status.Summary(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			respondError(c, http.StatusNotFound, errJobNotFound, nil)
			return
		}
		h.logger.Error("build import summary", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, errInternalServer, nil)
		return
	}

	histogram := make(map[string]int, len(summary.ErrorHistogram))
	for t, n := range summary.ErrorHistogram {
		histogram[string(t)] = n
	}
	events := make([]resumptionEventResponse, len(summary.ResumptionEvents))
	for i, ev := range summary.ResumptionEvents {
		events[i] = resumptionEventResponse{
			EventType:      string(ev.EventType),
			AttemptNumber:  ev.AttemptNumber,
			ResumedFromRow: ev.ResumedFromRow,
			Details:        ev.Details,
			CreatedAt:      ev.CreatedAt,
		}
	}

	job := summary.Job
	respond(c, http.StatusOK, summaryResponse{
		ID:                job.ID,
		Filename:          job.Filename,
		Status:            string(job.Status),
		Queue:             string(job.Queue),
		TotalRows:         job.TotalRows,
		ProcessedRows:     job.ProcessedRows,
		SuccessfulRows:    job.SuccessfulRows,
		ErrorRows:         job.ErrorRows,
		Attempts:          job.Attempts,
		SuccessRate:       summary.SuccessRate,
		ErrorRate:         summary.ErrorRate,
		ErrorHistogram:    histogram,
		ProcessingSeconds: summary.ProcessingSeconds,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		LastError:         job.LastError,
		Resumptions:       events,
	})
}
