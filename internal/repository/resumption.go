package repository

import (
	"context"

	"github.com/hrstream/employee-import/internal/domain"
)

type ResumptionLogRepository interface {
	Append(ctx context.Context, event *domain.ResumptionEvent) error
	ListForJob(ctx context.Context, jobID string) ([]*domain.ResumptionEvent, error)
}
