package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
)

type activityRepository interface {
	Create(ctx context.Context, log *models.ActivityLog) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLogEntry, int, error)
}

// activityRecorder is the write side other services depend on.
type activityRecorder interface {
	Record(ctx context.Context, entry models.ActivityLog)
}

// ActivityService appends to and reads the audit trail.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
}

// NewActivityService constructs the service.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// Record appends entry. Failures are logged and never surface to the caller.
func (s *ActivityService) Record(ctx context.Context, entry models.ActivityLog) {
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Warn("failed to record activity",
			zap.String("action", entry.Action),
			zap.String("resource_type", entry.ResourceType),
			zap.Error(err),
		)
	}
}

// List returns a page of activity entries.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLogEntry, *models.Pagination, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize, 50, 200)
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity logs")
	}
	return entries, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

func normalizePage(page, size, defaultSize, maxSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return page, size
}

func int64Ptr(v int64) *int64 {
	return &v
}
