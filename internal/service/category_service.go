package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
)

const categoriesCacheKey = "categories"

type categoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
}

// CategoryService serves the seeded video categories.
type CategoryService struct {
	repo   categoryRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCategoryService constructs a CategoryService.
func NewCategoryService(repo categoryRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// List returns all categories ordered by name.
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	var cached []models.Category
	if s.cache.Get(ctx, categoriesCacheKey, &cached) {
		return cached, nil
	}
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	s.cache.Set(ctx, categoriesCacheKey, categories, s.ttl)
	return categories, nil
}
