package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
)

const (
	dashboardCacheKey      = "dash:admin"
	statisticsCacheKeyFmt  = "dash:stats:%d"
	dashboardListLimit     = 5
	dashboardActivityLimit = 10
)

type statsRepository interface {
	Totals(ctx context.Context) (models.DashboardTotals, error)
	RecentUploads(ctx context.Context, limit int) ([]models.RecentUpload, error)
	TopVideos(ctx context.Context, limit int) ([]models.TopVideo, error)
	DailyCounts(ctx context.Context, series string, days int) ([]models.DailyCount, error)
	UsersByRole(ctx context.Context) ([]models.RoleCount, error)
}

type activityLister interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLogEntry, int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin dashboard and statistics.
type DashboardService struct {
	stats    statsRepository
	activity activityLister
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(stats statsRepository, activity activityLister, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		stats:    stats,
		activity: activity,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Admin returns the dashboard summary and whether it came from cache. The
// independent aggregates are queried concurrently.
func (s *DashboardService) Admin(ctx context.Context) (*models.Dashboard, bool, error) {
	var cached models.Dashboard
	if s.cache.Get(ctx, dashboardCacheKey, &cached) {
		return &cached, true, nil
	}

	out := &models.Dashboard{GeneratedAt: s.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.stats.Totals(gctx)
		out.Totals = totals
		return err
	})
	g.Go(func() error {
		uploads, err := s.stats.RecentUploads(gctx, dashboardListLimit)
		out.RecentUploads = uploads
		return err
	})
	g.Go(func() error {
		top, err := s.stats.TopVideos(gctx, dashboardListLimit)
		out.TopVideos = top
		return err
	})
	g.Go(func() error {
		entries, _, err := s.activity.List(gctx, models.ActivityFilter{Page: 1, PageSize: dashboardActivityLimit})
		out.RecentActivity = entries
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to compose dashboard", zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard")
	}

	s.cache.Set(ctx, dashboardCacheKey, out, s.cfg.CacheTTL)
	return out, false, nil
}

// Statistics returns per-day registrations, uploads and views over the
// trailing days plus active users per role.
func (s *DashboardService) Statistics(ctx context.Context, days int) (*models.Statistics, bool, error) {
	if days == 0 {
		days = 30
	}
	if days < 1 || days > 365 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "days must be between 1 and 365")
	}

	key := fmt.Sprintf(statisticsCacheKeyFmt, days)
	var cached models.Statistics
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	out := &models.Statistics{Days: days}
	g, gctx := errgroup.WithContext(ctx)
	series := map[string]*[]models.DailyCount{
		"registrations": &out.Registrations,
		"uploads":       &out.Uploads,
		"views":         &out.Views,
	}
	for name, dest := range series {
		name, dest := name, dest
		g.Go(func() error {
			counts, err := s.stats.DailyCounts(gctx, name, days)
			*dest = counts
			return err
		})
	}
	g.Go(func() error {
		roles, err := s.stats.UsersByRole(gctx)
		out.UsersByRole = roles
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to compose statistics", zap.Int("days", days), zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statistics")
	}

	s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
	return out, false, nil
}

// SystemMetrics summarises the process counters.
func (s *DashboardService) SystemMetrics() models.SystemMetrics {
	snapshot := s.metrics.Snapshot()
	snapshot.GeneratedAt = s.now().UTC()
	return snapshot
}

// Invalidate drops the cached dashboard so the next read recomputes it.
func (s *DashboardService) Invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, dashboardCacheKey)
}
