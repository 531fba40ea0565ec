package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/repository"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
)

type fakeStats struct {
	calls     atomic.Int32
	totalsErr error
}

func (f *fakeStats) Totals(context.Context) (models.DashboardTotals, error) {
	f.calls.Add(1)
	return models.DashboardTotals{Users: 12, ActiveUsers: 10, Videos: 4, Views: 99, ViewsToday: 7}, f.totalsErr
}

func (f *fakeStats) RecentUploads(_ context.Context, limit int) ([]models.RecentUpload, error) {
	return []models.RecentUpload{{ID: 4, Title: "Veneers", Uploader: "Dewi Lestari"}}, nil
}

func (f *fakeStats) TopVideos(_ context.Context, limit int) ([]models.TopVideo, error) {
	return []models.TopVideo{{ID: 2, Title: "Root Canal Basics", ViewCount: 50}}, nil
}

func (f *fakeStats) DailyCounts(_ context.Context, series string, days int) ([]models.DailyCount, error) {
	counts := map[string]int64{"registrations": 1, "uploads": 2, "views": 3}
	return []models.DailyCount{{Date: "2026-03-14", Count: counts[series]}}, nil
}

func (f *fakeStats) UsersByRole(context.Context) ([]models.RoleCount, error) {
	return []models.RoleCount{{Role: models.RoleAdmin, Count: 2}}, nil
}

type fakeActivityLister struct{}

func (fakeActivityLister) List(_ context.Context, filter models.ActivityFilter) ([]models.ActivityLogEntry, int, error) {
	return []models.ActivityLogEntry{{ActivityLog: models.ActivityLog{Action: models.ActionVideoUploaded}}}, 1, nil
}

func newDashboardFixture(t *testing.T) (*DashboardService, *fakeStats, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCacheService(repository.NewCacheRepository(client, "dentvid:", zap.NewNop()), nil, time.Minute, zap.NewNop(), true)
	stats := &fakeStats{}
	svc := NewDashboardService(stats, fakeActivityLister{}, cache, nil, zap.NewNop(), DashboardServiceConfig{CacheTTL: time.Minute})
	return svc, stats, mr
}

func TestDashboardServiceAdminCaches(t *testing.T) {
	svc, stats, mr := newDashboardFixture(t)

	first, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(99), first.Totals.Views)
	assert.Len(t, first.RecentUploads, 1)
	assert.Len(t, first.TopVideos, 1)
	assert.Len(t, first.RecentActivity, 1)
	assert.True(t, mr.Exists("dentvid:dash:admin"))

	second, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Totals, second.Totals)
	assert.Equal(t, int32(1), stats.calls.Load())

	mr.FastForward(2 * time.Minute)
	_, cached, err = svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), stats.calls.Load())
}

func TestDashboardServiceAdminFailure(t *testing.T) {
	svc, stats, mr := newDashboardFixture(t)
	stats.totalsErr = errors.New("connection reset")

	_, _, err := svc.Admin(context.Background())
	require.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.False(t, mr.Exists("dentvid:dash:admin"))
}

func TestDashboardServiceStatistics(t *testing.T) {
	svc, _, _ := newDashboardFixture(t)

	stats, cached, err := svc.Statistics(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 30, stats.Days)
	assert.Equal(t, int64(1), stats.Registrations[0].Count)
	assert.Equal(t, int64(2), stats.Uploads[0].Count)
	assert.Equal(t, int64(3), stats.Views[0].Count)
	assert.Len(t, stats.UsersByRole, 1)

	_, cached, err = svc.Statistics(context.Background(), 30)
	require.NoError(t, err)
	assert.True(t, cached)

	_, _, err = svc.Statistics(context.Background(), 400)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDashboardServiceWorksWithoutCache(t *testing.T) {
	stats := &fakeStats{}
	svc := NewDashboardService(stats, fakeActivityLister{}, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	_, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	_, cached, err = svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), stats.calls.Load())

	snapshot := svc.SystemMetrics()
	assert.False(t, snapshot.GeneratedAt.IsZero())
}
