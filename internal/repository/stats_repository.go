package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dentvid-api/internal/models"
)

// StatsRepository exposes read-only aggregates for the admin dashboard.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository instantiates the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Totals returns the headline counters.
func (r *StatsRepository) Totals(ctx context.Context) (models.DashboardTotals, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM users) AS users,
	(SELECT COUNT(*) FROM users WHERE is_active = TRUE) AS active_users,
	(SELECT COUNT(*) FROM videos WHERE is_active = TRUE) AS videos,
	(SELECT COUNT(*) FROM video_views) AS views,
	(SELECT COUNT(*) FROM video_views WHERE viewed_at >= CURRENT_DATE) AS views_today`
	var totals models.DashboardTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return totals, fmt.Errorf("dashboard totals: %w", err)
	}
	return totals, nil
}

// RecentUploads returns the newest active videos.
func (r *StatsRepository) RecentUploads(ctx context.Context, limit int) ([]models.RecentUpload, error) {
	const query = `SELECT v.id, v.title, TRIM(u.first_name || ' ' || u.last_name) AS uploader, v.created_at
	FROM videos v JOIN users u ON u.id = v.uploaded_by
	WHERE v.is_active = TRUE ORDER BY v.created_at DESC LIMIT $1`
	uploads := []models.RecentUpload{}
	if err := r.db.SelectContext(ctx, &uploads, query, limit); err != nil {
		return nil, fmt.Errorf("recent uploads: %w", err)
	}
	return uploads, nil
}

// TopVideos ranks active videos by total views.
func (r *StatsRepository) TopVideos(ctx context.Context, limit int) ([]models.TopVideo, error) {
	const query = `SELECT v.id, v.title, COUNT(vv.id) AS view_count
	FROM videos v LEFT JOIN video_views vv ON vv.video_id = v.id
	WHERE v.is_active = TRUE GROUP BY v.id, v.title ORDER BY view_count DESC, v.id DESC LIMIT $1`
	top := []models.TopVideo{}
	if err := r.db.SelectContext(ctx, &top, query, limit); err != nil {
		return nil, fmt.Errorf("top videos: %w", err)
	}
	return top, nil
}

// dailyCountSources maps a statistics series to its table and timestamp column.
var dailyCountSources = map[string][2]string{
	"registrations": {"users", "created_at"},
	"uploads":       {"videos", "created_at"},
	"views":         {"video_views", "viewed_at"},
}

// DailyCounts returns per-day row counts for series over the trailing days.
func (r *StatsRepository) DailyCounts(ctx context.Context, series string, days int) ([]models.DailyCount, error) {
	src, ok := dailyCountSources[series]
	if !ok {
		return nil, fmt.Errorf("unknown statistics series %q", series)
	}
	query := fmt.Sprintf(`SELECT TO_CHAR(DATE(%[2]s), 'YYYY-MM-DD') AS date, COUNT(*) AS count
	FROM %[1]s WHERE %[2]s >= CURRENT_DATE - ($1 * INTERVAL '1 day')
	GROUP BY DATE(%[2]s) ORDER BY DATE(%[2]s)`, src[0], src[1])
	counts := []models.DailyCount{}
	if err := r.db.SelectContext(ctx, &counts, query, days); err != nil {
		return nil, fmt.Errorf("daily %s: %w", series, err)
	}
	return counts, nil
}

// UsersByRole counts active users per role.
func (r *StatsRepository) UsersByRole(ctx context.Context) ([]models.RoleCount, error) {
	const query = `SELECT role, COUNT(*) AS count FROM users WHERE is_active = TRUE GROUP BY role ORDER BY role`
	counts := []models.RoleCount{}
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}
	return counts, nil
}
