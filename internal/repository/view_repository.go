package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dentvid-api/internal/models"
)

// ViewRepository appends and aggregates video view events.
type ViewRepository struct {
	db *sqlx.DB
}

// NewViewRepository constructs the repository.
func NewViewRepository(db *sqlx.DB) *ViewRepository {
	return &ViewRepository{db: db}
}

// Record appends one view event.
func (r *ViewRepository) Record(ctx context.Context, view *models.VideoView) error {
	if view.ViewedAt.IsZero() {
		view.ViewedAt = time.Now().UTC()
	}
	const query = `INSERT INTO video_views (video_id, user_id, ip_address, user_agent, viewed_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, view.VideoID, view.UserID, view.IPAddress, view.UserAgent, view.ViewedAt); err != nil {
		return fmt.Errorf("record video view: %w", err)
	}
	return nil
}

// Analytics aggregates the view history of one video.
func (r *ViewRepository) Analytics(ctx context.Context, videoID int64, recentLimit, dayLimit int) (*models.VideoAnalytics, error) {
	out := &models.VideoAnalytics{VideoID: videoID}

	const totalsQuery = `SELECT COUNT(*) AS total, COUNT(DISTINCT user_id) AS unique_viewers FROM video_views WHERE video_id = $1`
	var totals struct {
		Total  int64 `db:"total"`
		Unique int64 `db:"unique_viewers"`
	}
	if err := r.db.GetContext(ctx, &totals, totalsQuery, videoID); err != nil {
		return nil, fmt.Errorf("count video views: %w", err)
	}
	out.TotalViews = totals.Total
	out.UniqueViewers = totals.Unique

	const recentQuery = `SELECT vv.viewed_at, vv.ip_address,
	COALESCE(NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''), 'Anonymous') AS viewer_name
	FROM video_views vv LEFT JOIN users u ON u.id = vv.user_id
	WHERE vv.video_id = $1 ORDER BY vv.viewed_at DESC LIMIT $2`
	out.RecentViews = []models.RecentView{}
	if err := r.db.SelectContext(ctx, &out.RecentViews, recentQuery, videoID, recentLimit); err != nil {
		return nil, fmt.Errorf("list recent views: %w", err)
	}

	const byDateQuery = `SELECT TO_CHAR(DATE(viewed_at), 'YYYY-MM-DD') AS date, COUNT(*) AS count
	FROM video_views WHERE video_id = $1 GROUP BY DATE(viewed_at) ORDER BY DATE(viewed_at) DESC LIMIT $2`
	out.ViewsByDate = []models.DailyCount{}
	if err := r.db.SelectContext(ctx, &out.ViewsByDate, byDateQuery, videoID, dayLimit); err != nil {
		return nil, fmt.Errorf("group views by date: %w", err)
	}
	return out, nil
}
