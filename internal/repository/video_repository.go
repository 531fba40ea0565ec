package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dentvid-api/internal/models"
)

const videoColumns = `v.id, v.title, v.description, v.filename, v.original_name, v.file_path, v.thumbnail_path,
	v.file_size, v.duration, v.category, v.tags, v.uploaded_by, v.is_active, v.created_at, v.updated_at`

const videoListSelect = `SELECT ` + videoColumns + `, u.first_name, u.last_name,
	(SELECT COUNT(*) FROM video_views vv WHERE vv.video_id = v.id) AS view_count
	FROM videos v JOIN users u ON u.id = v.uploaded_by`

var videoSorts = map[string]string{
	"created_at": "v.created_at",
	"title":      "v.title",
	"duration":   "v.duration",
	"file_size":  "v.file_size",
	"views":      "view_count",
}

// VideoRepository handles video metadata persistence.
type VideoRepository struct {
	db *sqlx.DB
}

// NewVideoRepository constructs the repository.
func NewVideoRepository(db *sqlx.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create stores a processed video and fills its generated id.
func (r *VideoRepository) Create(ctx context.Context, video *models.Video) error {
	now := time.Now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = now
	video.Active = true

	const query = `INSERT INTO videos
	(title, description, filename, original_name, file_path, thumbnail_path, file_size, duration, category, tags, uploaded_by, is_active, created_at, updated_at)
	VALUES (:title, :description, :filename, :original_name, :file_path, :thumbnail_path, :file_size, :duration, :category, :tags, :uploaded_by, :is_active, :created_at, :updated_at)
	RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, video)
	if err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&video.ID); err != nil {
			return fmt.Errorf("scan video id: %w", err)
		}
	}
	return rows.Err()
}

// GetActive returns an active video with uploader and view count. Inactive
// rows are reported as sql.ErrNoRows.
func (r *VideoRepository) GetActive(ctx context.Context, id int64) (*models.VideoListItem, error) {
	query := videoListSelect + ` WHERE v.id = $1 AND v.is_active = TRUE`
	var item models.VideoListItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get video: %w", err)
	}
	return &item, nil
}

// GetByID returns a video regardless of its active flag.
func (r *VideoRepository) GetByID(ctx context.Context, id int64) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos v WHERE v.id = $1`
	var video models.Video
	if err := r.db.GetContext(ctx, &video, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get video by id: %w", err)
	}
	return &video, nil
}

// List returns a page of videos matching filter and the total count.
func (r *VideoRepository) List(ctx context.Context, filter models.VideoFilter) ([]models.VideoListItem, int, error) {
	where := newWhere()
	switch {
	case filter.Active != nil:
		where.add("v.is_active = ?", *filter.Active)
	case !filter.IncludeDeleted:
		where.add("v.is_active = ?", true)
	}
	where.eq("v.category", filter.Category)
	where.contains(filter.Search, "v.title", "v.description", "v.tags")

	_, _, limit := paginate(filter.Page, filter.PageSize, 12, 100)
	listQuery := videoListSelect + where.sql() + orderBy(filter.SortBy, filter.SortOrder, videoSorts, "created_at") + limit

	var items []models.VideoListItem
	if err := r.db.SelectContext(ctx, &items, listQuery, where.params()...); err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM videos v`+where.sql(), where.params()...); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}
	return items, total, nil
}

// ActiveCategories returns the distinct non-empty categories of active videos.
func (r *VideoRepository) ActiveCategories(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT category FROM videos WHERE is_active = TRUE AND category IS NOT NULL AND category <> '' ORDER BY category`
	var categories []string
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list video categories: %w", err)
	}
	return categories, nil
}

// Update applies a metadata patch to an active video.
func (r *VideoRepository) Update(ctx context.Context, id int64, patch models.VideoPatch) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	set := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	set("title", patch.Title)
	set("description", patch.Description)
	set("category", patch.Category)
	set("tags", patch.Tags)
	if len(sets) == 0 {
		return nil
	}

	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE videos SET %s WHERE id = $%d AND is_active = TRUE", strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return requireAffected(res, "update video")
}

// SoftDelete marks a video inactive. Already inactive rows yield sql.ErrNoRows.
func (r *VideoRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE videos SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete video: %w", err)
	}
	return requireAffected(res, "soft delete video")
}
