package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dentvid-api/internal/models"
)

// ActivityRepository persists the append-only activity log.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create stores an activity log entry.
func (r *ActivityRepository) Create(ctx context.Context, log *models.ActivityLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
	VALUES (:user_id, :action, :resource_type, :resource_id, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// List returns activity entries newest first with the actor's identity.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLogEntry, int, error) {
	where := newWhere().eq("a.action", filter.Action)
	if filter.UserID != nil {
		where.add("a.user_id = ?", *filter.UserID)
	}
	_, _, limit := paginate(filter.Page, filter.PageSize, 50, 200)

	query := `SELECT a.id, a.user_id, a.action, a.resource_type, a.resource_id, a.details, a.ip_address, a.user_agent, a.created_at,
	u.email, NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), '') AS user_name
	FROM activity_logs a LEFT JOIN users u ON u.id = a.user_id` + where.sql() + ` ORDER BY a.created_at DESC, a.id DESC` + limit

	entries := []models.ActivityLogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, where.params()...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_logs a`+where.sql(), where.params()...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}
	return entries, total, nil
}
