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

const userColumns = `id, email, password_hash, first_name, last_name, role, is_verified, is_active,
	verification_token, reset_token, reset_token_expires, last_login, created_at, updated_at`

// UserRepository provides database access for user accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "find user by email", `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, email)
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, "find user by id", `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, id)
}

// FindByVerificationToken returns the user awaiting verification with token.
func (r *UserRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.findOne(ctx, "find user by verification token", `SELECT `+userColumns+` FROM users WHERE verification_token = $1 LIMIT 1`, token)
}

// FindByResetToken returns the user holding an unexpired reset token.
func (r *UserRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	return r.findOne(ctx, "find user by reset token", `SELECT `+userColumns+` FROM users WHERE reset_token = $1 AND reset_token_expires > $2 LIMIT 1`, token, now)
}

func (r *UserRepository) findOne(ctx context.Context, op, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// ListActiveAdmins returns every active administrator except excludeID.
func (r *UserRepository) ListActiveAdmins(ctx context.Context, excludeID int64) ([]models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND is_active = TRUE AND id <> $2 ORDER BY id`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, models.RoleAdmin, excludeID); err != nil {
		return nil, fmt.Errorf("list active admins: %w", err)
	}
	return users, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword stores a new hash and clears any pending reset token.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, reset_token = NULL, reset_token_expires = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetResetToken stores a password reset token valid until expires.
func (r *UserRepository) SetResetToken(ctx context.Context, id int64, token string, expires time.Time) error {
	const query = `UPDATE users SET reset_token = $2, reset_token_expires = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, token, expires); err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

// MarkVerified flags the account verified and consumes the token.
func (r *UserRepository) MarkVerified(ctx context.Context, id int64) error {
	const query = `UPDATE users SET is_verified = TRUE, verification_token = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	where := newWhere()
	if filter.Role != nil {
		where.add("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		where.add("is_active = ?", *filter.Active)
	}
	where.contains(filter.Search, "email", "first_name", "last_name")

	allowedSorts := map[string]string{
		"email":      "email",
		"created_at": "created_at",
		"last_login": "last_login",
		"last_name":  "last_name",
		"role":       "role",
	}
	_, _, limit := paginate(filter.Page, filter.PageSize, 20, 100)

	listQuery := `SELECT ` + userColumns + ` FROM users` + where.sql() +
		orderBy(filter.SortBy, filter.SortOrder, allowedSorts, "created_at") + limit

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, where.params()...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where.sql(), where.params()...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// Create inserts a new user and fills the generated id and timestamps.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	const query = `INSERT INTO users (email, password_hash, first_name, last_name, role, is_verified, is_active, verification_token, created_at, updated_at)
	VALUES (:email, :password_hash, :first_name, :last_name, :role, :is_verified, :is_active, :verification_token, :created_at, :updated_at)
	RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("create user: %w", mapWriteError(err))
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&user.ID); err != nil {
			return fmt.Errorf("scan user id: %w", err)
		}
	}
	return rows.Err()
}

// Update updates mutable fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET first_name = :first_name, last_name = :last_name, role = :role,
	is_active = :is_active, is_verified = :is_verified, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", mapWriteError(err))
	}
	return requireAffected(res, "update user")
}

// Deactivate performs a soft delete by marking the user inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE users SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return requireAffected(res, "deactivate user")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
