package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dentvid-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "password_hash", "first_name", "last_name", "role", "is_verified", "is_active",
	"verification_token", "reset_token", "reset_token_expires", "last_login", "created_at", "updated_at"}

func userRow(rows *sqlmock.Rows, id int64, email string, role models.UserRole, active bool) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, email, "hash", "Ada", "Lovelace", string(role), true, active, nil, nil, nil, now, now, now)
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(userRow(sqlmock.NewRows(userRowColumns), 1, "user@example.com", models.RoleAdmin, true))

	user, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, "Ada Lovelace", user.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFoundIsUnwrapped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 9)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserReturnsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("INSERT INTO users").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	user := &models.User{Email: " New@Example.com ", PasswordHash: "h", FirstName: "N", LastName: "U", Role: models.RoleJuniorDentist, Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Email: "dup@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleSeniorDentist
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE role = $1 AND (LOWER(COALESCE(email, '')) LIKE $2 OR LOWER(COALESCE(first_name, '')) LIKE $3 OR LOWER(COALESCE(last_name, '')) LIKE $4) ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(role, "%ada%", "%ada%", "%ada%").
		WillReturnRows(userRow(sqlmock.NewRows(userRowColumns), 1, "a@example.com", role, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, Search: "Ada"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateMissingUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_active = FALSE")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), 5)
	assert.True(t, IsNotFound(err))
}
