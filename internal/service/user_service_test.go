package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
)

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) Deactivate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	return nil
}

type userFixture struct {
	svc      *UserService
	repo     *mockUserRepo
	activity *recordingActivity
	notifier *recordingNotifier
}

func newUserFixture(users ...*models.User) userFixture {
	repo := newMockUserRepo(users...)
	activity := &recordingActivity{}
	notify := &recordingNotifier{}
	return userFixture{
		svc:      NewUserService(repo, activity, notify, NewValidator(), zap.NewNop()),
		repo:     repo,
		activity: activity,
		notifier: notify,
	}
}

func TestUserServiceListPagination(t *testing.T) {
	f := newUserFixture(testUser(t, 1, models.RoleAdmin), testUser(t, 2, models.RoleJuniorDentist))
	role := models.RoleJuniorDentist

	users, pagination, err := f.svc.List(context.Background(), models.UserFilter{Role: &role, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 100, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalPages)

	bogus := models.UserRole("student")
	_, _, err = f.svc.List(context.Background(), models.UserFilter{Role: &bogus})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceCreate(t *testing.T) {
	f := newUserFixture()

	user, err := f.svc.Create(context.Background(), CreateUserRequest{
		Email:     "admin2@example.com",
		Password:  "password123",
		FirstName: "Adi",
		LastName:  "Nugroho",
		Role:      models.RoleAdmin,
		Verified:  true,
	}, 1, models.RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.True(t, user.Active)
	assert.Equal(t, []string{models.ActionUserCreated}, f.activity.actions())

	_, err = f.svc.Create(context.Background(), CreateUserRequest{Email: "bad", Password: "password123", FirstName: "A", LastName: "B", Role: models.RoleAdmin}, 1, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceUpdate(t *testing.T) {
	f := newUserFixture(testUser(t, 1, models.RoleAdmin), testUser(t, 2, models.RoleJuniorDentist))

	_, err := f.svc.Update(context.Background(), 2, UpdateUserRequest{}, 1, models.RequestMeta{})
	require.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, "No valid fields to update", appErrors.FromError(err).Message)

	senior := models.RoleSeniorDentist
	verified := true
	user, err := f.svc.Update(context.Background(), 2, UpdateUserRequest{Role: &senior, Verified: &verified}, 1, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSeniorDentist, user.Role)
	assert.Equal(t, models.RoleSeniorDentist, f.repo.users[2].Role)

	inactive := false
	_, err = f.svc.Update(context.Background(), 1, UpdateUserRequest{Active: &inactive}, 1, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Update(context.Background(), 99, UpdateUserRequest{Verified: &verified}, 1, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUserServiceDeactivate(t *testing.T) {
	f := newUserFixture(testUser(t, 1, models.RoleAdmin), testUser(t, 2, models.RoleJuniorDentist))

	err := f.svc.Deactivate(context.Background(), 1, 1, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	require.NoError(t, f.svc.Deactivate(context.Background(), 2, 1, models.RequestMeta{}))
	assert.False(t, f.repo.users[2].Active)

	err = f.svc.Deactivate(context.Background(), 42, 1, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUserServiceResetPasswordEmailsTemporaryPassword(t *testing.T) {
	f := newUserFixture(testUser(t, 1, models.RoleAdmin), testUser(t, 2, models.RoleJuniorDentist))

	require.NoError(t, f.svc.ResetPassword(context.Background(), 2, 1, models.RequestMeta{}))
	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, mailer.TemplateAdminPasswordReset, call.Template)
	require.NotEmpty(t, call.Data.TempPassword)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.users[2].PasswordHash), []byte(call.Data.TempPassword)))
	assert.Equal(t, []string{models.ActionAdminPasswordSet}, f.activity.actions())
}
