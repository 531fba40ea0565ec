package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/repository"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
	"github.com/noah-isme/dentvid-api/pkg/ratelimit"
)

type mockUserRepo struct {
	mu        sync.Mutex
	users     map[int64]*models.User
	nextID    int64
	findErr   error
	createErr error
	lastLogin map[int64]time.Time
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	repo := &mockUserRepo{users: map[int64]*models.User{}, lastLogin: map[int64]time.Time{}, nextID: 100}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockUserRepo) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *mockUserRepo) FindByID(_ context.Context, id int64) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *mockUserRepo) FindByVerificationToken(_ context.Context, token string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.VerificationToken != nil && *u.VerificationToken == token })
}

func (m *mockUserRepo) FindByResetToken(_ context.Context, token string, now time.Time) (*models.User, error) {
	return m.find(func(u *models.User) bool {
		return u.ResetToken != nil && *u.ResetToken == token && u.ResetTokenExpires != nil && u.ResetTokenExpires.After(now)
	})
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	user.ID = m.nextID
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id int64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogin[id] = ts
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id int64, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	u.ResetToken = nil
	u.ResetTokenExpires = nil
	return nil
}

func (m *mockUserRepo) SetResetToken(_ context.Context, id int64, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.ResetToken = &token
	u.ResetTokenExpires = &expires
	return nil
}

func (m *mockUserRepo) MarkVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.Verified = true
	u.VerificationToken = nil
	return nil
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (r *recordingActivity) Record(_ context.Context, entry models.ActivityLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingActivity) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testUser(t *testing.T, id int64, role models.UserRole) *models.User {
	return &models.User{
		ID:           id,
		Email:        "user@example.com",
		PasswordHash: hashPassword(t, "password123"),
		FirstName:    "Dewi",
		LastName:     "Lestari",
		Role:         role,
		Verified:     true,
		Active:       true,
	}
}

type authFixture struct {
	svc      *AuthService
	repo     *mockUserRepo
	activity *recordingActivity
	notifier *recordingNotifier
}

func newAuthFixture(users ...*models.User) authFixture {
	repo := newMockUserRepo(users...)
	activity := &recordingActivity{}
	notify := &recordingNotifier{}
	svc := NewAuthService(repo, activity, notify, NewValidator(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "dentvid-api",
		AppBaseURL:        "http://localhost:3000",
	})
	return authFixture{svc: svc, repo: repo, activity: activity, notifier: notify}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleAdmin))

	res, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "USER@example.com", Password: "password123", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.Contains(t, f.repo.lastLogin, int64(1))
	assert.Equal(t, []string{models.ActionUserLogin}, f.activity.actions())

	claims, err := f.svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "dentvid-api", claims.Issuer)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	inactive := testUser(t, 2, models.RoleJuniorDentist)
	inactive.Email = "inactive@example.com"
	inactive.Active = false
	f := newAuthFixture(testUser(t, 1, models.RoleAdmin), inactive)

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong-password"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
	assert.Equal(t, "Invalid credentials", appErrors.FromError(err).Message)

	_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "inactive@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))

	_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceLoginLockout(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleAdmin))
	f.svc.SetLoginGuard(ratelimit.NewGuard(ratelimit.NewMemoryStore(16), ratelimit.FailurePolicy{
		Name: "login_failures", FreeRetries: 3, Window: 15 * time.Minute,
	}))
	ctx := context.Background()
	bad := models.LoginRequest{Email: "user@example.com", Password: "wrong-password", IP: "10.0.0.1"}

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, bad)
		require.True(t, errors.Is(err, appErrors.ErrInvalidCredentials), "attempt %d", i+1)
	}

	_, err := f.svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "password123", IP: "10.0.0.1"})
	require.True(t, errors.Is(err, appErrors.ErrRateLimited))
	var locked *LockoutError
	require.True(t, errors.As(err, &locked))
	assert.Greater(t, locked.RetryAfter, 60)
	assert.Equal(t, 429, appErrors.FromError(err).Status)

	// The lockout is per IP and email.
	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "password123", IP: "10.0.0.2"})
	require.NoError(t, err)
}

func TestAuthServiceLoginSuccessClearsFailures(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleAdmin))
	f.svc.SetLoginGuard(ratelimit.NewGuard(ratelimit.NewMemoryStore(16), ratelimit.FailurePolicy{
		Name: "login_failures", FreeRetries: 1, Window: 15 * time.Minute,
	}))
	ctx := context.Background()
	bad := models.LoginRequest{Email: "user@example.com", Password: "wrong-password", IP: "10.0.0.1"}
	good := models.LoginRequest{Email: "User@Example.com", Password: "password123", IP: "10.0.0.1"}

	for round := 0; round < 3; round++ {
		_, err := f.svc.Login(ctx, bad)
		require.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
		_, err = f.svc.Login(ctx, good)
		require.NoError(t, err, "round %d", round)
	}

	// Validation failures do not count.
	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, models.LoginRequest{Email: "user@example.com", IP: "10.0.0.1"})
		require.True(t, errors.Is(err, appErrors.ErrValidation))
	}
	_, err := f.svc.Login(ctx, good)
	require.NoError(t, err)
}

func TestAuthServiceAuthenticateUsesLiveRow(t *testing.T) {
	user := testUser(t, 1, models.RoleAdmin)
	f := newAuthFixture(user)

	res, err := f.svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.NoError(t, err)

	f.repo.users[1].Role = models.RoleJuniorDentist
	principal, err := f.svc.Authenticate(context.Background(), res.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleJuniorDentist, principal.Role)

	f.repo.users[1].Active = false
	_, err = f.svc.Authenticate(context.Background(), res.Token)
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)

	delete(f.repo.users, 1)
	_, err = f.svc.Authenticate(context.Background(), res.Token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceAuthenticateRejectsBadTokens(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleAdmin))

	_, err := f.svc.Authenticate(context.Background(), "")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = f.svc.Authenticate(context.Background(), "not-a-jwt")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dentvid-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = f.svc.Authenticate(context.Background(), signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dentvid-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err = forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = f.svc.Authenticate(context.Background(), signed)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRegisterAndVerify(t *testing.T) {
	f := newAuthFixture()

	info, err := f.svc.Register(context.Background(), models.RegisterRequest{
		Email:     "new@example.com",
		Password:  "password123",
		FirstName: "Rina",
		LastName:  "Putri",
		Role:      models.RoleSeniorDentist,
	}, models.RequestMeta{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.False(t, info.Verified)

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, mailer.TemplateVerifyEmail, call.Template)
	assert.Equal(t, "new@example.com", call.To)

	stored := f.repo.users[info.ID]
	require.NotNil(t, stored.VerificationToken)
	assert.Contains(t, call.Data.Link, *stored.VerificationToken)

	require.NoError(t, f.svc.VerifyEmail(context.Background(), *stored.VerificationToken, models.RequestMeta{}))
	assert.True(t, f.repo.users[info.ID].Verified)
	assert.Equal(t, []string{models.ActionUserRegistered, models.ActionEmailVerified}, f.activity.actions())

	require.Len(t, f.notifier.calls, 2)
	welcome := f.notifier.calls[1]
	assert.Equal(t, mailer.TemplateWelcome, welcome.Template)
	assert.Equal(t, "new@example.com", welcome.To)
	assert.Equal(t, "Rina Putri", welcome.Data.Name)
	assert.Equal(t, "http://localhost:3000/login", welcome.Data.Link)

	err = f.svc.VerifyEmail(context.Background(), "bogus", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Len(t, f.notifier.calls, 2)
}

func TestAuthServiceRegisterRejectsAdminAndDuplicates(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleAdmin))

	_, err := f.svc.Register(context.Background(), models.RegisterRequest{
		Email: "boss@example.com", Password: "password123", FirstName: "A", LastName: "B", Role: models.RoleAdmin,
	}, models.RequestMeta{})
	require.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, appErrors.FromError(err).Message, "role")

	_, err = f.svc.Register(context.Background(), models.RegisterRequest{
		Email: "user@example.com", Password: "password123", FirstName: "A", LastName: "B", Role: models.RoleJuniorDentist,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	f.repo.createErr = repository.ErrDuplicate
	_, err = f.svc.Register(context.Background(), models.RegisterRequest{
		Email: "race@example.com", Password: "password123", FirstName: "A", LastName: "B", Role: models.RoleJuniorDentist,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.Register(context.Background(), models.RegisterRequest{
		Email: "short@example.com", Password: "short", FirstName: "A", LastName: "B", Role: models.RoleJuniorDentist,
	}, models.RequestMeta{})
	require.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, "password must be at least 8 characters", appErrors.FromError(err).Message)
}

func TestAuthServiceForgotAndResetPassword(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleJuniorDentist))

	require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nobody@example.com"}))
	assert.Empty(t, f.notifier.calls)

	require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "user@example.com"}))
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, mailer.TemplatePasswordReset, f.notifier.calls[0].Template)

	token := *f.repo.users[1].ResetToken
	require.NoError(t, f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, Password: "newpassword1"}, models.RequestMeta{}))

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "newpassword1"})
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, Password: "again12345"}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceResetTokenExpires(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleJuniorDentist))
	require.NoError(t, f.svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "user@example.com"}))
	token := *f.repo.users[1].ResetToken

	f.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	err := f.svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, Password: "newpassword1"}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceChangePasswordAndProfile(t *testing.T) {
	f := newAuthFixture(testUser(t, 1, models.RoleSeniorDentist))

	err := f.svc.ChangePassword(context.Background(), 1, models.ChangePasswordRequest{CurrentPassword: "bad", NewPassword: "newpassword1"}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	require.NoError(t, f.svc.ChangePassword(context.Background(), 1, models.ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword1"}, models.RequestMeta{}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.users[1].PasswordHash), []byte("newpassword1")))

	_, err = f.svc.UpdateProfile(context.Background(), 1, models.UpdateProfileRequest{}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	name := "Sari"
	user, err := f.svc.UpdateProfile(context.Background(), 1, models.UpdateProfileRequest{FirstName: &name}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Sari", user.FirstName)
	assert.Equal(t, "Lestari", user.LastName)
	assert.Equal(t, []string{models.ActionPasswordChanged, models.ActionProfileUpdated}, f.activity.actions())
}
