package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/repository"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
	"github.com/noah-isme/dentvid-api/pkg/ratelimit"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
	SetResetToken(ctx context.Context, id int64, token string, expires time.Time) error
	MarkVerified(ctx context.Context, id int64) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	AppBaseURL        string
	ResetTokenTTL     time.Duration
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	activity  activityRecorder
	notifier  notifier
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	guard     *ratelimit.Guard
	now       func() time.Time
}

// LockoutError is returned by Login while repeated failures keep an IP and
// email pair locked out.
type LockoutError struct {
	// RetryAfter is the number of whole seconds until the lockout ends.
	RetryAfter int
	err        *appErrors.Error
}

func (e *LockoutError) Error() string { return e.err.Error() }

func (e *LockoutError) Unwrap() error { return e.err }

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, activity activityRecorder, notify notifier, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = time.Hour
	}
	return &AuthService{
		repo:      repo,
		activity:  activity,
		notifier:  notify,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an unverified reviewer account and emails a verification link.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, meta models.RequestMeta) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	token, err := randomToken(32)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create verification token")
	}

	user := &models.User{
		Email:             req.Email,
		PasswordHash:      string(hash),
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Role:              req.Role,
		Active:            true,
		VerificationToken: &token,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(user.ID),
		Action:       models.ActionUserRegistered,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(user.ID),
		Details:      fmt.Sprintf("User registered: %s", user.Email),
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})

	s.notifier.Notify(ctx, user.Email, mailer.TemplateVerifyEmail, mailer.Data{
		Name: user.FullName(),
		Link: fmt.Sprintf("%s/verify-email?token=%s", s.config.AppBaseURL, token),
	})

	info := models.NewUserInfo(user)
	return &info, nil
}

// SetLoginGuard enables failed-login lockout. Only INVALID_CREDENTIALS
// outcomes count as failures and a successful login clears them.
func (s *AuthService) SetLoginGuard(guard *ratelimit.Guard) {
	s.guard = guard
}

// Login authenticates a user and returns an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	key := loginGuardKey(req.IP, req.Email)
	decision, err := s.guard.Check(ctx, key)
	if err != nil {
		s.logger.Warn("login guard unavailable, allowing attempt", zap.Error(err))
	} else if !decision.Allowed {
		s.logger.Warn("login locked out", zap.String("ip", req.IP), zap.String("email", req.Email))
		return nil, &LockoutError{
			RetryAfter: decision.RetryAfter(s.now()),
			err:        appErrors.Clone(appErrors.ErrRateLimited, "too many failed login attempts, please try again later"),
		}
	}

	user, err := s.checkCredentials(ctx, req)
	if err != nil {
		if errors.Is(err, appErrors.ErrInvalidCredentials) {
			if _, ferr := s.guard.Fail(ctx, key); ferr != nil {
				s.logger.Warn("failed to record login failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is deactivated")
	}

	token, expiresAt, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if err := s.guard.Succeed(ctx, key); err != nil {
		s.logger.Warn("failed to clear login failures", zap.Error(err))
	}

	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(user.ID),
		Action:       models.ActionUserLogin,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(user.ID),
		Details:      "User logged in",
		IPAddress:    req.IP,
		UserAgent:    req.UserAgent,
	})

	return &models.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.config.AccessTokenExpiry.Seconds()),
		ExpiresAt: expiresAt,
		User:      models.NewUserInfo(user),
	}, nil
}

func (s *AuthService) checkCredentials(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid credentials")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid credentials")
	}
	return user, nil
}

func loginGuardKey(ip, email string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

// Logout records the logout. Tokens are stateless and expire on their own.
func (s *AuthService) Logout(ctx context.Context, principal *models.Principal, meta models.RequestMeta) {
	if principal == nil {
		return
	}
	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(principal.UserID),
		Action:       models.ActionUserLogout,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(principal.UserID),
		Details:      "User logged out",
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, meta models.RequestMeta) error {
	if token == "" {
		return appErrors.Clone(appErrors.ErrValidation, "verification token is required")
	}
	user, err := s.repo.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "invalid or expired verification token")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify email")
	}
	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(user.ID),
		Action:       models.ActionEmailVerified,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(user.ID),
		Details:      "Email verified",
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})

	s.notifier.Notify(ctx, user.Email, mailer.TemplateWelcome, mailer.Data{
		Name: user.FullName(),
		Link: s.config.AppBaseURL + "/login",
	})
	return nil
}

// ForgotPassword stores a reset token and emails it. Unknown or inactive
// accounts succeed silently so the endpoint cannot be used to probe emails.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err)
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		return nil
	}

	token, err := randomToken(32)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reset token")
	}
	if err := s.repo.SetResetToken(ctx, user.ID, token, s.now().Add(s.config.ResetTokenTTL)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reset token")
	}

	s.notifier.Notify(ctx, user.Email, mailer.TemplatePasswordReset, mailer.Data{
		Name: user.FullName(),
		Link: fmt.Sprintf("%s/reset-password?token=%s", s.config.AppBaseURL, token),
	})
	return nil
}

// ResetPassword completes the reset flow with an unexpired token.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest, meta models.RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err)
	}

	user, err := s.repo.FindByResetToken(ctx, req.Token, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "invalid or expired reset token")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.setPassword(ctx, user.ID, req.Password); err != nil {
		return err
	}

	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(user.ID),
		Action:       models.ActionPasswordReset,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(user.ID),
		Details:      "Password reset via email token",
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})
	return nil
}

// Profile returns the caller's account.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateProfile edits the caller's names.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req models.UpdateProfileRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if req.FirstName == nil && req.LastName == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "No valid fields to update")
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(userID),
		Action:       models.ActionProfileUpdated,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(userID),
		Details:      "Profile updated",
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})
	return user, nil
}

// ChangePassword changes the password for the given user ID.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest, meta models.RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err)
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "current password is incorrect")
	}

	if err := s.setPassword(ctx, userID, req.NewPassword); err != nil {
		return err
	}

	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(userID),
		Action:       models.ActionPasswordChanged,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(userID),
		Details:      "Password changed",
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})
	return nil
}

// Authenticate resolves a bearer token to the live principal. The role and
// status come from the current user row, not from the token.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account is deactivated")
	}
	return models.NewPrincipal(user), nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	if tokenString == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "access token required")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash), s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	return nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
