package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/repository"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email,max=255"`
	Password  string          `json:"password" validate:"required,min=8,max=128"`
	FirstName string          `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string          `json:"lastName" validate:"required,min=1,max=100"`
	Role      models.UserRole `json:"role" validate:"required,oneof=admin senior_dentist junior_dentist"`
	Verified  bool            `json:"isVerified"`
}

// UpdateUserRequest payload for updating users. Nil fields stay unchanged.
type UpdateUserRequest struct {
	FirstName *string          `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string          `json:"lastName" validate:"omitempty,min=1,max=100"`
	Role      *models.UserRole `json:"role" validate:"omitempty,oneof=admin senior_dentist junior_dentist"`
	Active    *bool            `json:"isActive"`
	Verified  *bool            `json:"isVerified"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	activity  activityRecorder
	notifier  notifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, activity activityRecorder, notify notifier, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, activity: activity, notifier: notify, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize, 20, 100)
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "role must be one of: admin, senior_dentist, junior_dentist")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions an account on behalf of an administrator.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID int64, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		Verified:     req.Verified,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.record(ctx, actorID, models.ActionUserCreated, user.ID, fmt.Sprintf("User created: %s (%s)", user.Email, user.Role), meta)
	return user, nil
}

// Update edits role, status and names of a user.
func (s *UserService) Update(ctx context.Context, id int64, req UpdateUserRequest, actorID int64, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if req.FirstName == nil && req.LastName == nil && req.Role == nil && req.Active == nil && req.Verified == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "No valid fields to update")
	}
	if id == actorID && ((req.Active != nil && !*req.Active) || (req.Role != nil && *req.Role != models.RoleAdmin)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "administrators cannot demote or deactivate themselves")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.Verified != nil {
		user.Verified = *req.Verified
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.record(ctx, actorID, models.ActionUserUpdated, id, fmt.Sprintf("User updated: %s", user.Email), meta)
	return user, nil
}

// Deactivate soft deletes a user. Administrators cannot deactivate themselves.
func (s *UserService) Deactivate(ctx context.Context, id, actorID int64, meta models.RequestMeta) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	s.record(ctx, actorID, models.ActionUserDeactivated, id, fmt.Sprintf("User deactivated: %d", id), meta)
	return nil
}

// ResetPassword assigns a random temporary password and emails it to the user.
func (s *UserService) ResetPassword(ctx context.Context, id, actorID int64, meta models.RequestMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	temp, err := randomToken(6)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	s.notifier.Notify(ctx, user.Email, mailer.TemplateAdminPasswordReset, mailer.Data{Name: user.FullName(), TempPassword: temp})
	s.record(ctx, actorID, models.ActionAdminPasswordSet, id, fmt.Sprintf("Password reset by administrator for %s", user.Email), meta)
	return nil
}

func (s *UserService) record(ctx context.Context, actorID int64, action string, targetID int64, details string, meta models.RequestMeta) {
	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(actorID),
		Action:       action,
		ResourceType: models.ResourceUser,
		ResourceID:   int64Ptr(targetID),
		Details:      details,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})
}
