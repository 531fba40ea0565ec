package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

// RegisterRequest creates a reviewer account awaiting email verification.
type RegisterRequest struct {
	Email     string   `json:"email" validate:"required,email,max=255"`
	Password  string   `json:"password" validate:"required,min=8,max=128"`
	FirstName string   `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string   `json:"lastName" validate:"required,min=1,max=100"`
	Role      UserRole `json:"role" validate:"required,oneof=senior_dentist junior_dentist"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

// ForgotPasswordRequest payload for initiating reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the reset flow.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// UpdateProfileRequest edits the caller's own names.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,min=1,max=100"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Role      UserRole `json:"role"`
	Verified  bool     `json:"isVerified"`
}

// NewUserInfo projects a user into its public shape.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role, Verified: u.Verified}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID int64    `json:"userId"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Principal is the live user resolved for an authenticated request.
type Principal struct {
	UserID    int64
	Email     string
	FirstName string
	LastName  string
	Role      UserRole
	Verified  bool
}

// NewPrincipal builds a principal from the current user row.
func NewPrincipal(u *User) *Principal {
	return &Principal{UserID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role, Verified: u.Verified}
}

// HasRole reports whether the principal holds any of roles.
func (p *Principal) HasRole(roles ...UserRole) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
