package models

import (
	"strings"
	"time"
)

// UserRole represents the closed set of platform roles.
type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleSeniorDentist UserRole = "senior_dentist"
	RoleJuniorDentist UserRole = "junior_dentist"
)

// ViewerRoles lists every role allowed to watch content.
var ViewerRoles = []UserRole{RoleAdmin, RoleSeniorDentist, RoleJuniorDentist}

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSeniorDentist, RoleJuniorDentist:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID                int64      `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	FirstName         string     `db:"first_name" json:"firstName"`
	LastName          string     `db:"last_name" json:"lastName"`
	Role              UserRole   `db:"role" json:"role"`
	Verified          bool       `db:"is_verified" json:"isVerified"`
	Active            bool       `db:"is_active" json:"isActive"`
	VerificationToken *string    `db:"verification_token" json:"-"`
	ResetToken        *string    `db:"reset_token" json:"-"`
	ResetTokenExpires *time.Time `db:"reset_token_expires" json:"-"`
	LastLogin         *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives the page count from the total.
func NewPagination(page, size, total int) *Pagination {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: pages}
}
