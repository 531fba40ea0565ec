package models

import "time"

// Activity actions recorded in activity_logs.
const (
	ActionVideoUploaded     = "video_uploaded"
	ActionVideoUpdated      = "video_updated"
	ActionVideoDeleted      = "video_deleted"
	ActionAnalyticsExported = "analytics_exported"
	ActionUserRegistered    = "user_registered"
	ActionUserLogin         = "user_login"
	ActionUserLogout        = "user_logout"
	ActionEmailVerified     = "email_verified"
	ActionPasswordReset     = "password_reset"
	ActionPasswordChanged   = "password_changed"
	ActionProfileUpdated    = "profile_updated"
	ActionUserCreated       = "user_created"
	ActionUserUpdated       = "user_updated"
	ActionUserDeactivated   = "user_deactivated"
	ActionAdminPasswordSet  = "admin_password_reset"
)

// Resource types referenced by activity entries.
const (
	ResourceVideo = "video"
	ResourceUser  = "user"
)

// ActivityLog represents an audit trail record. A nil UserID denotes the system.
type ActivityLog struct {
	ID           int64     `db:"id" json:"id"`
	UserID       *int64    `db:"user_id" json:"userId,omitempty"`
	Action       string    `db:"action" json:"action"`
	ResourceType string    `db:"resource_type" json:"resourceType"`
	ResourceID   *int64    `db:"resource_id" json:"resourceId,omitempty"`
	Details      string    `db:"details" json:"details"`
	IPAddress    string    `db:"ip_address" json:"ipAddress"`
	UserAgent    string    `db:"user_agent" json:"userAgent"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// ActivityLogEntry is an activity row joined with the actor's identity.
type ActivityLogEntry struct {
	ActivityLog
	UserEmail *string `db:"email" json:"userEmail,omitempty"`
	UserName  *string `db:"user_name" json:"userName,omitempty"`
}

// ActivityFilter narrows activity log listings.
type ActivityFilter struct {
	Action   string
	UserID   *int64
	Page     int
	PageSize int
}

// RequestMeta identifies the client behind an action.
type RequestMeta struct {
	IP        string
	UserAgent string
}
