package models

import "time"

// DashboardTotals are the headline counters on the admin dashboard.
type DashboardTotals struct {
	Users       int64 `db:"users" json:"users"`
	ActiveUsers int64 `db:"active_users" json:"activeUsers"`
	Videos      int64 `db:"videos" json:"videos"`
	Views       int64 `db:"views" json:"views"`
	ViewsToday  int64 `db:"views_today" json:"viewsToday"`
}

// TopVideo ranks videos by view count.
type TopVideo struct {
	ID        int64  `db:"id" json:"id"`
	Title     string `db:"title" json:"title"`
	ViewCount int64  `db:"view_count" json:"viewCount"`
}

// RecentUpload summarises a freshly uploaded video.
type RecentUpload struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Uploader  string    `db:"uploader" json:"uploader"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Dashboard is the admin landing payload.
type Dashboard struct {
	Totals         DashboardTotals    `json:"totals"`
	RecentUploads  []RecentUpload     `json:"recentUploads"`
	RecentActivity []ActivityLogEntry `json:"recentActivity"`
	TopVideos      []TopVideo         `json:"topVideos"`
	GeneratedAt    time.Time          `json:"generatedAt"`
}

// RoleCount is the number of users per role.
type RoleCount struct {
	Role  UserRole `db:"role" json:"role"`
	Count int64    `db:"count" json:"count"`
}

// Statistics reports per-day activity over a trailing window.
type Statistics struct {
	Days          int          `json:"days"`
	Registrations []DailyCount `json:"registrations"`
	Uploads       []DailyCount `json:"uploads"`
	Views         []DailyCount `json:"views"`
	UsersByRole   []RoleCount  `json:"usersByRole"`
}

// SystemMetrics is a point-in-time summary of process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	Uploads                  uint64    `json:"uploads"`
	Transcodes               uint64    `json:"transcodes"`
	TranscodeFailures        uint64    `json:"transcodeFailures"`
	Streams                  uint64    `json:"streams"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
