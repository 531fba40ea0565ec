package models

import "time"

// VideoView is one append-only view event.
type VideoView struct {
	ID        int64     `db:"id" json:"id"`
	VideoID   int64     `db:"video_id" json:"videoId"`
	UserID    *int64    `db:"user_id" json:"userId,omitempty"`
	IPAddress string    `db:"ip_address" json:"ipAddress"`
	UserAgent string    `db:"user_agent" json:"userAgent"`
	ViewedAt  time.Time `db:"viewed_at" json:"viewedAt"`
}

// RecentView is a view joined with the viewer's name.
type RecentView struct {
	ViewedAt   time.Time `db:"viewed_at" json:"viewedAt"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	ViewerName string    `db:"viewer_name" json:"viewerName"`
}

// DailyCount is a per-date aggregate.
type DailyCount struct {
	Date  string `db:"date" json:"date"`
	Count int64  `db:"count" json:"count"`
}

// VideoAnalytics aggregates the view history of a single video.
type VideoAnalytics struct {
	VideoID       int64        `json:"videoId"`
	Title         string       `json:"title"`
	TotalViews    int64        `json:"totalViews"`
	UniqueViewers int64        `json:"uniqueViewers"`
	RecentViews   []RecentView `json:"recentViews"`
	ViewsByDate   []DailyCount `json:"viewsByDate"`
}
