package models

import (
	"time"

	"github.com/noah-isme/dentvid-api/pkg/media"
)

// Video represents one processed, stored video.
type Video struct {
	ID            int64     `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Description   *string   `db:"description" json:"description,omitempty"`
	Filename      string    `db:"filename" json:"-"`
	OriginalName  string    `db:"original_name" json:"originalName"`
	FilePath      string    `db:"file_path" json:"-"`
	ThumbnailPath *string   `db:"thumbnail_path" json:"-"`
	FileSize      int64     `db:"file_size" json:"fileSize"`
	Duration      int       `db:"duration" json:"duration"`
	Category      *string   `db:"category" json:"category,omitempty"`
	Tags          *string   `db:"tags" json:"tags,omitempty"`
	UploadedBy    int64     `db:"uploaded_by" json:"uploadedById"`
	Active        bool      `db:"is_active" json:"isActive"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// VideoListItem is a video joined with its uploader and view count.
type VideoListItem struct {
	Video
	UploaderFirstName string `db:"first_name" json:"-"`
	UploaderLastName  string `db:"last_name" json:"-"`
	ViewCount         int64  `db:"view_count" json:"viewCount"`
}

// VideoFilter narrows listing queries.
type VideoFilter struct {
	Category       string
	Search         string
	IncludeDeleted bool
	Active         *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// VideoPatch holds optional metadata edits; nil fields are left untouched.
type VideoPatch struct {
	Title       *string
	Description *string
	Category    *string
	Tags        *string
}

// Empty reports whether the patch changes nothing.
func (p VideoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Tags == nil
}

// ProcessedVideo is the result of turning an upload into a stored artifact.
type ProcessedVideo struct {
	Filename      string
	OriginalName  string
	FilePath      string
	ThumbnailPath *string
	FileSize      int64
	Duration      int
	Media         media.Info
}

// VideoResponse is the public projection of a video. Storage paths never leave the server.
type VideoResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	Category     *string   `json:"category,omitempty"`
	Tags         *string   `json:"tags,omitempty"`
	OriginalName string    `json:"originalName"`
	Duration     int       `json:"duration"`
	FileSize     int64     `json:"fileSize"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	UploadedBy   int64     `json:"uploadedBy"`
	UploaderName string    `json:"uploaderName,omitempty"`
	ViewCount    int64     `json:"viewCount"`
	Active       bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VideoList is a page of videos plus the categories available for filtering.
type VideoList struct {
	Videos     []VideoResponse `json:"videos"`
	Categories []string        `json:"categories,omitempty"`
}
