package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
	"github.com/noah-isme/dentvid-api/pkg/storage"
)

type videoRepository interface {
	Create(ctx context.Context, video *models.Video) error
	GetActive(ctx context.Context, id int64) (*models.VideoListItem, error)
	GetByID(ctx context.Context, id int64) (*models.Video, error)
	List(ctx context.Context, filter models.VideoFilter) ([]models.VideoListItem, int, error)
	ActiveCategories(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id int64, patch models.VideoPatch) error
	SoftDelete(ctx context.Context, id int64) error
}

type viewRepository interface {
	Record(ctx context.Context, view *models.VideoView) error
	Analytics(ctx context.Context, videoID int64, recentLimit, dayLimit int) (*models.VideoAnalytics, error)
}

type adminDirectory interface {
	ListActiveAdmins(ctx context.Context, excludeID int64) ([]models.User, error)
}

type uploadStorage interface {
	SaveTemp(ext string, r io.Reader, limit int64) (string, int64, error)
	Open(path string) (*os.File, fs.FileInfo, error)
	Contains(path string) bool
}

type videoProcessor interface {
	MaxFileSize() int64
	Validate(file UploadFile) error
	Process(ctx context.Context, file UploadFile, ownerID int64) (*models.ProcessedVideo, error)
	Delete(videoPath string, thumbnailPath *string) error
}

// UploadVideoRequest carries the multipart form fields of an upload.
type UploadVideoRequest struct {
	Title       string `json:"title" form:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" form:"description" validate:"max=1000"`
	Category    string `json:"category" form:"category" validate:"max=100"`
	Tags        string `json:"tags" form:"tags" validate:"max=500"`
}

// UpdateVideoRequest edits video metadata. Nil fields stay unchanged.
type UpdateVideoRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Tags        *string `json:"tags" validate:"omitempty,max=500"`
}

// VideoServiceConfig holds presentation settings.
type VideoServiceConfig struct {
	APIPrefix string
}

// VideoStream is an opened, active video ready to be served. Callers close File.
type VideoStream struct {
	Video *models.VideoListItem
	File  *os.File
	Size  int64
}

// VideoService orchestrates uploads, the catalogue and view tracking.
type VideoService struct {
	videos    videoRepository
	views     viewRepository
	admins    adminDirectory
	storage   uploadStorage
	processor videoProcessor
	signer    *storage.SignedURLSigner
	activity  activityRecorder
	notifier  notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       VideoServiceConfig
	dashboard dashboardInvalidator
}

// dashboardInvalidator is told when the catalogue changes so cached admin
// aggregates are recomputed on the next read.
type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// SetDashboard registers the admin dashboard cache to invalidate on uploads
// and deletions.
func (s *VideoService) SetDashboard(d dashboardInvalidator) {
	s.dashboard = d
}

// NewVideoService wires a VideoService. signer may be nil, in which case
// responses carry no thumbnail URL.
func NewVideoService(
	videos videoRepository,
	views viewRepository,
	admins adminDirectory,
	store uploadStorage,
	processor videoProcessor,
	signer *storage.SignedURLSigner,
	activity activityRecorder,
	notify notifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg VideoServiceConfig,
) *VideoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	return &VideoService{
		videos:    videos,
		views:     views,
		admins:    admins,
		storage:   store,
		processor: processor,
		signer:    signer,
		activity:  activity,
		notifier:  notify,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Upload validates, stores, processes and registers a new video. Every
// failure before the row is persisted leaves no file behind.
func (s *VideoService) Upload(ctx context.Context, req UploadVideoRequest, file UploadFile, body io.Reader, uploader *models.Principal, meta models.RequestMeta) (*models.VideoResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if err := s.processor.Validate(file); err != nil {
		s.metrics.ObserveUpload(file.Size, err)
		return nil, err
	}

	tempPath, written, err := s.storage.SaveTemp(filepath.Ext(file.OriginalName), body, s.processor.MaxFileSize())
	if err != nil {
		s.metrics.ObserveUpload(file.Size, err)
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file size exceeds the maximum of %d bytes", s.processor.MaxFileSize()))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	file.TempPath = tempPath
	file.Size = written

	processed, err := s.processor.Process(ctx, file, uploader.UserID)
	if err != nil {
		s.metrics.ObserveUpload(written, err)
		return nil, err
	}

	video := &models.Video{
		Title:         req.Title,
		Description:   optionalString(req.Description),
		Filename:      processed.Filename,
		OriginalName:  processed.OriginalName,
		FilePath:      processed.FilePath,
		ThumbnailPath: processed.ThumbnailPath,
		FileSize:      processed.FileSize,
		Duration:      processed.Duration,
		Category:      optionalString(req.Category),
		Tags:          optionalString(req.Tags),
		UploadedBy:    uploader.UserID,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		_ = s.processor.Delete(processed.FilePath, processed.ThumbnailPath)
		s.metrics.ObserveUpload(written, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save video")
	}
	s.metrics.ObserveUpload(processed.FileSize, nil)

	s.logger.Info("video uploaded",
		zap.Int64("video_id", video.ID),
		zap.Int64("uploaded_by", uploader.UserID),
		zap.Int64("file_size", video.FileSize),
		zap.Int("duration", video.Duration),
	)
	s.record(ctx, uploader.UserID, models.ActionVideoUploaded, video.ID, "Video uploaded: "+video.Title, meta)
	s.notifyAdmins(ctx, video, uploader)
	s.invalidateDashboard(ctx)

	item := &models.VideoListItem{Video: *video, UploaderFirstName: uploader.FirstName, UploaderLastName: uploader.LastName}
	return s.toResponse(item), nil
}

// List returns a page of active videos and the categories in use.
func (s *VideoService) List(ctx context.Context, filter models.VideoFilter) (*models.VideoList, *models.Pagination, error) {
	filter.IncludeDeleted = false
	filter.Active = nil
	items, pagination, err := s.list(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	categories, err := s.videos.ActiveCategories(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	items.Categories = categories
	return items, pagination, nil
}

// AdminList returns videos regardless of status unless filter.Active is set.
func (s *VideoService) AdminList(ctx context.Context, filter models.VideoFilter) (*models.VideoList, *models.Pagination, error) {
	filter.IncludeDeleted = true
	return s.list(ctx, filter)
}

func (s *VideoService) list(ctx context.Context, filter models.VideoFilter) (*models.VideoList, *models.Pagination, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize, 12, 100)
	items, total, err := s.videos.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list videos")
	}
	out := &models.VideoList{Videos: make([]models.VideoResponse, 0, len(items))}
	for i := range items {
		out.Videos = append(out.Videos, *s.toResponse(&items[i]))
	}
	return out, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an active video and records one view for the caller.
func (s *VideoService) Get(ctx context.Context, id int64, viewer *models.Principal, meta models.RequestMeta) (*models.VideoResponse, error) {
	item, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	s.RecordView(ctx, id, viewer, meta)
	return s.toResponse(item), nil
}

// OpenStream resolves an active video to its open file. An active row whose
// file is gone is reported as a storage inconsistency.
func (s *VideoService) OpenStream(ctx context.Context, id int64) (*VideoStream, error) {
	item, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.storage.Contains(item.FilePath) {
		s.logger.Error("video path outside upload root", zap.Int64("video_id", id), zap.String("path", item.FilePath))
		return nil, appErrors.Clone(appErrors.ErrStorageInconsistency, "video file is unavailable")
	}
	f, info, err := s.storage.Open(item.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("video file missing for active row", zap.Int64("video_id", id), zap.String("path", item.FilePath))
			return nil, appErrors.WithCause(appErrors.ErrStorageInconsistency, err)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open video")
	}
	return &VideoStream{Video: item, File: f, Size: info.Size()}, nil
}

// RecordView appends a view event. Failures are logged only.
func (s *VideoService) RecordView(ctx context.Context, videoID int64, viewer *models.Principal, meta models.RequestMeta) {
	view := &models.VideoView{VideoID: videoID, IPAddress: meta.IP, UserAgent: meta.UserAgent}
	if viewer != nil {
		view.UserID = int64Ptr(viewer.UserID)
	}
	if err := s.views.Record(ctx, view); err != nil {
		s.logger.Warn("failed to record video view", zap.Int64("video_id", videoID), zap.Error(err))
	}
}

// Update applies a metadata patch to an active video.
func (s *VideoService) Update(ctx context.Context, id int64, req UpdateVideoRequest, actorID int64, meta models.RequestMeta) (*models.VideoResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	patch := models.VideoPatch{Title: req.Title, Description: req.Description, Category: req.Category, Tags: req.Tags}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "No valid fields to update")
	}
	if err := s.videos.Update(ctx, id, patch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update video")
	}

	item, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, models.ActionVideoUpdated, id, "Video updated: "+item.Title, meta)
	return s.toResponse(item), nil
}

// Delete soft deletes a video. Stored files are kept for the audit trail.
func (s *VideoService) Delete(ctx context.Context, id int64, actorID int64, meta models.RequestMeta) error {
	item, err := s.active(ctx, id)
	if err != nil {
		return err
	}
	if err := s.videos.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Video not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete video")
	}
	s.record(ctx, actorID, models.ActionVideoDeleted, id, "Video deleted: "+item.Title, meta)
	s.invalidateDashboard(ctx)
	return nil
}

func (s *VideoService) invalidateDashboard(ctx context.Context) {
	if s.dashboard != nil {
		s.dashboard.Invalidate(ctx)
	}
}

// Analytics aggregates the view history of a video, including inactive ones.
func (s *VideoService) Analytics(ctx context.Context, id int64) (*models.VideoAnalytics, error) {
	video, err := s.videos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	analytics, err := s.views.Analytics(ctx, id, 50, 30)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analytics")
	}
	analytics.Title = video.Title
	return analytics, nil
}

// OpenThumbnail validates a signed thumbnail token and opens the image.
func (s *VideoService) OpenThumbnail(ctx context.Context, id int64, token string) (*os.File, fs.FileInfo, error) {
	if s.signer == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Thumbnail not found")
	}
	tokenID, _, err := s.signer.Parse(token)
	if err != nil || tokenID != id {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired thumbnail link")
	}
	item, err := s.active(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if item.ThumbnailPath == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Thumbnail not found")
	}
	if !s.storage.Contains(*item.ThumbnailPath) {
		s.logger.Error("thumbnail path outside upload root", zap.Int64("video_id", id), zap.String("path", *item.ThumbnailPath))
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Thumbnail not found")
	}
	f, info, err := s.storage.Open(*item.ThumbnailPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "Thumbnail not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open thumbnail")
	}
	return f, info, nil
}

func (s *VideoService) active(ctx context.Context, id int64) (*models.VideoListItem, error) {
	item, err := s.videos.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Video not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load video")
	}
	return item, nil
}

func (s *VideoService) notifyAdmins(ctx context.Context, video *models.Video, uploader *models.Principal) {
	admins, err := s.admins.ListActiveAdmins(ctx, uploader.UserID)
	if err != nil {
		s.logger.Warn("failed to load administrators for upload notification", zap.Int64("video_id", video.ID), zap.Error(err))
		return
	}
	uploaderName := strings.TrimSpace(uploader.FirstName + " " + uploader.LastName)
	for _, admin := range admins {
		s.notifier.Notify(ctx, admin.Email, mailer.TemplateVideoUploaded, mailer.Data{
			Name:         admin.FullName(),
			VideoTitle:   video.Title,
			UploaderName: uploaderName,
		})
	}
}

func (s *VideoService) toResponse(item *models.VideoListItem) *models.VideoResponse {
	resp := &models.VideoResponse{
		ID:           item.ID,
		Title:        item.Title,
		Description:  item.Description,
		Category:     item.Category,
		Tags:         item.Tags,
		OriginalName: item.OriginalName,
		Duration:     item.Duration,
		FileSize:     item.FileSize,
		UploadedBy:   item.UploadedBy,
		UploaderName: strings.TrimSpace(item.UploaderFirstName + " " + item.UploaderLastName),
		ViewCount:    item.ViewCount,
		Active:       item.Active,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
	if item.ThumbnailPath != nil && s.signer != nil {
		token, _, err := s.signer.Generate(item.ID)
		if err != nil {
			s.logger.Warn("failed to sign thumbnail url", zap.Int64("video_id", item.ID), zap.Error(err))
		} else {
			url := fmt.Sprintf("%s/videos/%d/thumbnail?token=%s", s.cfg.APIPrefix, item.ID, token)
			resp.ThumbnailURL = &url
		}
	}
	return resp
}

func (s *VideoService) record(ctx context.Context, actorID int64, action string, videoID int64, details string, meta models.RequestMeta) {
	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(actorID),
		Action:       action,
		ResourceType: models.ResourceVideo,
		ResourceID:   int64Ptr(videoID),
		Details:      details,
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
