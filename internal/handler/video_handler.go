package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/service"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/logger"
	"github.com/noah-isme/dentvid-api/pkg/response"
)

// multipartOverhead is the allowance for form fields and boundaries on top
// of the largest accepted video.
const multipartOverhead = 1 << 20

type videoService interface {
	Upload(ctx context.Context, req service.UploadVideoRequest, file service.UploadFile, body io.Reader, uploader *models.Principal, meta models.RequestMeta) (*models.VideoResponse, error)
	List(ctx context.Context, filter models.VideoFilter) (*models.VideoList, *models.Pagination, error)
	Get(ctx context.Context, id int64, viewer *models.Principal, meta models.RequestMeta) (*models.VideoResponse, error)
	OpenStream(ctx context.Context, id int64) (*service.VideoStream, error)
	RecordView(ctx context.Context, videoID int64, viewer *models.Principal, meta models.RequestMeta)
	Update(ctx context.Context, id int64, req service.UpdateVideoRequest, actorID int64, meta models.RequestMeta) (*models.VideoResponse, error)
	Delete(ctx context.Context, id int64, actorID int64, meta models.RequestMeta) error
	Analytics(ctx context.Context, id int64) (*models.VideoAnalytics, error)
	OpenThumbnail(ctx context.Context, id int64, token string) (*os.File, fs.FileInfo, error)
}

type analyticsExporter interface {
	ExportAnalytics(ctx context.Context, id int64, format string, actorID int64, meta models.RequestMeta) (*service.ExportResult, error)
}

type categoryLister interface {
	List(ctx context.Context) ([]models.Category, error)
}

// VideoHandler exposes the video catalogue, upload and streaming endpoints.
type VideoHandler struct {
	videos      videoService
	exporter    analyticsExporter
	categories  categoryLister
	metrics     *service.MetricsService
	logger      *zap.Logger
	maxFileSize int64
}

// NewVideoHandler constructs a VideoHandler.
func NewVideoHandler(videos videoService, exporter analyticsExporter, categories categoryLister, metrics *service.MetricsService, log *zap.Logger, maxFileSize int64) *VideoHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VideoHandler{
		videos:      videos,
		exporter:    exporter,
		categories:  categories,
		metrics:     metrics,
		logger:      log,
		maxFileSize: maxFileSize,
	}
}

// Upload godoc
// @Summary Upload a video
// @Description Uploads, transcodes and registers a new video. Administrators only.
// @Tags Videos
// @Accept multipart/form-data
// @Produce json
// @Param video formData file true "Video file"
// @Param title formData string true "Title (3-200 characters)"
// @Param description formData string false "Description"
// @Param category formData string false "Category"
// @Param tags formData string false "Comma separated tags"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /videos/upload [post]
func (h *VideoHandler) Upload(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)
	}

	var req service.UploadVideoRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, h.bodyError(err, "invalid upload form"))
		return
	}
	header, err := c.FormFile("video")
	if err != nil {
		response.Error(c, h.bodyError(err, "video file is required"))
		return
	}
	src, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "video file could not be read"))
		return
	}
	defer src.Close()

	file := service.UploadFile{
		OriginalName: header.Filename,
		MIMEType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
	}
	video, err := h.videos.Upload(c.Request.Context(), req, file, src, principal, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, video)
}

// List godoc
// @Summary List videos
// @Tags Videos
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size (max 100)"
// @Param category query string false "Exact category"
// @Param search query string false "Search title, description and tags"
// @Param sortBy query string false "created_at, title, duration, file_size or views"
// @Param sortOrder query string false "ASC or DESC"
// @Success 200 {object} response.Envelope
// @Router /videos [get]
func (h *VideoHandler) List(c *gin.Context) {
	list, pagination, err := h.videos.List(c.Request.Context(), videoFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pagination)
}

// Get godoc
// @Summary Video detail
// @Description Returns one active video and records a view.
// @Tags Videos
// @Produce json
// @Param id path int true "Video ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /videos/{id} [get]
func (h *VideoHandler) Get(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	video, err := h.videos.Get(c.Request.Context(), id, principal, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, video, nil)
}

// Stream godoc
// @Summary Stream a video
// @Description Serves the MP4, honouring single byte ranges.
// @Tags Videos
// @Produce video/mp4
// @Param id path int true "Video ID"
// @Param Range header string false "bytes=start-end"
// @Success 200 {file} binary
// @Success 206 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 416 {object} response.Envelope
// @Router /videos/{id}/stream [get]
func (h *VideoHandler) Stream(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	stream, err := h.videos.OpenStream(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer stream.File.Close()

	rng, err := parseRange(c.GetHeader("Range"), stream.Size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", stream.Size))
		response.Error(c, appErrors.ErrRangeNotSatisfied)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "video/mp4")
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Content-Type-Options", "nosniff")

	status := http.StatusOK
	length := stream.Size
	if rng.partial {
		status = http.StatusPartialContent
		length = rng.length()
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, stream.Size))
	}
	header.Set("Content-Length", strconv.FormatInt(length, 10))

	h.videos.RecordView(c.Request.Context(), id, principal, requestMeta(c))
	c.Status(status)

	written, err := io.Copy(c.Writer, io.NewSectionReader(stream.File, rng.start, length))
	h.metrics.ObserveStream(rng.partial, written)
	if err != nil {
		logger.WithRequest(h.logger, c).Debug("stream interrupted",
			zap.Int64("video_id", id),
			zap.Int64("written", written),
			zap.Error(err),
		)
	}
}

// Thumbnail godoc
// @Summary Video thumbnail
// @Description Serves the thumbnail JPEG behind a signed, expiring token.
// @Tags Videos
// @Produce image/jpeg
// @Param id path int true "Video ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /videos/{id}/thumbnail [get]
func (h *VideoHandler) Thumbnail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	file, info, err := h.videos.OpenThumbnail(c.Request.Context(), id, c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Type", "image/jpeg")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}

// Update godoc
// @Summary Update video metadata
// @Tags Videos
// @Accept json
// @Produce json
// @Param id path int true "Video ID"
// @Param payload body service.UpdateVideoRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /videos/{id} [put]
func (h *VideoHandler) Update(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid video payload"))
		return
	}
	video, err := h.videos.Update(c.Request.Context(), id, req, principal.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, video, nil)
}

// Delete godoc
// @Summary Delete a video
// @Description Soft deletes the video; it disappears from listings and streaming.
// @Tags Videos
// @Produce json
// @Param id path int true "Video ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /videos/{id} [delete]
func (h *VideoHandler) Delete(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.videos.Delete(c.Request.Context(), id, principal.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Video deleted successfully")
}

// Analytics godoc
// @Summary Video analytics
// @Tags Videos
// @Produce json
// @Param id path int true "Video ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /videos/{id}/analytics [get]
func (h *VideoHandler) Analytics(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	analytics, err := h.videos.Analytics(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil)
}

// ExportAnalytics godoc
// @Summary Download video analytics
// @Tags Videos
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Video ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /videos/{id}/analytics/export [get]
func (h *VideoHandler) ExportAnalytics(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.exporter.ExportAnalytics(c.Request.Context(), id, c.DefaultQuery("format", "csv"), principal.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

// Categories godoc
// @Summary List video categories
// @Tags Videos
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *VideoHandler) Categories(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

func videoFilter(c *gin.Context) models.VideoFilter {
	return models.VideoFilter{
		Category:  strings.TrimSpace(c.Query("category")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 12),
		SortBy:    c.DefaultQuery("sortBy", "created_at"),
		SortOrder: c.DefaultQuery("sortOrder", "DESC"),
	}
}

// bodyError turns a form parsing failure into a validation error. An
// oversized body reports the configured file size limit.
func (h *VideoHandler) bodyError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file size exceeds the maximum of %d bytes", h.maxFileSize))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
