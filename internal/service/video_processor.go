package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/media"
	"github.com/noah-isme/dentvid-api/pkg/storage"
)

// deniedExtensions are rejected before any other file check.
var deniedExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".pif": {},
	".scr": {}, ".vbs": {}, ".js": {}, ".jar": {},
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type mediaToolkit interface {
	Probe(ctx context.Context, path string) (*media.Info, error)
	Transcode(ctx context.Context, src, dst string, q media.Quality) error
	Thumbnail(ctx context.Context, src, dst string, offset float64, width, height int) error
}

type videoStorage interface {
	OwnerDir(ownerID int64) (string, error)
	Copy(src, dst string) error
	Size(path string) (int64, error)
	Delete(path string) error
}

// ProcessorConfig bounds accepted uploads and drives ffmpeg.
type ProcessorConfig struct {
	MaxFileSize       int64
	AllowedMIMEs      []string
	AllowedExtensions []string
	EnableTranscoding bool
	Quality           media.Quality
	TranscodeTimeout  time.Duration
	// ToolTimeout bounds each ffprobe and thumbnail run.
	ToolTimeout       time.Duration
	ThumbnailWidth    int
	ThumbnailHeight   int
	ThumbnailRequired bool
}

// UploadFile describes an incoming file. TempPath is empty until the bytes
// have been written to the temp area.
type UploadFile struct {
	OriginalName string
	MIMEType     string
	Size         int64
	TempPath     string
}

// VideoProcessor turns an uploaded temp file into a canonical MP4 plus thumbnail
// inside the owner's directory.
type VideoProcessor struct {
	toolkit mediaToolkit
	storage videoStorage
	config  ProcessorConfig
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewVideoProcessor constructs a processor.
func NewVideoProcessor(toolkit mediaToolkit, store videoStorage, config ProcessorConfig, metrics *MetricsService, logger *zap.Logger) *VideoProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TranscodeTimeout <= 0 {
		config.TranscodeTimeout = 10 * time.Minute
	}
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = time.Minute
	}
	if config.Quality.Name == "" {
		config.Quality = media.ParseQuality("medium")
	}
	if config.ThumbnailWidth <= 0 || config.ThumbnailHeight <= 0 {
		config.ThumbnailWidth, config.ThumbnailHeight = 320, 240
	}
	return &VideoProcessor{
		toolkit: toolkit,
		storage: store,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// MaxFileSize is the largest accepted upload in bytes.
func (p *VideoProcessor) MaxFileSize() int64 {
	return p.config.MaxFileSize
}

// Validate checks size, MIME type and extension. It has no side effects.
func (p *VideoProcessor) Validate(file UploadFile) error {
	ext := strings.ToLower(filepath.Ext(file.OriginalName))
	if _, denied := deniedExtensions[ext]; denied {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file extension %s is not allowed", ext))
	}
	if file.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "video file is empty")
	}
	if p.config.MaxFileSize > 0 && file.Size > p.config.MaxFileSize {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file size exceeds the maximum of %d bytes", p.config.MaxFileSize))
	}
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(file.MIMEType, ";", 2)[0]))
	if !contains(p.config.AllowedMIMEs, mime) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %q is not allowed", mime))
	}
	if !contains(p.config.AllowedExtensions, ext) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file extension %q is not allowed", ext))
	}
	return nil
}

// Process probes, transcodes and thumbnails file.TempPath for ownerID. The
// temp file is always removed; on failure partial outputs are removed too.
func (p *VideoProcessor) Process(ctx context.Context, file UploadFile, ownerID int64) (*models.ProcessedVideo, error) {
	defer p.remove(file.TempPath)

	basename := p.uniqueBasename(file.OriginalName)
	dir, err := p.storage.OwnerDir(ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare storage")
	}
	videoPath := filepath.Join(dir, basename+".mp4")
	thumbPath := filepath.Join(dir, basename+"_thumb.jpg")

	info, err := p.inspect(ctx, file.TempPath)
	if err != nil {
		p.logger.Error("probe failed", zap.String("file", file.OriginalName), zap.Error(err))
		return nil, appErrors.WithCause(appErrors.ErrUnreadableMedia, err)
	}

	if err := p.encode(ctx, file.TempPath, videoPath); err != nil {
		p.remove(videoPath)
		p.logger.Error("transcode failed", zap.String("file", file.OriginalName), zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, appErrors.WithCause(appErrors.ErrTranscode, err)
	}

	var thumbnail *string
	offset := media.ThumbnailOffset(float64(info.Duration))
	if err := p.thumbnail(ctx, videoPath, thumbPath, offset); err != nil {
		p.remove(thumbPath)
		if p.config.ThumbnailRequired {
			p.remove(videoPath)
			p.logger.Error("thumbnail generation failed", zap.String("file", file.OriginalName), zap.Error(err))
			return nil, appErrors.WithCause(appErrors.ErrThumbnail, err)
		}
		p.logger.Warn("thumbnail generation failed, continuing without thumbnail", zap.String("file", file.OriginalName), zap.Error(err))
	} else {
		thumbnail = &thumbPath
	}

	size, err := p.storage.Size(videoPath)
	if err != nil {
		p.remove(videoPath)
		if thumbnail != nil {
			p.remove(thumbPath)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat processed video")
	}

	return &models.ProcessedVideo{
		Filename:      basename + ".mp4",
		OriginalName:  file.OriginalName,
		FilePath:      videoPath,
		ThumbnailPath: thumbnail,
		FileSize:      size,
		Duration:      info.Duration,
		Media:         *info,
	}, nil
}

// Delete removes a stored video and its thumbnail. Missing files are fine;
// other failures are logged and returned joined.
func (p *VideoProcessor) Delete(videoPath string, thumbnailPath *string) error {
	var errs []error
	if err := p.storage.Delete(videoPath); err != nil {
		p.logger.Warn("failed to delete video file", zap.String("path", videoPath), zap.Error(err))
		errs = append(errs, err)
	}
	if thumbnailPath != nil {
		if err := p.storage.Delete(*thumbnailPath); err != nil {
			p.logger.Warn("failed to delete thumbnail", zap.String("path", *thumbnailPath), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *VideoProcessor) inspect(ctx context.Context, path string) (*media.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ToolTimeout)
	defer cancel()
	return p.toolkit.Probe(ctx, path)
}

func (p *VideoProcessor) thumbnail(ctx context.Context, src, dst string, offset float64) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.ToolTimeout)
	defer cancel()
	return p.toolkit.Thumbnail(ctx, src, dst, offset, p.config.ThumbnailWidth, p.config.ThumbnailHeight)
}

func (p *VideoProcessor) encode(ctx context.Context, src, dst string) error {
	if !p.config.EnableTranscoding {
		return p.storage.Copy(src, dst)
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.TranscodeTimeout)
	defer cancel()

	start := time.Now()
	err := p.toolkit.Transcode(ctx, src, dst, p.config.Quality)
	p.metrics.ObserveTranscode(time.Since(start), err)
	return err
}

func (p *VideoProcessor) uniqueBasename(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "_")
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "video"
	}
	return fmt.Sprintf("%s_%d_%s", base, p.now().UnixMilli(), storage.RandomSuffix(8))
}

func (p *VideoProcessor) remove(path string) {
	if path == "" {
		return
	}
	if err := p.storage.Delete(path); err != nil {
		p.logger.Warn("cleanup failed", zap.String("path", path), zap.Error(err))
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
