package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/export"
)

type analyticsSource interface {
	Analytics(ctx context.Context, id int64) (*models.VideoAnalytics, error)
}

// ExportResult is a rendered document ready to download.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders video analytics into downloadable documents.
type ExportService struct {
	source    analyticsSource
	renderers map[string]export.Renderer
	activity  activityRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(source analyticsSource, activity activityRecorder, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		source: source,
		renderers: map[string]export.Renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// ExportAnalytics renders the analytics of video id in format (csv or pdf).
func (s *ExportService) ExportAnalytics(ctx context.Context, id int64, format string, actorID int64, meta models.RequestMeta) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedExportType, fmt.Sprintf("format must be one of: csv, pdf (got %q)", format))
	}

	analytics, err := s.source.Analytics(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := renderer.Render(analyticsDataset(analytics, s.now()))
	if err != nil {
		s.logger.Error("failed to render analytics export", zap.Int64("video_id", id), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.activity.Record(ctx, models.ActivityLog{
		UserID:       int64Ptr(actorID),
		Action:       models.ActionAnalyticsExported,
		ResourceType: models.ResourceVideo,
		ResourceID:   int64Ptr(id),
		Details:      fmt.Sprintf("Analytics exported as %s: %s", strings.ToUpper(format), analytics.Title),
		IPAddress:    meta.IP,
		UserAgent:    meta.UserAgent,
	})

	return &ExportResult{
		Filename:    fmt.Sprintf("video-%d-analytics%s", id, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func analyticsDataset(a *models.VideoAnalytics, generatedAt time.Time) export.Dataset {
	recent := export.Table{Title: "Recent Views", Headers: []string{"Viewed At", "Viewer", "IP Address"}}
	for _, v := range a.RecentViews {
		recent.Rows = append(recent.Rows, map[string]string{
			"Viewed At":  v.ViewedAt.UTC().Format(time.RFC3339),
			"Viewer":     v.ViewerName,
			"IP Address": v.IPAddress,
		})
	}
	byDate := export.Table{Title: "Views by Date", Headers: []string{"Date", "Views"}}
	for _, d := range a.ViewsByDate {
		byDate.Rows = append(byDate.Rows, map[string]string{
			"Date":  d.Date,
			"Views": strconv.FormatInt(d.Count, 10),
		})
	}
	return export.Dataset{
		Title: "Video Analytics: " + a.Title,
		Summary: []export.Field{
			{Label: "Video ID", Value: strconv.FormatInt(a.VideoID, 10)},
			{Label: "Total Views", Value: strconv.FormatInt(a.TotalViews, 10)},
			{Label: "Unique Viewers", Value: strconv.FormatInt(a.UniqueViewers, 10)},
			{Label: "Generated At", Value: generatedAt.UTC().Format(time.RFC3339)},
		},
		Tables: []export.Table{byDate, recent},
	}
}
