package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dentvid-api/internal/middleware"
	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*models.Dashboard, bool, error)
	Statistics(ctx context.Context, days int) (*models.Statistics, bool, error)
	SystemMetrics() models.SystemMetrics
}

type activityLogService interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLogEntry, *models.Pagination, error)
}

type adminVideoLister interface {
	AdminList(ctx context.Context, filter models.VideoFilter) (*models.VideoList, *models.Pagination, error)
}

// DashboardHandler wires the admin dashboard, statistics and audit views.
type DashboardHandler struct {
	service  dashboardService
	activity activityLogService
	videos   adminVideoLister
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService, activity activityLogService, videos adminVideoLister) *DashboardHandler {
	return &DashboardHandler{service: service, activity: activity, videos: videos}
}

// Admin godoc
// @Summary Admin dashboard summary
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	summary, cacheHit, err := h.service.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Statistics godoc
// @Summary Daily registrations, uploads and views
// @Tags Admin
// @Produce json
// @Param days query int false "Trailing window in days (default 30)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/statistics [get]
func (h *DashboardHandler) Statistics(c *gin.Context) {
	days := 30
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "days must be a number"))
			return
		}
		days = v
	}
	stats, cacheHit, err := h.service.Statistics(c.Request.Context(), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// SystemMetrics godoc
// @Summary Process counters
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/system-metrics [get]
func (h *DashboardHandler) SystemMetrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.SystemMetrics(), nil)
}

// ActivityLogs godoc
// @Summary Audit trail
// @Tags Admin
// @Produce json
// @Param action query string false "Action filter"
// @Param userId query int false "Actor filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size (default 50)"
// @Success 200 {object} response.Envelope
// @Router /admin/activity-logs [get]
func (h *DashboardHandler) ActivityLogs(c *gin.Context) {
	filter := models.ActivityFilter{
		Action:   strings.TrimSpace(c.Query("action")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 50),
	}
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "userId must be a number"))
			return
		}
		filter.UserID = &id
	}
	entries, pagination, err := h.activity.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Videos godoc
// @Summary All videos including deleted ones
// @Tags Admin
// @Produce json
// @Param status query string false "active or inactive"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Search"
// @Success 200 {object} response.Envelope
// @Router /admin/videos [get]
func (h *DashboardHandler) Videos(c *gin.Context) {
	filter := videoFilter(c)
	filter.Active = statusFilter(c.Query("status"))
	list, pagination, err := h.videos.AdminList(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pagination)
}
