package server

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/handler"
	"github.com/noah-isme/dentvid-api/internal/middleware"
	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/service"
	"github.com/noah-isme/dentvid-api/pkg/config"
	"github.com/noah-isme/dentvid-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dentvid-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dentvid-api/pkg/middleware/requestid"
	"github.com/noah-isme/dentvid-api/pkg/middleware/secureheaders"
	"github.com/noah-isme/dentvid-api/pkg/ratelimit"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Auth      *handler.AuthHandler
	Users     *handler.UserHandler
	Videos    *handler.VideoHandler
	Dashboard *handler.DashboardHandler
	Metrics   *handler.MetricsHandler
}

// Options carries the cross-cutting collaborators of the router. Limiter may
// be nil, which disables rate limiting.
type Options struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *service.MetricsService
	Authenticator middleware.Authenticator
	Limiter       *ratelimit.Limiter
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(opts Options, h Handlers) *gin.Engine {
	cfg := opts.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(secureheaders.New(cfg.Env == config.EnvProduction))
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limit := func(name string, n int, window time.Duration) gin.HandlerFunc {
		policy := ratelimit.Policy{Name: name, Limit: n, Window: window}
		return middleware.RateLimit(opts.Limiter, policy, opts.Metrics, opts.Logger)
	}
	rl := cfg.RateLimit

	api := r.Group(cfg.APIPrefix)
	api.Use(limit("general", rl.GeneralLimit, rl.GeneralWindow))

	// Thumbnails are authorised by their signed token so <img> tags can load them.
	api.GET("/videos/:id/thumbnail", h.Videos.Thumbnail)

	auth := api.Group("/auth")
	{
		authLimit := limit("auth", rl.AuthLimit, rl.AuthWindow)
		resetLimit := limit("password_reset", rl.ResetLimit, rl.ResetWindow)
		auth.POST("/register", authLimit, h.Auth.Register)
		auth.POST("/login", authLimit, h.Auth.Login)
		auth.GET("/verify-email", h.Auth.VerifyEmail)
		auth.POST("/forgot-password", resetLimit, h.Auth.ForgotPassword)
		auth.POST("/reset-password", resetLimit, h.Auth.ResetPassword)

		me := auth.Group("", middleware.JWT(opts.Authenticator))
		me.POST("/logout", h.Auth.Logout)
		me.GET("/profile", h.Auth.Profile)
		me.PUT("/profile", h.Auth.UpdateProfile)
		me.PUT("/password", h.Auth.ChangePassword)
	}

	viewer := api.Group("", middleware.JWT(opts.Authenticator), middleware.RequireVerified())
	viewer.GET("/videos", h.Videos.List)
	viewer.GET("/videos/:id", h.Videos.Get)
	viewer.GET("/videos/:id/stream", h.Videos.Stream)
	viewer.GET("/categories", h.Videos.Categories)

	admin := viewer.Group("", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/videos/upload", limit("upload", rl.UploadLimit, rl.UploadWindow), h.Videos.Upload)
	admin.PUT("/videos/:id", h.Videos.Update)
	admin.DELETE("/videos/:id", h.Videos.Delete)
	admin.GET("/videos/:id/analytics", h.Videos.Analytics)
	admin.GET("/videos/:id/analytics/export", h.Videos.ExportAnalytics)

	admin.GET("/admin/dashboard", h.Dashboard.Admin)
	admin.GET("/admin/statistics", h.Dashboard.Statistics)
	admin.GET("/admin/system-metrics", h.Dashboard.SystemMetrics)
	admin.GET("/admin/activity-logs", h.Dashboard.ActivityLogs)
	admin.GET("/admin/videos", h.Dashboard.Videos)
	admin.GET("/admin/users", h.Users.List)
	admin.POST("/admin/users", h.Users.Create)
	admin.PUT("/admin/users/:id", h.Users.Update)
	admin.DELETE("/admin/users/:id", h.Users.Deactivate)
	admin.POST("/admin/users/:id/reset-password", h.Users.ResetPassword)

	return r
}
