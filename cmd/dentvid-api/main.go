package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dentvid-api/api/swagger"
	"github.com/noah-isme/dentvid-api/internal/handler"
	"github.com/noah-isme/dentvid-api/internal/repository"
	"github.com/noah-isme/dentvid-api/internal/server"
	"github.com/noah-isme/dentvid-api/internal/service"
	"github.com/noah-isme/dentvid-api/pkg/cache"
	"github.com/noah-isme/dentvid-api/pkg/config"
	"github.com/noah-isme/dentvid-api/pkg/database"
	"github.com/noah-isme/dentvid-api/pkg/jobs"
	"github.com/noah-isme/dentvid-api/pkg/logger"
	"github.com/noah-isme/dentvid-api/pkg/mailer"
	"github.com/noah-isme/dentvid-api/pkg/media"
	"github.com/noah-isme/dentvid-api/pkg/ratelimit"
	"github.com/noah-isme/dentvid-api/pkg/storage"
)

// @title DentVid API
// @version 1.0.0
// @description Dental education video platform: upload, transcoding and access-controlled streaming.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	tempFileTTL     = time.Hour
	janitorInterval = 15 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	store, err := storage.NewLocalStorage(cfg.Upload.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	users := repository.NewUserRepository(db)
	videos := repository.NewVideoRepository(db)
	views := repository.NewViewRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "dentvid:", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	renderer, err := mailer.NewRenderer()
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	sender := mailer.New(cfg.SMTP, mailer.RetryConfig{
		MaxRetries: cfg.Notify.MaxRetries,
		BaseDelay:  cfg.Notify.RetryDelay,
		MaxDelay:   30 * time.Second,
	}, logr)
	notifications := service.NewNotificationService(sender, renderer, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		BufferSize: cfg.Notify.QueueSize,
	}, metrics, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	activity := service.NewActivityService(activityRepo, logr)
	authSvc := service.NewAuthService(users, activity, notifications, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		AppBaseURL:        cfg.AppBaseURL,
		ResetTokenTTL:     time.Hour,
	})
	rlStore := newRateLimitStore(cfg.RateLimit, redisClient, logr)
	var limiter *ratelimit.Limiter
	if rlStore != nil {
		limiter = ratelimit.NewLimiter(rlStore)
	}
	authSvc.SetLoginGuard(ratelimit.NewGuard(rlStore, ratelimit.FailurePolicy{
		Name:        "login_failures",
		FreeRetries: cfg.RateLimit.LoginFreeRetries,
		Window:      cfg.RateLimit.LoginLockoutWindow,
	}))
	userSvc := service.NewUserService(users, activity, notifications, validate, logr)

	processor := service.NewVideoProcessor(
		media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, media.ExecRunner{}),
		store,
		service.ProcessorConfig{
			MaxFileSize:       cfg.Upload.MaxFileSizeBytes,
			AllowedMIMEs:      cfg.Upload.AllowedMIMEs,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			EnableTranscoding: cfg.Media.EnableTranscoding,
			Quality:           media.ParseQuality(cfg.Media.Quality),
			TranscodeTimeout:  cfg.Media.TranscodeTimeout,
			ToolTimeout:       cfg.Media.ToolTimeout,
			ThumbnailWidth:    cfg.Thumbnail.Width,
			ThumbnailHeight:   cfg.Thumbnail.Height,
			ThumbnailRequired: cfg.Thumbnail.Required,
		},
		metrics, logr,
	)
	signer := storage.NewSignedURLSigner(cfg.Thumbnail.URLSecret, "thumbnail", cfg.Thumbnail.URLTTL)
	videoSvc := service.NewVideoService(videos, views, users, store, processor, signer, activity, notifications, metrics, validate, logr,
		service.VideoServiceConfig{APIPrefix: cfg.APIPrefix})
	exportSvc := service.NewExportService(videoSvc, activity, logr)
	categorySvc := service.NewCategoryService(repository.NewCategoryRepository(db), cacheSvc, cfg.Dashboard.CategoryTTL, logr)
	dashboardSvc := service.NewDashboardService(repository.NewStatsRepository(db), activityRepo, cacheSvc, metrics, logr,
		service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL})
	videoSvc.SetDashboard(dashboardSvc)

	checks := map[string]handler.Checker{"database": pingDB(db)}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := server.NewRouter(server.Options{
		Config:        cfg,
		Logger:        logr,
		Metrics:       metrics,
		Authenticator: authSvc,
		Limiter:       limiter,
	}, server.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Users:     handler.NewUserHandler(userSvc),
		Videos:    handler.NewVideoHandler(videoSvc, exportSvc, categorySvc, metrics, logr, cfg.Upload.MaxFileSizeBytes),
		Dashboard: handler.NewDashboardHandler(dashboardSvc, activity, videoSvc),
		Metrics:   handler.NewMetricsHandler(metrics, checks),
	})

	go cleanTemp(ctx, store, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRateLimitStore picks the store shared by request limits and the login
// guard. Redis is shared across instances; the in-memory store is used when
// Redis is unavailable or not selected. A nil store disables both.
func newRateLimitStore(cfg config.RateLimitConfig, client *redis.Client, logr *zap.Logger) ratelimit.Store {
	if !cfg.Enabled {
		logr.Warn("rate limiting disabled")
		return nil
	}
	if cfg.Store == "redis" {
		if client != nil {
			return ratelimit.NewRedisStore(client, "dentvid:rl")
		}
		logr.Warn("redis rate limit store requested but redis is unavailable, using memory store")
	}
	return ratelimit.NewMemoryStore(cfg.MemoryKeys)
}

func pingDB(db *sqlx.DB) handler.Checker {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// cleanTemp removes abandoned upload temp files until ctx is cancelled.
func cleanTemp(ctx context.Context, store *storage.LocalStorage, logr *zap.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		removed, err := store.CleanupTemp(tempFileTTL)
		if err != nil {
			logr.Warn("temp cleanup failed", zap.Error(err))
		} else if len(removed) > 0 {
			logr.Info("removed stale temp files", zap.Int("count", len(removed)))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
