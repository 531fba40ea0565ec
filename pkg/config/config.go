package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env        string
	Port       int
	APIPrefix  string
	AppBaseURL string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Upload    UploadConfig
	Media     MediaConfig
	Thumbnail ThumbnailConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Dashboard DashboardConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadConfig bounds what the upload endpoint accepts and where files land.
type UploadConfig struct {
	Path              string
	MaxFileSizeBytes  int64
	AllowedMIMEs      []string
	AllowedExtensions []string
}

// MediaConfig drives the external ffmpeg/ffprobe toolchain.
type MediaConfig struct {
	EnableTranscoding bool
	Quality           string
	TranscodeTimeout  time.Duration
	ToolTimeout       time.Duration
	FFmpegPath        string
	FFprobePath       string
}

// ThumbnailConfig controls thumbnail generation and signed thumbnail URLs.
type ThumbnailConfig struct {
	Width     int
	Height    int
	Required  bool
	URLSecret string
	URLTTL    time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// NotifyConfig sizes the background email queue.
type NotifyConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// RateLimitConfig holds the fixed-window policies applied per client IP.
type RateLimitConfig struct {
	Enabled       bool
	Store         string
	GeneralLimit  int
	GeneralWindow time.Duration
	AuthLimit     int
	AuthWindow    time.Duration
	UploadLimit   int
	UploadWindow  time.Duration
	ResetLimit    int
	ResetWindow   time.Duration
	MemoryKeys    int

	// Failed logins per IP and email before the pair is locked out.
	LoginFreeRetries   int
	LoginLockoutWindow time.Duration
}

// DashboardConfig tunes Redis caching of admin aggregates and categories.
type DashboardConfig struct {
	CacheTTL    time.Duration
	CategoryTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.AppBaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxSize := v.GetInt64("MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}
	cfg.Upload = UploadConfig{
		Path:              v.GetString("UPLOAD_PATH"),
		MaxFileSizeBytes:  maxSize,
		AllowedMIMEs:      splitAndTrim(v.GetString("ALLOWED_VIDEO_TYPES")),
		AllowedExtensions: splitAndTrim(v.GetString("ALLOWED_VIDEO_EXTENSIONS")),
	}

	cfg.Media = MediaConfig{
		EnableTranscoding: v.GetBool("ENABLE_TRANSCODING"),
		Quality:           strings.ToLower(v.GetString("TRANSCODE_QUALITY")),
		TranscodeTimeout:  parseDuration(v.GetString("TRANSCODE_TIMEOUT"), 10*time.Minute),
		ToolTimeout:       parseDuration(v.GetString("MEDIA_TOOL_TIMEOUT"), time.Minute),
		FFmpegPath:        v.GetString("FFMPEG_PATH"),
		FFprobePath:       v.GetString("FFPROBE_PATH"),
	}

	width, height, err := ParseDimensions(v.GetString("THUMBNAIL_SIZE"))
	if err != nil {
		return nil, err
	}
	cfg.Thumbnail = ThumbnailConfig{
		Width:     width,
		Height:    height,
		Required:  v.GetBool("THUMBNAIL_REQUIRED"),
		URLSecret: v.GetString("THUMBNAIL_URL_SECRET"),
		URLTTL:    parseDuration(v.GetString("THUMBNAIL_URL_TTL"), time.Hour),
	}

	cfg.SMTP = SMTPConfig{
		Host:     v.GetString("SMTP_HOST"),
		Port:     v.GetInt("SMTP_PORT"),
		User:     v.GetString("SMTP_USER"),
		Password: v.GetString("SMTP_PASSWORD"),
		From:     v.GetString("EMAIL_FROM"),
		FromName: v.GetString("EMAIL_FROM_NAME"),
	}

	cfg.Notify = NotifyConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		QueueSize:  v.GetInt("NOTIFY_QUEUE_SIZE"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
		Store:         strings.ToLower(v.GetString("RATE_LIMIT_STORE")),
		GeneralLimit:  v.GetInt("RATE_LIMIT_GENERAL"),
		GeneralWindow: parseDuration(v.GetString("RATE_LIMIT_GENERAL_WINDOW"), 15*time.Minute),
		AuthLimit:     v.GetInt("RATE_LIMIT_AUTH"),
		AuthWindow:    parseDuration(v.GetString("RATE_LIMIT_AUTH_WINDOW"), 15*time.Minute),
		UploadLimit:   v.GetInt("RATE_LIMIT_UPLOAD"),
		UploadWindow:  parseDuration(v.GetString("RATE_LIMIT_UPLOAD_WINDOW"), time.Hour),
		ResetLimit:    v.GetInt("RATE_LIMIT_PASSWORD_RESET"),
		ResetWindow:   parseDuration(v.GetString("RATE_LIMIT_PASSWORD_RESET_WINDOW"), time.Hour),
		MemoryKeys:    v.GetInt("RATE_LIMIT_MEMORY_KEYS"),

		LoginFreeRetries:   v.GetInt("LOGIN_FREE_RETRIES"),
		LoginLockoutWindow: parseDuration(v.GetString("LOGIN_LOCKOUT_WINDOW"), 15*time.Minute),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL:    parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
		CategoryTTL: parseDuration(v.GetString("CATEGORY_CACHE_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "dentvid")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "dentvid-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOAD_PATH", "./uploads")
	v.SetDefault("MAX_FILE_SIZE", 100*1024*1024)
	v.SetDefault("ALLOWED_VIDEO_TYPES", "video/mp4,video/avi,video/quicktime,video/x-msvideo,video/x-flv,video/x-matroska")
	v.SetDefault("ALLOWED_VIDEO_EXTENSIONS", ".mp4,.avi,.mov,.wmv,.flv,.mkv")

	v.SetDefault("ENABLE_TRANSCODING", true)
	v.SetDefault("TRANSCODE_QUALITY", "medium")
	v.SetDefault("TRANSCODE_TIMEOUT", "10m")
	v.SetDefault("MEDIA_TOOL_TIMEOUT", "1m")
	v.SetDefault("FFMPEG_PATH", "ffmpeg")
	v.SetDefault("FFPROBE_PATH", "ffprobe")

	v.SetDefault("THUMBNAIL_SIZE", "320x240")
	v.SetDefault("THUMBNAIL_REQUIRED", true)
	v.SetDefault("THUMBNAIL_URL_SECRET", "dev_thumbnail_secret")
	v.SetDefault("THUMBNAIL_URL_TTL", "1h")
	v.SetDefault("CATEGORY_CACHE_TTL", "1h")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("EMAIL_FROM", "no-reply@dentvid.local")
	v.SetDefault("EMAIL_FROM_NAME", "DentVid")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 100)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_STORE", "memory")
	v.SetDefault("RATE_LIMIT_GENERAL", 100)
	v.SetDefault("RATE_LIMIT_GENERAL_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_AUTH", 5)
	v.SetDefault("RATE_LIMIT_AUTH_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_UPLOAD", 10)
	v.SetDefault("RATE_LIMIT_UPLOAD_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_PASSWORD_RESET", 3)
	v.SetDefault("LOGIN_FREE_RETRIES", 3)
	v.SetDefault("LOGIN_LOCKOUT_WINDOW", "15m")
	v.SetDefault("RATE_LIMIT_PASSWORD_RESET_WINDOW", "1h")
	v.SetDefault("RATE_LIMIT_MEMORY_KEYS", 10000)

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
}

// ParseDimensions parses a WIDTHxHEIGHT string such as "320x240".
func ParseDimensions(raw string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(raw)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid dimensions %q: expected WIDTHxHEIGHT", raw)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", raw)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", raw)
	}
	return w, h, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
