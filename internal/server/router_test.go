package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/handler"
	"github.com/noah-isme/dentvid-api/internal/models"
	"github.com/noah-isme/dentvid-api/internal/service"
	"github.com/noah-isme/dentvid-api/pkg/config"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/ratelimit"
)

type rejectAll struct{}

func (rejectAll) Authenticate(context.Context, string) (*models.Principal, error) {
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid or expired token")
}

func newTestRouter(t *testing.T, ready error, limiter *ratelimit.Limiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: "/api",
		RateLimit: config.RateLimitConfig{
			GeneralLimit: 100, GeneralWindow: time.Minute,
			AuthLimit: 2, AuthWindow: time.Minute,
			UploadLimit: 1, UploadWindow: time.Minute,
			ResetLimit: 1, ResetWindow: time.Minute,
		},
	}
	metrics := service.NewMetricsService()
	checks := map[string]handler.Checker{
		"database": func(context.Context) error { return ready },
	}
	h := Handlers{
		Auth:      handler.NewAuthHandler(nil),
		Users:     handler.NewUserHandler(nil),
		Videos:    handler.NewVideoHandler(nil, nil, nil, metrics, zap.NewNop(), 0),
		Dashboard: handler.NewDashboardHandler(nil, nil, nil),
		Metrics:   handler.NewMetricsHandler(metrics, checks),
	}
	return NewRouter(Options{Config: cfg, Logger: zap.NewNop(), Metrics: metrics, Authenticator: rejectAll{}, Limiter: limiter}, h)
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready", nil).Code)

	r = newTestRouter(t, errors.New("connection refused"), nil)
	w := serve(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	serve(r, http.MethodGet, "/health", nil)

	w := serve(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	for _, path := range []string{
		"/api/videos",
		"/api/videos/1",
		"/api/videos/1/stream",
		"/api/categories",
		"/api/admin/dashboard",
		"/api/admin/users",
		"/api/auth/profile",
	} {
		w := serve(r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := serve(r, http.MethodGet, "/api/videos/1/stream", map[string]string{"Authorization": "Bearer stale"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamPreflight(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w := serve(r, http.MethodOptions, "/api/videos/1/stream", map[string]string{
		"Origin":                         "https://app.example.com",
		"Access-Control-Request-Headers": "range",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Range")
}

func TestAuthRateLimit(t *testing.T) {
	r := newTestRouter(t, nil, ratelimit.NewLimiter(ratelimit.NewMemoryStore(100)))

	// Bodies are invalid, so the handler answers 400 without touching the service.
	for i := 0; i < 2; i++ {
		w := serve(r, http.MethodPost, "/api/auth/login", map[string]string{"Content-Type": "application/json"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := serve(r, http.MethodPost, "/api/auth/login", map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestSecurityHeaders(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	for _, path := range []string{"/health", "/api/videos"} {
		w := serve(r, http.MethodGet, path, nil)
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"), path)
		assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"), path)
		assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"), path)
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"), path)
	}
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/nope", nil).Code)
}
