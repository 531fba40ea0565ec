package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/dentvid-api/internal/service"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/ratelimit"
	"github.com/noah-isme/dentvid-api/pkg/response"
)

// RateLimit enforces policy per client IP. A nil limiter disables the check;
// store failures let the request through.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy, metrics *service.MetricsService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		decision, err := limiter.Allow(c.Request.Context(), policy, c.ClientIP())
		if err != nil {
			logger.Warn("rate limit store unavailable, allowing request",
				zap.String("policy", policy.Name),
				zap.Error(err),
			)
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.ResetAt.IsZero() {
			header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			metrics.ObserveRateLimited(policy.Name)
			header.Set("Retry-After", strconv.Itoa(decision.RetryAfter(time.Now())))
			response.Error(c, appErrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
