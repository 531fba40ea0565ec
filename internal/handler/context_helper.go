package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dentvid-api/internal/middleware"
	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/response"
)

// currentPrincipal returns the authenticated principal or writes a 401.
func currentPrincipal(c *gin.Context) (*models.Principal, bool) {
	principal := middleware.PrincipalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return principal, true
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// pathID parses a positive integer path parameter or writes a 400.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
