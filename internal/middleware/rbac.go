package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dentvid-api/internal/models"
	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
	"github.com/noah-isme/dentvid-api/pkg/response"
)

// RequireRoles rejects principals whose live role is not in roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)
		if principal == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if !principal.HasRole(roles...) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "Insufficient permissions"))
			return
		}
		c.Next()
	}
}

// RequireVerified rejects principals that have not confirmed their email.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)
		if principal == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if !principal.Verified {
			response.Error(c, appErrors.ErrEmailNotVerified)
			return
		}
		c.Next()
	}
}
