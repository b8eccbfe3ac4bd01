package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/response"
)

// Role returns the platform role of the authenticated user.
func Role(c *gin.Context) models.Role {
	return models.Role(c.GetString(ContextUserRole))
}

// RequireRole lets only users holding one of roles through. It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserRole); !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role := Role(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
