package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-platform/sponsorships/pkg/response"
)

// CloudOnly rejects requests on self-hosted installations.
func CloudOnly(selfHosted bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if selfHosted {
			response.NotFound(c, "not available on self-hosted installations")
			c.Abort()
			return
		}
		c.Next()
	}
}
