package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/geolyze/geolyze_server/internal/pkg/response"
)

const ServiceKeyHeader = "X-Service-Key"

// ServiceKey guards the elevated /internal endpoints used by the
// analysis engine and the auth/billing hooks. The presented key is
// checked against a bcrypt hash from config; these routes must never
// be reachable from the browser.
func ServiceKey(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(ServiceKeyHeader)
		if keyHash == "" || key == "" {
			response.AuthError(c, "service key required")
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			response.AuthError(c, "invalid service key")
			c.Abort()
			return
		}

		c.Next()
	}
}
