package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geolyze/geolyze_server/internal/pkg/jwt"
	"github.com/geolyze/geolyze_server/internal/pkg/response"
	"github.com/geolyze/geolyze_server/internal/policy"
)

const (
	UserIDKey      = "userID"
	BearerTokenKey = "bearerToken"
)

// Auth validates the bearer JWT and stores the caller identity plus
// the raw token, which the submission gateway forwards upstream.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AuthError(c, "missing authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AuthError(c, "authorization header must use the Bearer scheme")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID())
		c.Set(BearerTokenKey, tokenString)
		c.Next()
	}
}

// GetUserID the authenticated user id from the request context.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

// GetBearerToken the caller's raw token, for upstream passthrough.
func GetBearerToken(c *gin.Context) string {
	token, _ := c.Get(BearerTokenKey)
	s, _ := token.(string)
	return s
}

// GetCaller the policy principal for the current request.
func GetCaller(c *gin.Context) (policy.Caller, bool) {
	id, ok := GetUserID(c)
	if !ok {
		return policy.Caller{}, false
	}
	return policy.Caller{UserID: id, Role: policy.RoleUser}, true
}
