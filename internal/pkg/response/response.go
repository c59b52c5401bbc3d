package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON envelope written with real HTTP status codes so browser clients
// can branch on the status alone. The detail field mirrors the
// upstream analysis engine's error shape, which keeps passthrough
// rejections byte-compatible.

type ErrorBody struct {
	Detail string `json:"detail"`
}

// OK 200 with the payload as-is.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error arbitrary status + detail. Used for upstream passthrough.
func Error(c *gin.Context, status int, detail string) {
	c.JSON(status, ErrorBody{Detail: detail})
}

// ParamError 400, the caller's input is malformed.
func ParamError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "invalid request"
	}
	Error(c, http.StatusBadRequest, detail)
}

// AuthError 401, missing or invalid credential.
func AuthError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "authentication required"
	}
	Error(c, http.StatusUnauthorized, detail)
}

// PermissionError 403, authenticated but not the row owner.
func PermissionError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "you do not have access to this resource"
	}
	Error(c, http.StatusForbidden, detail)
}

// NotFoundError 404.
func NotFoundError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "resource not found"
	}
	Error(c, http.StatusNotFound, detail)
}

// ConflictError 409, e.g. results requested before completion.
func ConflictError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "conflicting job state"
	}
	Error(c, http.StatusConflict, detail)
}

// QuotaError 429, plan limit reached.
func QuotaError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "monthly analysis limit reached"
	}
	Error(c, http.StatusTooManyRequests, detail)
}

// GatewayError 502, the analysis engine is unreachable. Distinct from
// a validation failure and from an engine rejection.
func GatewayError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "analysis service is unavailable, please try again later"
	}
	Error(c, http.StatusBadGateway, detail)
}

// ServerError 500.
func ServerError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "internal server error"
	}
	Error(c, http.StatusInternalServerError, detail)
}
