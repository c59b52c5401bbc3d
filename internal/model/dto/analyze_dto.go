package dto

import (
	"errors"
	"regexp"
	"strings"
)

// geoIDPattern GEO Series accessions: GSE followed by digits.
var geoIDPattern = regexp.MustCompile(`^GSE\d+$`)

var ErrInvalidGeoID = errors.New("invalid GEO accession: expected GSE followed by digits")

// AnalyzeRequest submission body for POST /api/analyze.
type AnalyzeRequest struct {
	GeoID string `json:"geo_id" binding:"required"`
}

// NormalizeGeoID trims, upper-cases, and validates an accession.
// Validation is case-insensitive; the returned value is canonical
// uppercase, ready to forward upstream.
func NormalizeGeoID(raw string) (string, error) {
	geoID := strings.ToUpper(strings.TrimSpace(raw))
	if !geoIDPattern.MatchString(geoID) {
		return "", ErrInvalidGeoID
	}
	return geoID, nil
}

// JobRef what the upstream engine returns on submission.
type JobRef struct {
	ID        string `json:"id"`
	GeoID     string `json:"geo_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// JobStatusUpdate service-role body for PATCH /internal/jobs/:id/status.
type JobStatusUpdate struct {
	Status   string `json:"status" binding:"required"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// JobResults service-role body for PUT /internal/jobs/:id/results.
type JobResults struct {
	ResultData map[string]interface{} `json:"result_data" binding:"required"`
}

// JobError service-role body for PUT /internal/jobs/:id/error.
type JobError struct {
	Error string `json:"error" binding:"required"`
}

// JobMetadata service-role body for PATCH /internal/jobs/:id/metadata.
type JobMetadata struct {
	Metadata map[string]interface{} `json:"metadata" binding:"required"`
}

// IdentityRequest auth-hook body for POST /internal/identities.
type IdentityRequest struct {
	ID    string `json:"id" binding:"required"`
	Email string `json:"email" binding:"required"`
	Name  string `json:"name"`
}

// SubscriptionRequest billing-hook body for POST /internal/subscriptions.
type SubscriptionRequest struct {
	UserID                 string `json:"user_id" binding:"required"`
	ExternalSubscriptionID string `json:"external_subscription_id" binding:"required"`
	Plan                   string `json:"plan" binding:"required"`
	Status                 string `json:"status" binding:"required"`
	CurrentPeriodEnd       string `json:"current_period_end"`
}
