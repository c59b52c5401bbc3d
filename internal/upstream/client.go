package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/geolyze/geolyze_server/config"
)

// Client for the external analysis engine. The engine owns job
// creation and every subsequent status write; this gateway only
// forwards requests, propagating the caller's bearer token.

// ErrUnavailable the engine could not be reached at the transport
// level. Reported as 502, distinct from an engine rejection.
var ErrUnavailable = errors.New("analysis service unreachable")

// StatusError a non-2xx engine response, carried through verbatim.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.Code, e.Detail)
}

// Job the engine's job representation.
type Job struct {
	ID          string                 `json:"id"`
	GeoID       string                 `json:"geo_id"`
	Status      string                 `json:"status"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ResultData  map[string]interface{} `json:"result_data,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	CompletedAt string                 `json:"completed_at,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg *config.UpstreamConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit forwards a job creation request. geoID must already be
// normalized; no retries on any failure path.
func (c *Client) Submit(ctx context.Context, bearerToken, geoID string) (*Job, error) {
	body, _ := json.Marshal(map[string]string{"geo_id": geoID})
	return c.do(ctx, http.MethodPost, "/api/analyze", bearerToken, bytes.NewReader(body))
}

// GetStatus fetches the current job fields.
func (c *Client) GetStatus(ctx context.Context, bearerToken, jobID string) (*Job, error) {
	return c.do(ctx, http.MethodGet, "/api/analyze/"+jobID, bearerToken, nil)
}

// GetResults fetches the job including its result payload.
func (c *Client) GetResults(ctx context.Context, bearerToken, jobID string) (*Job, error) {
	return c.do(ctx, http.MethodGet, "/api/analyze/"+jobID+"/results", bearerToken, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearerToken string, body *bytes.Reader) (*Job, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: decodeDetail(resp)}
	}

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode analysis service response: %w", err)
	}
	return &job, nil
}

// decodeDetail pulls the engine's error detail, falling back to a
// generic message when the body carries none.
func decodeDetail(resp *http.Response) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return "analysis service request failed"
}
