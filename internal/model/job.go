package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Job statuses. Forward order matters: transitions may only move right,
// except the jump to StatusFailed which is reachable from any
// non-terminal status.
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusAnalyzing   = "analyzing"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// StatusOrder the success path, in observation order.
var StatusOrder = []string{StatusPending, StatusDownloading, StatusAnalyzing, StatusCompleted}

// StatusIndex returns the position of a status on the success path,
// or -1 for failed/unknown statuses.
func StatusIndex(status string) int {
	for i, s := range StatusOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// IsTerminalStatus completed and failed absorb; nothing follows them.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// ValidStatus reports whether s is one of the five job statuses.
func ValidStatus(s string) bool {
	return s == StatusFailed || StatusIndex(s) >= 0
}

// JSONMap arbitrary JSON column (result payloads, metadata).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	return json.Unmarshal(bytes, m)
}

// Job one analysis request and its lifecycle state. Rows are inserted
// when the analysis engine accepts a submission and mutated only
// through service-role writes; owners are read-only observers.
type Job struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      string     `gorm:"size:36;not null;index" json:"user_id"`
	GeoID       string     `gorm:"size:20;not null;index" json:"geo_id"`
	Status      string     `gorm:"size:20;default:pending;index" json:"status"`
	Progress    int        `gorm:"default:0" json:"progress"`
	Message     string     `gorm:"size:500" json:"message,omitempty"`
	ResultData  JSONMap    `gorm:"type:json" json:"result_data,omitempty"`
	Metadata    JSONMap    `gorm:"type:json" json:"metadata,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// OwnerID row owner, for access-policy checks.
func (j *Job) OwnerID() string {
	return j.UserID
}
