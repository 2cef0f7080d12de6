// internal/database/models.go
package database

import (
	"time"
)

// Service is the stored registry record for a monitored endpoint.
type Service struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Protocol  string            `json:"protocol"`
	URL       string            `json:"url"`
	Interval  time.Duration     `json:"interval"`
	Enabled   bool              `json:"enabled"`
	Tags      map[string]string `json:"tags"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Result is one completed check outcome.
type Result struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Verdict    string    `json:"verdict"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMS  float64   `json:"latency_ms"`
	Excerpt    string    `json:"excerpt,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ResultFilters struct {
	Service string
	Verdict string
	Since   *time.Time
	Limit   int
}
