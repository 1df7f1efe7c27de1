package api

import "time"

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data        interface{} `json:"data"`
	LastFetched time.Time   `json:"last_fetched"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SnapshotRow is one persisted endpoint snapshot as returned by the history endpoint
type SnapshotRow struct {
	TakenAt             time.Time `json:"taken_at"`
	Host                string    `json:"host"`
	Position            int       `json:"position"`
	IsCurrent           bool      `json:"is_current"`
	State               string    `json:"state"`
	HealthScore         float64   `json:"health_score"`
	RequestCount        uint64    `json:"request_count"`
	FailureCount        uint64    `json:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AverageLatencyMs    float64   `json:"average_latency_ms"`
	LastError           string    `json:"last_error,omitempty"`
}
