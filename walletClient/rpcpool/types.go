package rpcpool

import "time"

// GroupStats is a point in time view of a provider group
type GroupStats struct {
	Network        string         `json:"network"`
	TotalEndpoints int            `json:"total_endpoints"`
	Cursor         int            `json:"cursor"`
	CurrentHost    string         `json:"current_host"`
	HealthyCount   int            `json:"healthy_count"`
	DegradedCount  int            `json:"degraded_count"`
	UnhealthyCount int            `json:"unhealthy_count"`
	Endpoints      []EndpointInfo `json:"endpoints"`
}

// EndpointInfo represents information about a single endpoint
type EndpointInfo struct {
	Host                string    `json:"host"`
	Position            int       `json:"position"`
	State               string    `json:"state"`
	HealthScore         float64   `json:"health_score"`
	LastUsed            time.Time `json:"last_used"`
	RequestCount        uint64    `json:"request_count"`
	FailureCount        uint64    `json:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AverageLatency      float64   `json:"average_latency_ms"`
	LastError           string    `json:"last_error,omitempty"`
}
