// Package store contains GORM-backed SQLite models used by the wallet network service.
//
// Database Structure (database file: walletnet.db):
//
//	<home>/data/
//	└── walletnet.db
//	    └── endpoint_snapshots
package store

import (
	"time"

	"gorm.io/gorm"
)

// EndpointSnapshot is the state of one provider group endpoint at a point in time.
// The snapshot job writes one row per endpoint per interval.
type EndpointSnapshot struct {
	gorm.Model
	TakenAt             time.Time `gorm:"index;not null"`                                  // Snapshot time, shared by all rows of one run
	Network             string    `gorm:"index:idx_network_host;not null"`                 // Logical network name
	Host                string    `gorm:"index:idx_network_host;not null"`                 // Endpoint host
	Position            int       // Priority position in the group
	IsCurrent           bool      // Whether the group cursor pointed at this endpoint
	State               string    // "healthy", "degraded" or "unhealthy"
	HealthScore         float64   // 0-100
	RequestCount        uint64    // Requests since start
	FailureCount        uint64    // Retryable failures since start
	ConsecutiveFailures int
	AverageLatencyMs    float64
	LastError           string `gorm:"type:text"` // Last retryable failure, empty when none
}
