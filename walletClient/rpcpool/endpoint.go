package rpcpool

import (
	"sync"
	"time"
)

// EndpointState is the diagnostic health of an endpoint. It is reported, never used for routing.
type EndpointState int

const (
	StateHealthy EndpointState = iota
	StateDegraded
	StateUnhealthy
)

func (s EndpointState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// EndpointMetrics tracks performance and health metrics for an endpoint
type EndpointMetrics struct {
	mu                  sync.RWMutex
	TotalRequests       uint64
	SuccessfulRequests  uint64
	FailedRequests      uint64
	AverageLatency      time.Duration
	ConsecutiveFailures int
	LastSuccessTime     time.Time
	LastErrorTime       time.Time
	LastError           error
	HealthScore         float64 // 0-100, calculated from success rate and latency
}

// NewEndpointMetrics returns metrics for an endpoint nobody has talked to yet.
func NewEndpointMetrics() *EndpointMetrics {
	return &EndpointMetrics{HealthScore: 100.0}
}

// UpdateSuccess records a request the backend answered, including application level refusals
func (m *EndpointMetrics) UpdateSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.SuccessfulRequests++
	m.ConsecutiveFailures = 0
	m.LastSuccessTime = time.Now()

	if m.AverageLatency == 0 {
		m.AverageLatency = latency
	} else {
		// Exponential moving average with alpha = 0.1
		m.AverageLatency = time.Duration(float64(m.AverageLatency)*0.9 + float64(latency)*0.1)
	}

	m.calculateHealthScore()
}

// UpdateFailure records an infrastructure failure
func (m *EndpointMetrics) UpdateFailure(err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.FailedRequests++
	m.ConsecutiveFailures++
	m.LastErrorTime = time.Now()
	m.LastError = err

	// Timeouts still say something about latency
	if latency > 0 && m.AverageLatency > 0 {
		m.AverageLatency = time.Duration(float64(m.AverageLatency)*0.9 + float64(latency)*0.1)
	}

	m.calculateHealthScore()
}

// calculateHealthScore computes health score based on success rate and latency
func (m *EndpointMetrics) calculateHealthScore() {
	if m.TotalRequests == 0 {
		m.HealthScore = 100.0
		return
	}

	successRate := float64(m.SuccessfulRequests) / float64(m.TotalRequests)
	baseScore := successRate * 100.0

	// 5 points per second above a 1s baseline, capped at 20
	latencyPenalty := 0.0
	if m.AverageLatency > time.Second {
		latencyPenalty = (m.AverageLatency.Seconds() - 1.0) * 5.0
		if latencyPenalty > 20.0 {
			latencyPenalty = 20.0
		}
	}

	// 10 points per consecutive failure, capped at 50
	failurePenalty := float64(m.ConsecutiveFailures) * 10.0
	if failurePenalty > 50.0 {
		failurePenalty = 50.0
	}

	m.HealthScore = baseScore - latencyPenalty - failurePenalty
	if m.HealthScore < 0 {
		m.HealthScore = 0
	}
}

// GetHealthScore returns the current health score (thread-safe)
func (m *EndpointMetrics) GetHealthScore() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthScore
}

// GetSuccessRate returns the success rate (thread-safe)
func (m *EndpointMetrics) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.TotalRequests == 0 {
		return 1.0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests)
}

// GetConsecutiveFailures returns consecutive failure count (thread-safe)
func (m *EndpointMetrics) GetConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConsecutiveFailures
}

// snapshot copies the counters under the read lock
func (m *EndpointMetrics) snapshot() (total, failed uint64, consecutive int, avg time.Duration, score float64, lastErr error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TotalRequests, m.FailedRequests, m.ConsecutiveFailures, m.AverageLatency, m.HealthScore, m.LastError
}

// member pairs an endpoint with the bookkeeping the group keeps for it
type member[E Endpoint] struct {
	endpoint E
	position int
	metrics  *EndpointMetrics

	mu       sync.RWMutex
	state    EndpointState
	lastUsed time.Time
}

func newMember[E Endpoint](endpoint E, position int) *member[E] {
	return &member[E]{
		endpoint: endpoint,
		position: position,
		metrics:  NewEndpointMetrics(),
		state:    StateHealthy,
	}
}

// record updates metrics and derives the state from consecutive failures
func (m *member[E]) record(failed bool, err error, latency time.Duration, unhealthyThreshold int) {
	if failed {
		m.metrics.UpdateFailure(err, latency)
	} else {
		m.metrics.UpdateSuccess(latency)
	}

	consecutive := m.metrics.GetConsecutiveFailures()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed = time.Now()
	switch {
	case consecutive == 0:
		m.state = StateHealthy
	case unhealthyThreshold > 0 && consecutive >= unhealthyThreshold:
		m.state = StateUnhealthy
	default:
		m.state = StateDegraded
	}
}

// State returns the current state (thread-safe)
func (m *member[E]) State() EndpointState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *member[E]) info() EndpointInfo {
	total, failed, consecutive, avg, score, lastErr := m.metrics.snapshot()

	m.mu.RLock()
	state, lastUsed := m.state, m.lastUsed
	m.mu.RUnlock()

	info := EndpointInfo{
		Host:                m.endpoint.Host(),
		Position:            m.position,
		State:               state.String(),
		HealthScore:         score,
		LastUsed:            lastUsed,
		RequestCount:        total,
		FailureCount:        failed,
		ConsecutiveFailures: consecutive,
		AverageLatency:      float64(avg.Microseconds()) / 1000.0,
	}
	if lastErr != nil {
		info.LastError = lastErr.Error()
	}
	return info
}
