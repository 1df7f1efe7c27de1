package rpcpool

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEndpointMetrics_UpdateSuccess(t *testing.T) {
	m := NewEndpointMetrics()

	m.UpdateSuccess(100 * time.Millisecond)
	assert.Equal(t, uint64(1), m.TotalRequests)
	assert.Equal(t, 100*time.Millisecond, m.AverageLatency)
	assert.Equal(t, 100.0, m.GetHealthScore())

	m.UpdateSuccess(200 * time.Millisecond)
	// EMA: 100*0.9 + 200*0.1
	assert.Equal(t, 110*time.Millisecond, m.AverageLatency)
	assert.Equal(t, 1.0, m.GetSuccessRate())
}

func TestEndpointMetrics_UpdateFailure(t *testing.T) {
	m := NewEndpointMetrics()
	m.UpdateSuccess(50 * time.Millisecond)

	err := errors.New("connection refused")
	m.UpdateFailure(err, 0)
	m.UpdateFailure(err, 0)

	assert.Equal(t, uint64(3), m.TotalRequests)
	assert.Equal(t, uint64(2), m.FailedRequests)
	assert.Equal(t, 2, m.GetConsecutiveFailures())
	assert.Equal(t, err, m.LastError)
	assert.InDelta(t, 1.0/3.0, m.GetSuccessRate(), 0.0001)
	// base 33.3 minus 20 for two consecutive failures
	assert.InDelta(t, 100.0/3.0-20.0, m.GetHealthScore(), 0.0001)

	m.UpdateSuccess(50 * time.Millisecond)
	assert.Equal(t, 0, m.GetConsecutiveFailures())
}

func TestEndpointMetrics_LatencyPenalty(t *testing.T) {
	m := NewEndpointMetrics()
	m.UpdateSuccess(3 * time.Second)

	// two seconds above baseline at five points each
	assert.InDelta(t, 90.0, m.GetHealthScore(), 0.0001)

	slow := NewEndpointMetrics()
	slow.UpdateSuccess(30 * time.Second)
	assert.InDelta(t, 80.0, slow.GetHealthScore(), 0.0001)
}

func TestMember_StateTransitions(t *testing.T) {
	m := newMember(newMockEndpoint("a", nil), 0)
	assert.Equal(t, StateHealthy, m.State())

	err := errors.New("timeout")
	m.record(true, err, time.Millisecond, 3)
	assert.Equal(t, StateDegraded, m.State())
	m.record(true, err, time.Millisecond, 3)
	m.record(true, err, time.Millisecond, 3)
	assert.Equal(t, StateUnhealthy, m.State())

	m.record(false, nil, time.Millisecond, 3)
	assert.Equal(t, StateHealthy, m.State())

	info := m.info()
	assert.Equal(t, "a", info.Host)
	assert.Equal(t, "healthy", info.State)
	assert.Equal(t, uint64(4), info.RequestCount)
	assert.Equal(t, uint64(3), info.FailureCount)
	assert.Equal(t, "timeout", info.LastError)
}

func TestEndpointState_String(t *testing.T) {
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "unhealthy", StateUnhealthy.String())
	assert.Equal(t, "unknown", EndpointState(42).String())
}
