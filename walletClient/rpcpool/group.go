package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-network/walletClient/config"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/metrics"
	"github.com/pushchain/push-wallet-network/walletClient/observability"
)

// Group fails over between redundant endpoints of one logical network.
//
// Endpoints are kept in priority order. Every call starts at the cursor, the endpoint that
// last answered, and only a retryable failure moves the cursor forward (wrapping). There is
// no automatic return to the primary endpoint and no blacklist: a call that fails everywhere
// has tried each endpoint exactly once.
type Group[E Endpoint] struct {
	network string
	members []*member[E]
	cursor  atomic.Int64
	config  config.RPCPoolConfig
	logger  zerolog.Logger

	HealthMonitor *HealthMonitor[E] // nil until a health checker is set

	mu      sync.Mutex
	started bool
}

// NewGroup creates a provider group. An empty endpoint list is a programming error.
func NewGroup[E Endpoint](
	network string,
	endpoints []E,
	poolConfig *config.RPCPoolConfig,
	logger zerolog.Logger,
) (*Group[E], error) {
	if len(endpoints) == 0 {
		return nil, walleterrors.NewContractError(network, "provider group requires at least one endpoint", nil)
	}

	members := make([]*member[E], len(endpoints))
	for i, endpoint := range endpoints {
		members[i] = newMember(endpoint, i)
	}

	g := &Group[E]{
		network: network,
		members: members,
		logger:  logger.With().Str("component", "rpc_pool").Str("network", network).Logger(),
	}
	if poolConfig != nil {
		g.config = *poolConfig
	}
	metrics.CursorPosition.WithLabelValues(network).Set(0)
	return g, nil
}

// Network returns the logical network name
func (g *Group[E]) Network() string {
	return g.network
}

// Len returns the number of endpoints
func (g *Group[E]) Len() int {
	return len(g.members)
}

// Cursor returns the index of the endpoint the next call starts with
func (g *Group[E]) Cursor() int {
	return int(g.cursor.Load())
}

// Current returns the endpoint the next call starts with
func (g *Group[E]) Current() E {
	return g.members[g.Cursor()].endpoint
}

// Endpoints returns the endpoints in priority order
func (g *Group[E]) Endpoints() []E {
	endpoints := make([]E, len(g.members))
	for i, m := range g.members {
		endpoints[i] = m.endpoint
	}
	return endpoints
}

// Execute runs fn against the endpoint at the cursor and fails over on retryable errors.
//
// A non-retryable error (not found, rejected, validation, contract) or a cancelled ctx is
// returned at once without touching the cursor. A retryable error advances the cursor and
// the next endpoint is tried, until every endpoint has been tried once; then the last error
// is returned, wrapped.
func (g *Group[E]) Execute(ctx context.Context, operation string, fn func(ctx context.Context, endpoint E) error) error {
	n := len(g.members)
	ctx, span := observability.StartGroupSpan(ctx, g.network, operation, n)
	defer span.End()

	start := g.Cursor()
	index := start
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			observability.RecordError(span, err, "cancelled")
			return err
		}

		m := g.members[index]
		err := g.attempt(ctx, m, operation, fn)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil || !walleterrors.IsRetryable(err) {
			g.logger.Debug().
				Str("operation", operation).
				Str("host", m.endpoint.Host()).
				Err(err).
				Msg("operation failed with non-retryable error")
			observability.RecordError(span, err, string(walleterrors.ClassOfError(err)))
			return err
		}

		observability.AddAttemptEvent(span, attempt, m.endpoint.Host(), err)
		next := (index + 1) % n
		g.advance(index, next)

		if next == start {
			g.logger.Error().
				Str("operation", operation).
				Int("attempts", attempt).
				Err(err).
				Msg("operation failed on all endpoints")
			metrics.ExhaustedTotal.WithLabelValues(g.network, operation).Inc()
			observability.RecordError(span, err, string(walleterrors.ClassInfrastructure))
			return fmt.Errorf("%s failed on all %d endpoints of %s: %w", operation, n, g.network, err)
		}

		g.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Str("host", m.endpoint.Host()).
			Str("next_host", g.members[next].endpoint.Host()).
			Err(err).
			Msg("operation failed, trying next endpoint")
		index = next
	}
}

// advance moves the cursor from the failed index. If a concurrent call already moved it
// away from that endpoint the cursor is left alone, so one outage rotates the group once.
func (g *Group[E]) advance(failed, next int) {
	if failed == next {
		return
	}
	if g.cursor.CompareAndSwap(int64(failed), int64(next)) {
		metrics.RotationsTotal.WithLabelValues(g.network).Inc()
		metrics.CursorPosition.WithLabelValues(g.network).Set(float64(next))
	}
}

// attempt runs fn once against m with the per attempt timeout and records the outcome
func (g *Group[E]) attempt(ctx context.Context, m *member[E], operation string, fn func(context.Context, E) error) error {
	attemptCtx := ctx
	if timeout := g.config.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	host := m.endpoint.Host()
	start := time.Now()
	err := fn(attemptCtx, m.endpoint)
	latency := time.Since(start)
	metrics.EndpointRequestDuration.WithLabelValues(g.network, host).Observe(latency.Seconds())

	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) &&
		!walleterrors.IsChainError(err, walleterrors.ErrCodeTimeout) {
		err = walleterrors.NewTimeoutError(g.network, operation+" timed out", err).WithHost(host)
	}

	switch {
	case err == nil:
		m.record(false, nil, latency, g.config.UnhealthyThreshold)
		metrics.EndpointRequestsTotal.WithLabelValues(g.network, host, "success").Inc()
	case ctx.Err() != nil:
		// the caller gave up; says nothing about the endpoint
	case walleterrors.IsRetryable(err):
		m.record(true, err, latency, g.config.UnhealthyThreshold)
		metrics.EndpointRequestsTotal.WithLabelValues(g.network, host, "failure").Inc()
	default:
		m.record(false, nil, latency, g.config.UnhealthyThreshold)
		metrics.EndpointRequestsTotal.WithLabelValues(g.network, host, "application_error").Inc()
	}
	return err
}

// Call is Execute for operations that produce a value.
func Call[E Endpoint, T any](
	ctx context.Context,
	g *Group[E],
	operation string,
	fn func(ctx context.Context, endpoint E) (T, error),
) (T, error) {
	var result T
	err := g.Execute(ctx, operation, func(ctx context.Context, endpoint E) error {
		v, err := fn(ctx, endpoint)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// SetHealthChecker enables background probing with checker
func (g *Group[E]) SetHealthChecker(checker HealthChecker[E]) {
	g.HealthMonitor = NewHealthMonitor(g, checker, g.logger)
}

// Start starts the health monitor when one is configured and probing is enabled
func (g *Group[E]) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.HealthMonitor == nil || g.config.HealthCheckInterval() <= 0 {
		return
	}
	g.started = true

	g.logger.Info().
		Int("endpoint_count", len(g.members)).
		Dur("health_check_interval", g.config.HealthCheckInterval()).
		Msg("starting provider group health monitor")
	g.HealthMonitor.Start(ctx)
}

// Stop stops background probing
func (g *Group[E]) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return
	}
	g.started = false
	g.HealthMonitor.Stop()
}

// Close stops probing and closes every endpoint that holds resources
func (g *Group[E]) Close() error {
	g.Stop()

	var errs []error
	for _, m := range g.members {
		closer, ok := any(m.endpoint).(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			g.logger.Warn().
				Str("host", m.endpoint.Host()).
				Err(err).
				Msg("failed to close endpoint")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the group
func (g *Group[E]) Stats() GroupStats {
	cursor := g.Cursor()
	stats := GroupStats{
		Network:        g.network,
		TotalEndpoints: len(g.members),
		Cursor:         cursor,
		CurrentHost:    g.members[cursor].endpoint.Host(),
		Endpoints:      make([]EndpointInfo, len(g.members)),
	}
	for i, m := range g.members {
		info := m.info()
		stats.Endpoints[i] = info
		switch m.State() {
		case StateHealthy:
			stats.HealthyCount++
		case StateDegraded:
			stats.DegradedCount++
		case StateUnhealthy:
			stats.UnhealthyCount++
		}
	}
	return stats
}
