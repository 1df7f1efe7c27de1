package rpcpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-network/walletClient/metrics"
)

// HealthMonitor periodically probes every endpoint of a group and feeds the results into
// the endpoint metrics. It only informs diagnostics; routing stays with the cursor.
type HealthMonitor[E Endpoint] struct {
	group   *Group[E]
	checker HealthChecker[E]
	logger  zerolog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor[E Endpoint](group *Group[E], checker HealthChecker[E], logger zerolog.Logger) *HealthMonitor[E] {
	return &HealthMonitor[E]{
		group:   group,
		checker: checker,
		logger:  logger.With().Str("component", "health_monitor").Logger(),
	}
}

// Start begins the health monitoring loop
func (h *HealthMonitor[E]) Start(ctx context.Context) {
	h.stopCh = make(chan struct{})
	h.wg.Add(1)
	go h.run(ctx, h.stopCh)
}

// Stop stops the loop and waits for in-flight probes
func (h *HealthMonitor[E]) Stop() {
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	h.wg.Wait()
	h.stopCh = nil
}

func (h *HealthMonitor[E]) run(ctx context.Context, stopCh <-chan struct{}) {
	defer h.wg.Done()

	interval := h.group.config.HealthCheckInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.CheckAll(ctx)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("health monitor stopping: context cancelled")
			return
		case <-stopCh:
			h.logger.Info().Msg("health monitor stopping: stop signal received")
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll probes all endpoints concurrently and waits for the results
func (h *HealthMonitor[E]) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range h.group.members {
		wg.Add(1)
		go func(m *member[E]) {
			defer wg.Done()
			h.check(ctx, m)
		}(m)
	}
	wg.Wait()
}

func (h *HealthMonitor[E]) check(ctx context.Context, m *member[E]) {
	checkCtx := ctx
	if timeout := h.group.config.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	host := m.endpoint.Host()
	start := time.Now()
	err := h.checker.CheckHealth(checkCtx, m.endpoint)
	latency := time.Since(start)

	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, ErrSkipHealthCheck) {
		h.logger.Debug().Str("host", host).Msg("endpoint health check skipped")
		return
	}

	m.record(err != nil, err, latency, h.group.config.UnhealthyThreshold)

	if err != nil {
		metrics.HealthCheckFailuresTotal.WithLabelValues(h.group.network, host).Inc()
		h.logger.Warn().
			Str("host", host).
			Dur("latency", latency).
			Err(err).
			Int("consecutive_failures", m.metrics.GetConsecutiveFailures()).
			Str("state", m.State().String()).
			Msg("endpoint health check failed")
		return
	}

	h.logger.Debug().
		Str("host", host).
		Dur("latency", latency).
		Float64("health_score", m.metrics.GetHealthScore()).
		Msg("endpoint health check passed")
}
