package rpcpool

import (
	"context"
	"errors"
)

// ErrSkipHealthCheck is returned by a HealthChecker that has nothing to probe without side
// effects, such as an idle endpoint it would have to reconnect. The monitor records nothing.
var ErrSkipHealthCheck = errors.New("health check skipped")

// Endpoint is one backend of a provider group. Host identifies it in logs, metrics and stats;
// the request surface is whatever the concrete type offers and is reached through Group.Execute.
type Endpoint interface {
	Host() string
}

// HealthChecker probes a single endpoint. Each chain type implements it with a cheap read
// (block number, getHealth, gRPC health service).
type HealthChecker[E Endpoint] interface {
	CheckHealth(ctx context.Context, endpoint E) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc[E Endpoint] func(ctx context.Context, endpoint E) error

// CheckHealth calls f(ctx, endpoint).
func (f HealthCheckFunc[E]) CheckHealth(ctx context.Context, endpoint E) error {
	return f(ctx, endpoint)
}
