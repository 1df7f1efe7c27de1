package core

import (
	"context"

	"github.com/pushchain/push-wallet-network/walletClient/config"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

// Network is one configured logical network with its provider group, independent of the
// endpoint type behind it.
type Network interface {
	Name() string
	Kind() config.NetworkKind
	Stats() rpcpool.GroupStats
	// Probe runs the health check of the network through the group, failing over like any call
	Probe(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
	Close() error
}

// managedGroup adapts a typed group and its health checkers to Network. checker serves
// Probe; the background monitor may use a gentler one.
type managedGroup[E rpcpool.Endpoint] struct {
	name    string
	kind    config.NetworkKind
	group   *rpcpool.Group[E]
	checker rpcpool.HealthChecker[E]
}

func newManagedGroup[E rpcpool.Endpoint](
	name string,
	kind config.NetworkKind,
	group *rpcpool.Group[E],
	checker rpcpool.HealthChecker[E],
	monitor rpcpool.HealthChecker[E],
) *managedGroup[E] {
	group.SetHealthChecker(monitor)
	return &managedGroup[E]{name: name, kind: kind, group: group, checker: checker}
}

func (m *managedGroup[E]) Name() string              { return m.name }
func (m *managedGroup[E]) Kind() config.NetworkKind  { return m.kind }
func (m *managedGroup[E]) Stats() rpcpool.GroupStats { return m.group.Stats() }
func (m *managedGroup[E]) Start(ctx context.Context) { m.group.Start(ctx) }
func (m *managedGroup[E]) Stop()                     { m.group.Stop() }
func (m *managedGroup[E]) Close() error              { return m.group.Close() }

func (m *managedGroup[E]) Probe(ctx context.Context) error {
	return m.group.Execute(ctx, "probe", m.checker.CheckHealth)
}
