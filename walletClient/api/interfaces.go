package api

import (
	"context"
	"time"

	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/store"
)

// WalletClientInterface defines the methods needed by the API server
type WalletClientInterface interface {
	NetworkNames() []string
	NetworkStats(network string) (rpcpool.GroupStats, bool)
	AllStats() []rpcpool.GroupStats
}

// SnapshotReader reads persisted provider group snapshots
type SnapshotReader interface {
	LatestSnapshots(network string) ([]store.EndpointSnapshot, error)
	History(network string, since time.Time, limit int) ([]store.EndpointSnapshot, error)
	Ping(ctx context.Context) error
}
