package svm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

// HealthChecker implements health checking for Solana endpoints
type HealthChecker struct{}

// NewHealthChecker creates a health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// CheckHealth requires getHealth to answer "ok" and a non-zero slot
func (h *HealthChecker) CheckHealth(ctx context.Context, e *Endpoint) error {
	health, err := e.client.GetHealth(ctx)
	if err != nil {
		return e.classify(ctx, err)
	}
	if health != rpc.HealthOk {
		return walleterrors.NewRPCError(e.network, fmt.Sprintf("node is not healthy: %s", health), nil).WithHost(e.Host())
	}

	slot, err := e.client.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return e.classify(ctx, err)
	}
	if slot == 0 {
		return walleterrors.NewRPCError(e.network, "slot is zero, node may not be synced", nil).WithHost(e.Host())
	}
	return nil
}

var _ rpcpool.HealthChecker[*Endpoint] = (*HealthChecker)(nil)
