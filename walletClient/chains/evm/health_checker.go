package evm

import (
	"context"
	"fmt"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

// HealthChecker implements health checking for EVM endpoints
type HealthChecker struct {
	expectedChainID int64
}

// NewHealthChecker creates a health checker. A zero chain id skips the chain id check.
func NewHealthChecker(expectedChainID int64) *HealthChecker {
	return &HealthChecker{expectedChainID: expectedChainID}
}

// CheckHealth requires a non-zero block number and, when configured, the expected chain id
func (h *HealthChecker) CheckHealth(ctx context.Context, e *Endpoint) error {
	blockNumber, err := e.client.BlockNumber(ctx)
	if err != nil {
		return e.classify(ctx, err)
	}
	if blockNumber == 0 {
		return walleterrors.NewRPCError(e.network, "block number is zero, node may not be synced", nil).WithHost(e.Host())
	}

	if h.expectedChainID == 0 {
		return nil
	}
	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return e.classify(ctx, err)
	}
	if chainID.Int64() != h.expectedChainID {
		return walleterrors.NewConfigError(e.network,
			fmt.Sprintf("chain ID mismatch: expected %d, got %d", h.expectedChainID, chainID.Int64())).
			WithHost(e.Host())
	}
	return nil
}

var _ rpcpool.HealthChecker[*Endpoint] = (*HealthChecker)(nil)
