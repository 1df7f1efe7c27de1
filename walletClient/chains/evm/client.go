package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

// Client provides EVM operations over a provider group
type Client struct {
	network string
	group   *rpcpool.Group[*Endpoint]
}

// NewClient creates a client on group
func NewClient(group *rpcpool.Group[*Endpoint]) *Client {
	return &Client{network: group.Network(), group: group}
}

// Group returns the provider group
func (c *Client) Group() *rpcpool.Group[*Endpoint] {
	return c.group
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return rpcpool.Call(ctx, c.group, "eth_blockNumber", func(ctx context.Context, e *Endpoint) (uint64, error) {
		n, err := e.client.BlockNumber(ctx)
		return n, e.classify(ctx, err)
	})
}

// ChainID returns the chain id reported by the current endpoint
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return rpcpool.Call(ctx, c.group, "eth_chainId", func(ctx context.Context, e *Endpoint) (*big.Int, error) {
		id, err := e.client.ChainID(ctx)
		return id, e.classify(ctx, err)
	})
}

// BalanceAt returns the latest balance of address in wei
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, walleterrors.NewValidationError(c.network, "invalid address: "+address)
	}
	account := common.HexToAddress(address)

	return rpcpool.Call(ctx, c.group, "eth_getBalance", func(ctx context.Context, e *Endpoint) (*big.Int, error) {
		balance, err := e.client.BalanceAt(ctx, account, nil)
		return balance, e.classify(ctx, err)
	})
}

// SuggestGasPrice returns the gas price suggested by the node
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return rpcpool.Call(ctx, c.group, "eth_gasPrice", func(ctx context.Context, e *Endpoint) (*big.Int, error) {
		price, err := e.client.SuggestGasPrice(ctx)
		return price, e.classify(ctx, err)
	})
}

// SendRawTransaction broadcasts a signed, RLP or typed-envelope encoded transaction and
// returns its hash. A transaction the node refuses is not retried elsewhere.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, walleterrors.NewChainError(walleterrors.ErrCodeValidation, c.network, "invalid raw transaction", err)
	}

	err := c.group.Execute(ctx, "eth_sendRawTransaction", func(ctx context.Context, e *Endpoint) error {
		return e.classify(ctx, e.client.SendTransaction(ctx, tx))
	})
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}
