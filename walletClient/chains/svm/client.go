package svm

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
)

// Blockhash is a recent blockhash and the last block height it is valid for
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// Client provides Solana operations over a provider group
type Client struct {
	network    string
	group      *rpcpool.Group[*Endpoint]
	commitment rpc.CommitmentType
}

// NewClient creates a client on group reading at confirmed commitment
func NewClient(group *rpcpool.Group[*Endpoint]) *Client {
	return &Client{network: group.Network(), group: group, commitment: rpc.CommitmentConfirmed}
}

// Group returns the provider group
func (c *Client) Group() *rpcpool.Group[*Endpoint] {
	return c.group
}

// GetBalance returns the balance of address in lamports
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, walleterrors.NewChainError(walleterrors.ErrCodeValidation, c.network, "invalid address: "+address, err)
	}

	return rpcpool.Call(ctx, c.group, "getBalance", func(ctx context.Context, e *Endpoint) (uint64, error) {
		res, err := e.client.GetBalance(ctx, account, c.commitment)
		if err != nil {
			return 0, e.classify(ctx, err)
		}
		return res.Value, nil
	})
}

// GetSlot returns the current slot
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	return rpcpool.Call(ctx, c.group, "getSlot", func(ctx context.Context, e *Endpoint) (uint64, error) {
		slot, err := e.client.GetSlot(ctx, c.commitment)
		return slot, e.classify(ctx, err)
	})
}

// GetLatestBlockhash returns a recent blockhash for building transactions
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	return rpcpool.Call(ctx, c.group, "getLatestBlockhash", func(ctx context.Context, e *Endpoint) (Blockhash, error) {
		res, err := e.client.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return Blockhash{}, e.classify(ctx, err)
		}
		if res == nil || res.Value == nil {
			return Blockhash{}, walleterrors.NewRPCError(c.network, "empty blockhash response", nil).WithHost(e.Host())
		}
		return Blockhash{Hash: res.Value.Blockhash, LastValidBlockHeight: res.Value.LastValidBlockHeight}, nil
	})
}
