package evm

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/nodeinfo"
)

// ethReader is the part of *ethclient.Client the adapter uses
type ethReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Endpoint is one EVM JSON-RPC backend
type Endpoint struct {
	network string
	info    nodeinfo.NodeInfo
	client  ethReader
}

// Dial creates an endpoint for info. HTTP clients connect lazily, so nothing is sent yet.
func Dial(ctx context.Context, network string, info nodeinfo.NodeInfo) (*Endpoint, error) {
	header := make(http.Header, len(info.Headers))
	for k, v := range info.Headers {
		header.Set(k, v)
	}

	rpcClient, err := rpc.DialOptions(ctx, info.URL, rpc.WithHeaders(header))
	if err != nil {
		return nil, walleterrors.WrapChainError(err, walleterrors.ErrCodeConfig, network, "failed to create EVM RPC client").
			WithHost(info.Host())
	}
	return newEndpoint(network, info, ethclient.NewClient(rpcClient)), nil
}

func newEndpoint(network string, info nodeinfo.NodeInfo, client ethReader) *Endpoint {
	return &Endpoint{network: network, info: info, client: client}
}

// Host returns the backend host
func (e *Endpoint) Host() string {
	return e.info.Host()
}

// Provider returns the provider type the endpoint was resolved from
func (e *Endpoint) Provider() string {
	return e.info.Provider
}

// Close closes the RPC client
func (e *Endpoint) Close() error {
	e.client.Close()
	return nil
}

func (e *Endpoint) classify(ctx context.Context, err error) error {
	return ClassifyError(ctx, e.network, e.Host(), err)
}
