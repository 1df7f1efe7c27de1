package svm

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/pushchain/push-wallet-network/walletClient/nodeinfo"
)

// solanaReader is the part of *rpc.Client the adapter uses
type solanaReader interface {
	GetHealth(ctx context.Context) (string, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	Close() error
}

// Endpoint is one Solana JSON-RPC backend
type Endpoint struct {
	network string
	info    nodeinfo.NodeInfo
	client  solanaReader
}

// NewEndpoint creates an endpoint for info
func NewEndpoint(network string, info nodeinfo.NodeInfo) *Endpoint {
	var client *rpc.Client
	if len(info.Headers) > 0 {
		client = rpc.NewWithHeaders(info.URL, info.Headers)
	} else {
		client = rpc.New(info.URL)
	}
	return newEndpoint(network, info, client)
}

func newEndpoint(network string, info nodeinfo.NodeInfo, client solanaReader) *Endpoint {
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
	return e.client.Close()
}

func (e *Endpoint) classify(ctx context.Context, err error) error {
	return ClassifyError(ctx, e.network, e.Host(), err)
}
