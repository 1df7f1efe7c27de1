package svm

import (
	"context"
	"errors"
	"net"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/pushchain/push-wallet-network/walletClient/endpoints"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
)

// Solana JSON-RPC error codes
const (
	codeInvalidParams              = -32602
	codeBlockNotAvailable          = -32004
	codeNodeUnhealthy              = -32005
	codeSlotSkipped                = -32007
	codeLongTermStorageSlotSkipped = -32009
	codeTransactionSimulation      = -32002
	codeSignatureVerification      = -32003
	codeTransactionPrecompile      = -32006
	codeMinContextSlotNotReached   = -32016
)

// ClassifyError maps solana-go client errors to the error taxonomy
func ClassifyError(ctx context.Context, network, host string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if errors.Is(err, rpc.ErrNotFound) {
		return walleterrors.NewNotFoundError(network, "not found", err).WithHost(host)
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return endpoints.ClassifyStatus(network, httpErr.Code, httpErr.Error()).WithHost(host)
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		var chainErr *walleterrors.ChainError
		switch rpcErr.Code {
		case codeBlockNotAvailable, codeSlotSkipped, codeLongTermStorageSlotSkipped:
			chainErr = walleterrors.NewNotFoundError(network, rpcErr.Message, err)
		case codeInvalidParams, codeTransactionSimulation, codeSignatureVerification, codeTransactionPrecompile:
			chainErr = walleterrors.NewRejectedError(network, rpcErr.Message, err)
		case codeNodeUnhealthy, codeMinContextSlotNotReached:
			// this node lags behind; another may not
			chainErr = walleterrors.NewRPCError(network, rpcErr.Message, err)
		default:
			chainErr = walleterrors.NewRPCError(network, rpcErr.Message, err)
		}
		return chainErr.WithHost(host).WithContext("rpc_code", rpcErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return walleterrors.NewTimeoutError(network, "request timed out", err).WithHost(host)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return walleterrors.NewNetworkError(network, "request failed", err).WithHost(host)
	}
	return walleterrors.NewRPCError(network, "unexpected response", err).WithHost(host)
}
