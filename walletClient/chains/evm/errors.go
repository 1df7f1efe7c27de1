package evm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pushchain/push-wallet-network/walletClient/endpoints"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
)

// JSON-RPC error codes seen from EVM nodes
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeLimitExceeded  = -32005
	codeExecutionError = 3
)

// messages of -32000 answers that reject the transaction itself
var rejectionPatterns = []string{
	"nonce too low",
	"nonce too high",
	"insufficient funds",
	"already known",
	"replacement transaction underpriced",
	"transaction underpriced",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"execution reverted",
	"invalid sender",
}

// ClassifyError maps go-ethereum client errors to the error taxonomy
func ClassifyError(ctx context.Context, network, host string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if walleterrors.IsChainError(err, walleterrors.ErrCodeValidation) {
		return err
	}

	if errors.Is(err, ethereum.NotFound) {
		return walleterrors.NewNotFoundError(network, "not found", err).WithHost(host)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return endpoints.ClassifyStatus(network, httpErr.StatusCode, string(httpErr.Body)).WithHost(host)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return classifyRPCError(network, host, rpcErr, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return walleterrors.NewTimeoutError(network, "request timed out", err).WithHost(host)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return walleterrors.NewNetworkError(network, "request failed", err).WithHost(host)
	}

	// anything else is an answer we could not read
	return walleterrors.NewRPCError(network, "unexpected response", err).WithHost(host)
}

func classifyRPCError(network, host string, rpcErr rpc.Error, err error) *walleterrors.ChainError {
	var chainErr *walleterrors.ChainError
	switch code := rpcErr.ErrorCode(); code {
	case codeLimitExceeded:
		chainErr = walleterrors.NewRateLimitError(network, rpcErr.Error(), err)
	case codeInvalidRequest, codeInvalidParams, codeExecutionError:
		chainErr = walleterrors.NewRejectedError(network, rpcErr.Error(), err)
	case codeMethodNotFound:
		// providers differ in the methods they enable
		chainErr = walleterrors.NewRPCError(network, rpcErr.Error(), err)
	case codeServerError:
		msg := strings.ToLower(rpcErr.Error())
		chainErr = walleterrors.NewRPCError(network, rpcErr.Error(), err)
		for _, pattern := range rejectionPatterns {
			if strings.Contains(msg, pattern) {
				chainErr = walleterrors.NewRejectedError(network, rpcErr.Error(), err)
				break
			}
		}
	default:
		chainErr = walleterrors.NewRPCError(network, rpcErr.Error(), err)
	}
	return chainErr.WithHost(host).WithContext("rpc_code", rpcErr.ErrorCode())
}
