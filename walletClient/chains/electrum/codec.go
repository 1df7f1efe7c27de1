package electrum

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/pushchain/push-wallet-network/walletClient/endpoints"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/wsconn"
)

// Electrum server error codes
const (
	codeBadRequest     = 1
	codeDaemonError    = 2
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Request is one Electrum protocol call
type Request struct {
	Method string
	Params []interface{}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Codec encodes Electrum JSON-RPC requests and matches answers by id. Frames carrying another
// id (keepalive replies use id 0) and notifications are skipped.
//
// A Codec belongs to one endpoint: round trips on it are serialized, so the last encoded id
// is the one being answered.
type Codec struct {
	network string
	nextID  atomic.Uint64
	pending atomic.Uint64
}

// NewCodec creates a codec; request ids start at 1
func NewCodec(network string) *Codec {
	return &Codec{network: network}
}

// Encode serializes req as a text frame with a fresh id
func (c *Codec) Encode(req Request) (wsconn.Message, error) {
	if req.Method == "" {
		return wsconn.Message{}, walleterrors.NewValidationError(c.network, "electrum request without method")
	}
	params := req.Params
	if params == nil {
		params = []interface{}{}
	}

	id := c.nextID.Add(1)
	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: req.Method, Params: params})
	if err != nil {
		return wsconn.Message{}, err
	}
	c.pending.Store(id)
	return wsconn.Message{Type: wsconn.TextMessage, Data: data}, nil
}

// Decode returns the raw result of the pending request
func (c *Codec) Decode(data []byte) (json.RawMessage, error) {
	var resp rpcResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed electrum response: %w", err)
	}
	if resp.ID == nil || *resp.ID != c.pending.Load() {
		return nil, endpoints.ErrSkipFrame
	}

	if resp.Error != nil {
		return nil, c.serverError(resp.Error)
	}
	return resp.Result, nil
}

func (c *Codec) serverError(e *rpcError) *walleterrors.ChainError {
	var chainErr *walleterrors.ChainError
	switch e.Code {
	case codeBadRequest, codeInvalidRequest, codeInvalidParams:
		chainErr = walleterrors.NewRejectedError(c.network, e.Message, nil)
	case codeDaemonError, codeMethodNotFound:
		// the server's node is failing or the server runs an older protocol version
		chainErr = walleterrors.NewRPCError(c.network, e.Message, nil)
	default:
		chainErr = walleterrors.NewRejectedError(c.network, e.Message, nil)
	}
	return chainErr.WithContext("rpc_code", e.Code)
}
