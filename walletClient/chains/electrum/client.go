package electrum

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-network/walletClient/config"
	"github.com/pushchain/push-wallet-network/walletClient/endpoints"
	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/nodeinfo"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/wsconn"
)

// Electrum protocol methods
const (
	MethodPing        = "server.ping"
	MethodVersion     = "server.version"
	MethodGetBalance  = "blockchain.scripthash.get_balance"
	MethodListUnspent = "blockchain.scripthash.listunspent"
)

// Endpoint is one Electrum server reached over a persistent WebSocket connection
type Endpoint = endpoints.ConnectionBacked[Request, json.RawMessage]

// Balance of a script hash in satoshis (or the chain's smallest unit)
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// Unspent is one unspent output of a script hash
type Unspent struct {
	TxHash string `json:"tx_hash"`
	TxPos  int    `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// NewEndpoint creates an endpoint for info using the connection settings of netCfg.
// Nothing is dialed until the first request.
func NewEndpoint(network string, info nodeinfo.NodeInfo, netCfg config.NetworkConfig, dialer wsconn.Dialer, logger zerolog.Logger) *Endpoint {
	header := make(http.Header, len(info.Headers))
	for k, v := range info.Headers {
		header.Set(k, v)
	}

	cfg := wsconn.Config{
		URL:              info.URL,
		Header:           header,
		Network:          network,
		IdleTimeout:      netCfg.IdleTimeout(),
		HandshakeTimeout: netCfg.HandshakeTimeout(),
	}
	if ka := netCfg.KeepAlive; ka != nil {
		cfg.Ping = wsconn.Ping{Kind: wsconn.PingPlain, Interval: ka.Interval()}
		if ka.Kind == config.PingKindMessage {
			cfg.Ping.Kind = wsconn.PingMessage
			cfg.Ping.Message = wsconn.Text(ka.Message)
		}
	}

	conn := wsconn.New(cfg, dialer, logger)
	return endpoints.NewConnectionBacked[Request, json.RawMessage](network, conn, NewCodec(network))
}

// HealthCheck probes an Electrum endpoint with server.ping. The probe connects when needed,
// which also re-arms the idle timer.
var HealthCheck = rpcpool.HealthCheckFunc[*Endpoint](func(ctx context.Context, e *Endpoint) error {
	_, err := e.Execute(ctx, Request{Method: MethodPing})
	return err
})

// MonitorHealthCheck is HealthCheck for the background monitor. Endpoints without an open
// connection are skipped so idle sockets stay closed.
var MonitorHealthCheck = rpcpool.HealthCheckFunc[*Endpoint](func(ctx context.Context, e *Endpoint) error {
	if e.Connection().State() != wsconn.StateConnected {
		return rpcpool.ErrSkipHealthCheck
	}
	return HealthCheck(ctx, e)
})

// Client provides Electrum operations over a provider group
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

// Ping checks that the current server answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, Request{Method: MethodPing})
	return err
}

// ServerVersion negotiates the protocol version and returns the server software and version
func (c *Client) ServerVersion(ctx context.Context, clientName, protocolVersion string) ([]string, error) {
	raw, err := c.call(ctx, Request{Method: MethodVersion, Params: []interface{}{clientName, protocolVersion}})
	if err != nil {
		return nil, err
	}
	var version []string
	if err := c.decode(raw, &version); err != nil {
		return nil, err
	}
	return version, nil
}

// GetBalance returns the balance of scriptHash
func (c *Client) GetBalance(ctx context.Context, scriptHash string) (Balance, error) {
	if err := c.validateScriptHash(scriptHash); err != nil {
		return Balance{}, err
	}
	raw, err := c.call(ctx, Request{Method: MethodGetBalance, Params: []interface{}{scriptHash}})
	if err != nil {
		return Balance{}, err
	}
	var balance Balance
	if err := c.decode(raw, &balance); err != nil {
		return Balance{}, err
	}
	return balance, nil
}

// ListUnspent returns the unspent outputs of scriptHash
func (c *Client) ListUnspent(ctx context.Context, scriptHash string) ([]Unspent, error) {
	if err := c.validateScriptHash(scriptHash); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, Request{Method: MethodListUnspent, Params: []interface{}{scriptHash}})
	if err != nil {
		return nil, err
	}
	unspents := []Unspent{}
	if err := c.decode(raw, &unspents); err != nil {
		return nil, err
	}
	return unspents, nil
}

func (c *Client) call(ctx context.Context, req Request) (json.RawMessage, error) {
	return rpcpool.Call(ctx, c.group, req.Method, func(ctx context.Context, e *Endpoint) (json.RawMessage, error) {
		return e.Execute(ctx, req)
	})
}

func (c *Client) decode(raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return walleterrors.NewRejectedError(c.network, "unexpected result shape", err)
	}
	return nil
}

// script hashes are the hex encoded sha256 of the output script
func (c *Client) validateScriptHash(scriptHash string) error {
	if len(scriptHash) != 64 {
		return walleterrors.NewValidationError(c.network, "script hash must be 64 hex characters")
	}
	if _, err := hex.DecodeString(scriptHash); err != nil {
		return walleterrors.NewValidationError(c.network, "script hash is not hex")
	}
	return nil
}
