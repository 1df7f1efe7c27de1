package endpoints

import (
	"context"
	"errors"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/wsconn"
)

// maxSkippedFrames bounds how many unrelated frames one round trip reads before it gives up
// on the connection.
const maxSkippedFrames = 32

// ErrSkipFrame is returned by Codec.Decode for frames that do not answer the pending request,
// such as keepalive replies or subscription notifications. The frame is discarded and the
// next one is read.
var ErrSkipFrame = errors.New("frame does not answer the pending request")

// Codec turns requests into frames and frames into responses for one backend protocol.
type Codec[Req, Resp any] interface {
	Encode(req Req) (wsconn.Message, error)
	Decode(data []byte) (Resp, error)
}

// ConnectionBacked lets a persistent connection take part in a provider group like any
// stateless endpoint. Execute performs one request/response round trip.
//
// Round trips on one endpoint are serialized so a caller never reads the response meant for
// another caller.
type ConnectionBacked[Req, Resp any] struct {
	network string
	conn    *wsconn.Connection
	codec   Codec[Req, Resp]
	sem     chan struct{}
}

// NewConnectionBacked wraps conn. The endpoint owns conn and closes it on Close.
func NewConnectionBacked[Req, Resp any](network string, conn *wsconn.Connection, codec Codec[Req, Resp]) *ConnectionBacked[Req, Resp] {
	return &ConnectionBacked[Req, Resp]{
		network: network,
		conn:    conn,
		codec:   codec,
		sem:     make(chan struct{}, 1),
	}
}

// Host returns the host of the underlying connection
func (e *ConnectionBacked[Req, Resp]) Host() string {
	return e.conn.Host()
}

// Connection returns the underlying persistent connection
func (e *ConnectionBacked[Req, Resp]) Connection() *wsconn.Connection {
	return e.conn
}

// Execute encodes req, sends it, reads the answer and decodes it.
//
// Encoding failures are VALIDATION errors. Connect, send and receive failures, including a
// connection dropped between send and receive, are TRANSPORT errors so the group moves on.
// A response that arrives but cannot be decoded is REJECTED unless the codec already
// classified it.
func (e *ConnectionBacked[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	defer func() { <-e.sem }()

	// encode under the lock: codecs may correlate the answer with the last encoded request
	msg, err := e.codec.Encode(req)
	if err != nil {
		var chainErr *walleterrors.ChainError
		if errors.As(err, &chainErr) {
			return zero, err
		}
		return zero, walleterrors.NewChainError(walleterrors.ErrCodeValidation, e.network, "failed to encode request", err).
			WithHost(e.Host())
	}

	if err := e.conn.Send(ctx, msg); err != nil {
		return zero, e.transportError(ctx, "send", err)
	}

	for skipped := 0; ; skipped++ {
		data, err := e.conn.Receive(ctx)
		if err != nil {
			return zero, e.transportError(ctx, "receive", err)
		}

		resp, err := e.codec.Decode(data)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrSkipFrame) {
			return zero, e.decodeError(err)
		}
		if skipped >= maxSkippedFrames {
			// the stream is out of step with our requests; start over on a fresh connection
			e.conn.Disconnect()
			return zero, walleterrors.NewTransportError(e.network, "no response among received frames", err).
				WithHost(e.Host()).
				WithContext("skipped", skipped+1)
		}
	}
}

// Close closes the underlying connection
func (e *ConnectionBacked[Req, Resp]) Close() error {
	return e.conn.Close()
}

func (e *ConnectionBacked[Req, Resp]) transportError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	// using the endpoint after Close stays a programming error
	if errors.Is(err, wsconn.ErrClosed) {
		return err
	}
	var chainErr *walleterrors.ChainError
	if errors.As(err, &chainErr) && chainErr.Code == walleterrors.ErrCodeTransport {
		return chainErr
	}
	return walleterrors.NewTransportError(e.network, step+" failed", err).WithHost(e.Host())
}

func (e *ConnectionBacked[Req, Resp]) decodeError(err error) error {
	var chainErr *walleterrors.ChainError
	if errors.As(err, &chainErr) {
		if chainErr.Host != "" {
			return chainErr
		}
		withHost := *chainErr
		withHost.Host = e.Host()
		if withHost.Network == "" {
			withHost.Network = e.network
		}
		return &withHost
	}
	return walleterrors.NewRejectedError(e.network, "invalid response", err).WithHost(e.Host())
}
