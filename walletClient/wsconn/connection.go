package wsconn

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
	"github.com/pushchain/push-wallet-network/walletClient/metrics"
	"github.com/pushchain/push-wallet-network/walletClient/observability"
)

const defaultHandshakeTimeout = 10 * time.Second

var (
	// ErrNotConnected is returned by Receive when no connection is established
	ErrNotConnected = errors.New("connection not established")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("connection closed")
	// ErrSuperseded is returned to callers waiting on a connect attempt that Disconnect cancelled
	ErrSuperseded = errors.New("connect attempt superseded by disconnect")
	// ErrInvalidFrame is returned for frames that are neither binary nor valid UTF-8 text
	ErrInvalidFrame = errors.New("invalid frame")
)

// State of a persistent connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// PingKind selects what a keepalive tick sends
type PingKind int

const (
	// PingPlain sends a transport ping frame
	PingPlain PingKind = iota
	// PingMessage sends Ping.Message as an application message
	PingMessage
)

// Ping is the keepalive policy. A zero Interval disables keepalive.
type Ping struct {
	Kind     PingKind
	Interval time.Duration
	Message  Message
}

// Config describes one persistent connection
type Config struct {
	URL    string
	Header http.Header
	// Network labels errors and logs
	Network string
	Ping    Ping
	// IdleTimeout disconnects after this long without a successful connect, send or receive.
	// Zero disables it.
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
}

// timer is the part of *time.Timer the connection uses
type timer interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Connection manages one long lived duplex connection: it connects on first use, keeps the
// connection alive with pings and drops it after an idle period.
//
// At most one transport connection exists at a time and concurrent senders share a single
// in-flight connect. A connect that starts while a cancelled one is still inside the Dialer
// waits for it to return, and the cancelled one closes whatever it got. Keepalive and idle
// timers belong to a connection generation; a timer from an older generation does nothing
// when it fires, so it can never reconnect.
//
// Receive drops the connection on any read failure, unreadable frames included, since the
// unanswered response would otherwise be read by the next request.
//
// Close releases the connection. A finalizer calls Close if the owner forgets to.
type Connection struct {
	*connection
}

// New creates a disconnected Connection. Nothing is dialed until the first Send.
func New(cfg Config, dialer Dialer, logger zerolog.Logger) *Connection {
	c := &Connection{connection: newConnection(cfg, dialer, logger, realAfterFunc)}
	runtime.SetFinalizer(c, func(c *Connection) {
		c.connection.close()
	})
	return c
}

// Close disconnects and rejects further use
func (c *Connection) Close() error {
	runtime.SetFinalizer(c, nil)
	c.connection.close()
	return nil
}

// connection holds all state. Timer callbacks reference it and never the outer Connection,
// so an abandoned Connection stays collectable.
type connection struct {
	cfg       Config
	host      string
	dialer    Dialer
	logger    zerolog.Logger
	afterFunc func(time.Duration, func()) timer
	dials     singleflight.Group

	mu          sync.Mutex
	state       State
	conn        Conn
	gen         uint64
	closed      bool
	dialCancel  context.CancelFunc
	dialDone    chan struct{} // closed when the latest dial has left the Dialer
	pingTimer   timer
	pingSeq     uint64
	idleTimer   timer
	idleSeq     uint64
	connectedAt time.Time
}

func newConnection(cfg Config, dialer Dialer, logger zerolog.Logger, afterFunc func(time.Duration, func()) timer) *connection {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	host := cfg.URL
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &connection{
		cfg:    cfg,
		host:   host,
		dialer: dialer,
		logger: logger.With().
			Str("component", "wsconn").
			Str("network", cfg.Network).
			Str("host", host).
			Logger(),
		afterFunc: afterFunc,
		state:     StateDisconnected,
	}
}

// Host returns the host part of the URL
func (c *connection) Host() string {
	return c.host
}

// URL returns the configured URL
func (c *connection) URL() string {
	return c.cfg.URL
}

// State returns the current state
func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectedSince returns when the current connection was established, zero when disconnected
func (c *connection) ConnectedSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return time.Time{}
	}
	return c.connectedAt
}

// Send writes msg, connecting first if needed. Concurrent callers share one connect attempt;
// cancelling ctx stops the wait but not the shared attempt.
func (c *connection) Send(ctx context.Context, msg Message) error {
	conn, gen, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}

	if err := conn.WriteMessage(ctx, msg); err != nil {
		c.drop(gen, "io_error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return walleterrors.NewTransportError(c.cfg.Network, "failed to send message", err).WithHost(c.host)
	}

	c.touch(gen)
	return nil
}

// Receive reads the next message. It never connects: without an established connection it
// fails with ErrNotConnected. Text frames are returned as their UTF-8 bytes.
func (c *connection) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, walleterrors.NewContractError(c.cfg.Network, "receive called without an established connection", ErrNotConnected).
			WithHost(c.host)
	}
	conn, gen := c.conn, c.gen
	c.mu.Unlock()

	msg, err := conn.ReadMessage(ctx)
	if err != nil {
		c.drop(gen, "io_error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, walleterrors.NewTransportError(c.cfg.Network, "failed to receive message", err).WithHost(c.host)
	}

	data, err := messageData(msg)
	if err != nil {
		c.drop(gen, "invalid_frame", err)
		return nil, walleterrors.NewTransportError(c.cfg.Network, "unreadable frame", err).WithHost(c.host)
	}

	c.touch(gen)
	return data, nil
}

// Disconnect closes the connection and cancels keepalive, idle timer and any connect in
// flight. It is idempotent; a later Send connects again.
func (c *connection) Disconnect() {
	c.mu.Lock()
	active := c.state != StateDisconnected
	conn := c.resetLocked()
	c.mu.Unlock()

	if active {
		metrics.ConnectionDisconnectsTotal.WithLabelValues(c.host, "explicit").Inc()
		c.logger.Debug().Msg("disconnected")
	}
	c.closeConn(conn)
}

func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	active := c.state != StateDisconnected
	conn := c.resetLocked()
	c.mu.Unlock()

	if active {
		metrics.ConnectionDisconnectsTotal.WithLabelValues(c.host, "closed").Inc()
	}
	c.closeConn(conn)
}

func (c *connection) ensureConnected(ctx context.Context) (Conn, uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, 0, walleterrors.NewContractError(c.cfg.Network, "connection used after close", ErrClosed).WithHost(c.host)
	}
	if c.state == StateConnected {
		conn, gen := c.conn, c.gen
		c.mu.Unlock()
		return conn, gen, nil
	}
	gen := c.gen
	c.mu.Unlock()

	ch := c.dials.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.dial(gen)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, 0, res.Err
		}
		return res.Val.(Conn), gen, nil
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// dial runs once per connect attempt, shared by every caller of that generation
func (c *connection) dial(gen uint64) (Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return nil, c.superseded()
	}
	// a caller that saw Disconnected can arrive after the shared dial of its generation finished
	if c.state == StateConnected && c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	prev := c.dialDone
	done := make(chan struct{})
	c.dialDone = done
	c.dialCancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()
	defer close(done)

	ctx, span := observability.StartConnectionSpan(ctx, "dial", c.host)
	defer span.End()

	start := time.Now()
	var (
		conn Conn
		err  error
	)
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err == nil {
		conn, err = c.dialer.Dial(ctx, c.cfg.URL, c.cfg.Header.Clone())
	}

	c.mu.Lock()
	c.dialCancel = nil
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		metrics.ConnectionDialsTotal.WithLabelValues(c.host, "superseded").Inc()
		c.closeConn(conn)
		return nil, c.superseded()
	}
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		metrics.ConnectionDialsTotal.WithLabelValues(c.host, "failure").Inc()
		observability.RecordError(span, err, string(walleterrors.ClassInfrastructure))
		c.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("failed to connect")
		return nil, walleterrors.NewTransportError(c.cfg.Network, "failed to connect", err).WithHost(c.host)
	}

	c.conn = conn
	c.state = StateConnected
	c.connectedAt = time.Now()
	c.armIdleLocked()
	c.schedulePingLocked()
	c.mu.Unlock()

	metrics.ConnectionDialsTotal.WithLabelValues(c.host, "success").Inc()
	metrics.ConnectionsOpen.WithLabelValues(c.host).Inc()
	c.logger.Info().Dur("elapsed", time.Since(start)).Msg("connection established")
	return conn, nil
}

func (c *connection) superseded() error {
	return walleterrors.NewTransportError(c.cfg.Network, "connect attempt cancelled", ErrSuperseded).WithHost(c.host)
}

// touch re-arms the idle timer after activity on generation gen
func (c *connection) touch(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == StateConnected {
		c.armIdleLocked()
	}
}

// drop tears down generation gen after a failure; a newer generation is left alone
func (c *connection) drop(gen uint64, reason string, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	conn := c.resetLocked()
	c.mu.Unlock()

	metrics.ConnectionDisconnectsTotal.WithLabelValues(c.host, reason).Inc()
	c.logger.Warn().Err(cause).Str("reason", reason).Msg("connection dropped")
	c.closeConn(conn)
}

// resetLocked starts a new generation: timers and connect attempts of the old one become
// no-ops. Returns the transport connection to close outside the lock.
func (c *connection) resetLocked() Conn {
	c.gen++
	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.state == StateConnected {
		metrics.ConnectionsOpen.WithLabelValues(c.host).Dec()
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.connectedAt = time.Time{}
	return conn
}

func (c *connection) closeConn(conn Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("error closing transport connection")
	}
}

func (c *connection) armIdleLocked() {
	if c.cfg.IdleTimeout <= 0 {
		return
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleSeq++
	gen, seq := c.gen, c.idleSeq
	c.idleTimer = c.afterFunc(c.cfg.IdleTimeout, func() {
		c.onIdle(gen, seq)
	})
}

func (c *connection) onIdle(gen, seq uint64) {
	c.mu.Lock()
	if c.gen != gen || c.idleSeq != seq || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.resetLocked()
	c.mu.Unlock()

	metrics.ConnectionDisconnectsTotal.WithLabelValues(c.host, "idle").Inc()
	c.logger.Debug().Dur("idle_timeout", c.cfg.IdleTimeout).Msg("closing idle connection")
	c.closeConn(conn)
}

func (c *connection) schedulePingLocked() {
	if c.cfg.Ping.Interval <= 0 {
		return
	}
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	c.pingSeq++
	gen, seq := c.gen, c.pingSeq
	c.pingTimer = c.afterFunc(c.cfg.Ping.Interval, func() {
		c.onPing(gen, seq)
	})
}

func (c *connection) onPing(gen, seq uint64) {
	c.mu.Lock()
	if c.gen != gen || c.pingSeq != seq || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()
	ctx, span := observability.StartConnectionSpan(ctx, "ping", c.host)
	defer span.End()

	var err error
	if c.cfg.Ping.Kind == PingMessage {
		err = conn.WriteMessage(ctx, c.cfg.Ping.Message)
	} else {
		err = conn.Ping(ctx)
	}
	if err != nil {
		metrics.KeepalivePingsTotal.WithLabelValues(c.host, "failure").Inc()
		observability.RecordError(span, err, string(walleterrors.ClassInfrastructure))
		c.drop(gen, "ping_failure", err)
		return
	}
	metrics.KeepalivePingsTotal.WithLabelValues(c.host, "success").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.pingSeq == seq && c.state == StateConnected {
		c.schedulePingLocked()
	}
}

func messageData(msg Message) ([]byte, error) {
	switch msg.Type {
	case BinaryMessage:
		return msg.Data, nil
	case TextMessage:
		if !utf8.Valid(msg.Data) {
			return nil, ErrInvalidFrame
		}
		return msg.Data, nil
	default:
		return nil, ErrInvalidFrame
	}
}
