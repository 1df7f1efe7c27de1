package wsconn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walleterrors "github.com/pushchain/push-wallet-network/walletClient/errors"
)

const (
	testPingInterval = 10 * time.Second
	testIdleTimeout  = 20 * time.Second
)

// fakeConn records traffic and replays queued reads
type fakeConn struct {
	mu       sync.Mutex
	written  []Message
	reads    []Message
	readErr  error
	writeErr error
	pingErr  error
	pings    int
	closes   int
}

func (c *fakeConn) WriteMessage(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, msg)
	return nil
}

func (c *fakeConn) ReadMessage(ctx context.Context) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return Message{}, c.readErr
	}
	if len(c.reads) == 0 {
		return Message{}, errors.New("no data")
	}
	msg := c.reads[0]
	c.reads = c.reads[1:]
	return msg, nil
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) counts() (pings, closes, written int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings, c.closes, len(c.written)
}

// fakeDialer hands out conns in order; gate, when set, blocks Dial until closed
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	err     error
	dials   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
	// stubborn dials wait for gate even after their context is cancelled
	stubborn bool
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.dials.Add(1)
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.gate != nil && d.stubborn {
		<-d.gate
	} else if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := &fakeConn{}
	if len(d.conns) > 0 {
		conn = d.conns[0]
		d.conns = d.conns[1:]
	}
	return conn, nil
}

// fakeClock captures scheduled callbacks so tests decide when timers fire
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

// fire runs the callback even if the timer was stopped, as a timer racing Stop would
func (t *fakeTimer) fire() {
	t.f()
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// last returns the most recent timer scheduled with duration d
func (c *fakeClock) last(t *testing.T, d time.Duration) *fakeTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.timers) - 1; i >= 0; i-- {
		if c.timers[i].d == d {
			return c.timers[i]
		}
	}
	require.FailNow(t, "no timer scheduled", "duration %s", d)
	return nil
}

func (c *fakeClock) count(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.d == d {
			n++
		}
	}
	return n
}

func newTestConnection(dialer Dialer, clock *fakeClock, ping Ping) *connection {
	cfg := Config{
		URL:         "wss://electrum.example.org:50022",
		Network:     "radiant",
		Ping:        ping,
		IdleTimeout: testIdleTimeout,
	}
	return newConnection(cfg, dialer, zerolog.Nop(), clock.AfterFunc)
}

func plainPing() Ping {
	return Ping{Kind: PingPlain, Interval: testPingInterval}
}

func TestConnection_ReceiveWithoutConnection(t *testing.T) {
	dialer := &fakeDialer{}
	c := newTestConnection(dialer, &fakeClock{}, plainPing())

	data, err := c.Receive(context.Background())

	require.Error(t, err)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Contains(t, err.Error(), "connection not established")
	assert.True(t, walleterrors.IsChainError(err, walleterrors.ErrCodeContract))
	assert.False(t, walleterrors.IsRetryable(err))
	assert.Equal(t, int32(0), dialer.dials.Load())
}

func TestConnection_SendConnectsLazily(t *testing.T) {
	conn := &fakeConn{reads: []Message{Text(`{"id":1}`)}}
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	clock := &fakeClock{}
	c := newTestConnection(dialer, clock, plainPing())

	assert.Equal(t, StateDisconnected, c.State())
	require.NoError(t, c.Send(context.Background(), Text("request")))
	assert.Equal(t, StateConnected, c.State())
	assert.False(t, c.ConnectedSince().IsZero())
	assert.Equal(t, "electrum.example.org:50022", c.Host())

	data, err := c.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(data))

	require.NoError(t, c.Send(context.Background(), Text("second")))
	assert.Equal(t, int32(1), dialer.dials.Load())
	_, _, written := conn.counts()
	assert.Equal(t, 2, written)
}

func TestConnection_ConcurrentSendsShareOneDial(t *testing.T) {
	dialer := &fakeDialer{
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	c := newTestConnection(dialer, &fakeClock{}, Ping{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Send(context.Background(), Text("hello"))
		}(i)
	}

	<-dialer.entered
	// give the second sender time to join the in-flight attempt
	assert.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(dialer.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, StateConnected, c.State())
}

func TestConnection_DialFailureReachesAllWaiters(t *testing.T) {
	dialErr := errors.New("dial tcp: connection refused")
	dialer := &fakeDialer{
		err:     dialErr,
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	c := newTestConnection(dialer, &fakeClock{}, plainPing())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Send(context.Background(), Text("hello"))
		}(i)
	}
	<-dialer.entered
	time.Sleep(20 * time.Millisecond)
	close(dialer.gate)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, dialErr)
		assert.True(t, walleterrors.IsChainError(err, walleterrors.ErrCodeTransport))
		assert.True(t, walleterrors.IsRetryable(err))
	}
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnection_WaiterCancellationDoesNotCancelDial(t *testing.T) {
	dialer := &fakeDialer{
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	c := newTestConnection(dialer, &fakeClock{}, Ping{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Send(ctx, Text("hello")) }()

	<-dialer.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(dialer.gate)
	assert.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)

	require.NoError(t, c.Send(context.Background(), Text("again")))
	assert.Equal(t, int32(1), dialer.dials.Load())
}

func TestConnection_DisconnectDuringDial(t *testing.T) {
	dialer := &fakeDialer{
		entered: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	c := newTestConnection(dialer, &fakeClock{}, plainPing())

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), Text("hello")) }()

	<-dialer.entered
	c.Disconnect()

	err := <-done
	require.Error(t, err)
	assert.True(t, walleterrors.IsRetryable(err))
	assert.Equal(t, StateDisconnected, c.State())

	// the gate was never opened: the dial ended through cancellation
	close(dialer.gate)
	require.NoError(t, c.Send(context.Background(), Text("hello")))
	assert.Equal(t, int32(2), dialer.dials.Load())
}

func TestConnection_LateDialReusesEstablishedConnection(t *testing.T) {
	conn := &fakeConn{}
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	c := newTestConnection(dialer, &fakeClock{}, Ping{})
	require.NoError(t, c.Send(context.Background(), Text("hello")))

	// a sender that read Disconnected before the shared dial finished starts its own attempt
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	got, err := c.dial(gen)

	require.NoError(t, err)
	assert.Same(t, conn, got.(*fakeConn))
	assert.Equal(t, int32(1), dialer.dials.Load())
	assert.Equal(t, StateConnected, c.State())
	_, closes, _ := conn.counts()
	assert.Equal(t, 0, closes)
}

func TestConnection_DialWaitsForCancelledDial(t *testing.T) {
	stale := &fakeConn{}
	fresh := &fakeConn{}
	dialer := &fakeDialer{
		conns:    []*fakeConn{stale, fresh},
		entered:  make(chan struct{}, 4),
		gate:     make(chan struct{}),
		stubborn: true,
	}
	c := newTestConnection(dialer, &fakeClock{}, Ping{})

	first := make(chan error, 1)
	go func() { first <- c.Send(context.Background(), Text("hello")) }()
	<-dialer.entered
	c.Disconnect()

	second := make(chan error, 1)
	go func() { second <- c.Send(context.Background(), Text("hello")) }()

	select {
	case <-dialer.entered:
		t.Fatal("second dial started while the cancelled one was still in the dialer")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(1), dialer.dials.Load())

	close(dialer.gate)
	err := <-first
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSuperseded)
	require.NoError(t, <-second)

	_, staleCloses, _ := stale.counts()
	_, freshCloses, freshWritten := fresh.counts()
	assert.Equal(t, 1, staleCloses)
	assert.Equal(t, 0, freshCloses)
	assert.Equal(t, 1, freshWritten)
	assert.Equal(t, int32(2), dialer.dials.Load())
	assert.Equal(t, StateConnected, c.State())
}

func TestConnection_Keepalive(t *testing.T) {
	t.Run("plain ping on tick and reschedule", func(t *testing.T) {
		conn := &fakeConn{}
		clock := &fakeClock{}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, clock, plainPing())
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		clock.last(t, testPingInterval).fire()

		pings, _, written := conn.counts()
		assert.Equal(t, 1, pings)
		assert.Equal(t, 1, written)
		assert.Equal(t, 2, clock.count(testPingInterval))
		assert.Equal(t, StateConnected, c.State())
	})

	t.Run("message ping writes the application message", func(t *testing.T) {
		conn := &fakeConn{}
		clock := &fakeClock{}
		ping := Ping{Kind: PingMessage, Interval: testPingInterval, Message: Text(`{"method":"server.ping"}`)}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, clock, ping)
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		clock.last(t, testPingInterval).fire()

		conn.mu.Lock()
		defer conn.mu.Unlock()
		assert.Equal(t, 0, conn.pings)
		require.Len(t, conn.written, 2)
		assert.Equal(t, `{"method":"server.ping"}`, string(conn.written[1].Data))
	})

	t.Run("tick after disconnect does nothing", func(t *testing.T) {
		conn := &fakeConn{}
		clock := &fakeClock{}
		dialer := &fakeDialer{conns: []*fakeConn{conn}}
		c := newTestConnection(dialer, clock, plainPing())
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		tick := clock.last(t, testPingInterval)
		c.Disconnect()
		assert.True(t, tick.stopped.Load())

		tick.fire()

		pings, closes, _ := conn.counts()
		assert.Equal(t, 0, pings)
		assert.Equal(t, 1, closes)
		assert.Equal(t, int32(1), dialer.dials.Load())
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("ping failure drops the connection without reconnecting", func(t *testing.T) {
		conn := &fakeConn{pingErr: errors.New("write: broken pipe")}
		clock := &fakeClock{}
		dialer := &fakeDialer{conns: []*fakeConn{conn}}
		c := newTestConnection(dialer, clock, plainPing())
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		clock.last(t, testPingInterval).fire()

		_, closes, _ := conn.counts()
		assert.Equal(t, 1, closes)
		assert.Equal(t, StateDisconnected, c.State())
		assert.Equal(t, int32(1), dialer.dials.Load())
		assert.Equal(t, 1, clock.count(testPingInterval))

		// next use reconnects lazily
		require.NoError(t, c.Send(context.Background(), Text("again")))
		assert.Equal(t, int32(2), dialer.dials.Load())
	})
}

func TestConnection_IdleTimeout(t *testing.T) {
	t.Run("expiry disconnects exactly once", func(t *testing.T) {
		conn := &fakeConn{}
		clock := &fakeClock{}
		dialer := &fakeDialer{conns: []*fakeConn{conn}}
		c := newTestConnection(dialer, clock, plainPing())
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		idle := clock.last(t, testIdleTimeout)
		idle.fire()
		idle.fire()

		_, closes, _ := conn.counts()
		assert.Equal(t, 1, closes)
		assert.Equal(t, StateDisconnected, c.State())
		assert.Equal(t, int32(1), dialer.dials.Load())

		// the keepalive of the dropped connection is dead too
		clock.last(t, testPingInterval).fire()
		pings, _, _ := conn.counts()
		assert.Equal(t, 0, pings)
	})

	t.Run("send before expiry re-arms the timer", func(t *testing.T) {
		conn := &fakeConn{}
		clock := &fakeClock{}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, clock, Ping{})
		require.NoError(t, c.Send(context.Background(), Text("hello")))
		first := clock.last(t, testIdleTimeout)

		require.NoError(t, c.Send(context.Background(), Text("just in time")))
		second := clock.last(t, testIdleTimeout)
		require.NotSame(t, first, second)
		assert.True(t, first.stopped.Load())

		first.fire()
		assert.Equal(t, StateConnected, c.State())

		second.fire()
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("receive re-arms the timer", func(t *testing.T) {
		conn := &fakeConn{reads: []Message{Binary([]byte{0x01})}}
		clock := &fakeClock{}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, clock, Ping{})
		require.NoError(t, c.Send(context.Background(), Text("hello")))
		first := clock.last(t, testIdleTimeout)

		data, err := c.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01}, data)

		first.fire()
		assert.Equal(t, StateConnected, c.State())
		// connect, send and receive each armed the timer
		assert.Equal(t, 3, clock.count(testIdleTimeout))
	})
}

func TestConnection_ReceiveErrors(t *testing.T) {
	t.Run("invalid utf-8 text frame", func(t *testing.T) {
		conn := &fakeConn{reads: []Message{{Type: TextMessage, Data: []byte{0xff, 0xfe}}}}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, &fakeClock{}, Ping{})
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		_, err := c.Receive(context.Background())
		assert.ErrorIs(t, err, ErrInvalidFrame)
		assert.True(t, walleterrors.IsChainError(err, walleterrors.ErrCodeTransport))
		assert.Equal(t, StateDisconnected, c.State())
		_, closes, _ := conn.counts()
		assert.Equal(t, 1, closes)
	})

	t.Run("next request does not read the answer of the failed one", func(t *testing.T) {
		first := &fakeConn{reads: []Message{{Type: TextMessage, Data: []byte{0xff}}, Text("answer-to-req1")}}
		second := &fakeConn{reads: []Message{Text("answer-to-req2")}}
		dialer := &fakeDialer{conns: []*fakeConn{first, second}}
		c := newTestConnection(dialer, &fakeClock{}, Ping{})

		require.NoError(t, c.Send(context.Background(), Text("req1")))
		_, err := c.Receive(context.Background())
		require.ErrorIs(t, err, ErrInvalidFrame)

		require.NoError(t, c.Send(context.Background(), Text("req2")))
		data, err := c.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "answer-to-req2", string(data))
		assert.Equal(t, int32(2), dialer.dials.Load())
	})

	t.Run("unknown frame type", func(t *testing.T) {
		conn := &fakeConn{reads: []Message{{Type: MessageType(9)}}}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, &fakeClock{}, Ping{})
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		_, err := c.Receive(context.Background())
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("read error drops the connection", func(t *testing.T) {
		readErr := errors.New("websocket: close 1006 (abnormal closure)")
		conn := &fakeConn{readErr: readErr}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, &fakeClock{}, Ping{})
		require.NoError(t, c.Send(context.Background(), Text("hello")))

		_, err := c.Receive(context.Background())
		assert.ErrorIs(t, err, readErr)
		assert.True(t, walleterrors.IsRetryable(err))
		assert.Equal(t, StateDisconnected, c.State())

		_, err = c.Receive(context.Background())
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("write error drops the connection", func(t *testing.T) {
		writeErr := errors.New("write: connection reset by peer")
		conn := &fakeConn{writeErr: writeErr}
		c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, &fakeClock{}, Ping{})

		err := c.Send(context.Background(), Text("hello"))
		assert.ErrorIs(t, err, writeErr)
		assert.True(t, walleterrors.IsChainError(err, walleterrors.ErrCodeTransport))
		assert.Equal(t, StateDisconnected, c.State())
	})
}

func TestConnection_DisconnectIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	c := newTestConnection(&fakeDialer{conns: []*fakeConn{conn}}, &fakeClock{}, plainPing())

	c.Disconnect()
	require.NoError(t, c.Send(context.Background(), Text("hello")))
	c.Disconnect()
	c.Disconnect()

	_, closes, _ := conn.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, c.ConnectedSince().IsZero())
}

func TestConnection_Close(t *testing.T) {
	conn := &fakeConn{}
	c := New(Config{URL: "wss://electrum.example.org"}, &fakeDialer{conns: []*fakeConn{conn}}, zerolog.Nop())

	require.NoError(t, c.Send(context.Background(), Text("hello")))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err := c.Send(context.Background(), Text("after close"))
	assert.ErrorIs(t, err, ErrClosed)
	_, closes, _ := conn.counts()
	assert.Equal(t, 1, closes)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "text", TextMessage.String())
	assert.Equal(t, "binary", BinaryMessage.String())
	assert.Equal(t, "unknown", MessageType(0).String())
	assert.Equal(t, "connected", StateConnected.String())
}
