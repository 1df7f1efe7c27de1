package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const controlWriteTimeout = 5 * time.Second

// GorillaDialer dials WebSocket connections with gorilla/websocket
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

// NewGorillaDialer returns a dialer honoring proxy environment variables
func NewGorillaDialer(handshakeTimeout time.Duration) *GorillaDialer {
	return &GorillaDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial opens a WebSocket connection to url
func (d *GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, resp, err := d.Dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &gorillaConn{ws: ws}, nil
}

// gorillaConn adapts *websocket.Conn, which allows one concurrent reader and one
// concurrent writer, to Conn
type gorillaConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	readMu  sync.Mutex
}

func (c *gorillaConn) WriteMessage(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(int(msg.Type), msg.Data)
}

func (c *gorillaConn) ReadMessage(ctx context.Context) (Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return Message{}, err
	}
	// unblock the read when ctx is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	messageType, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, ctxErr
		}
		return Message{}, err
	}
	return Message{Type: MessageType(messageType), Data: data}, nil
}

func (c *gorillaConn) Ping(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(controlWriteTimeout)
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *gorillaConn) Close() error {
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}
