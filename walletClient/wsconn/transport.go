package wsconn

import (
	"context"
	"net/http"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks . Dialer,Conn

// MessageType is the frame type of a message; values match RFC 6455 opcodes.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one application frame
type Message struct {
	Type MessageType
	Data []byte
}

// Text builds a text message
func Text(s string) Message {
	return Message{Type: TextMessage, Data: []byte(s)}
}

// Binary builds a binary message
func Binary(b []byte) Message {
	return Message{Type: BinaryMessage, Data: b}
}

// Conn is an established duplex transport connection.
// WriteMessage and Ping may be called concurrently with ReadMessage.
type Conn interface {
	WriteMessage(ctx context.Context, msg Message) error
	ReadMessage(ctx context.Context) (Message, error)
	// Ping sends a transport level ping frame
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens transport connections. ctx bounds the handshake only.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}
