// Package transport defines the full-duplex message channel abstraction the
// streaming engine talks over.
//
// The two primary abstractions are:
//
//   - [Dialer] — establishes a connection to the peer and wires inbound
//     traffic to a [Handler].
//   - [Conn] — an established session: binary/text sends, keepalive pings,
//     and teardown.
//
// A successful Dial is the "connection open" event; everything that happens
// after arrives through the [Handler] callbacks. The concrete WebSocket
// implementation lives in transport/ws; tests use the double in transport/mock.
package transport

import (
	"context"
	"errors"
	"net/http"
)

// ErrClosed is returned by [Conn] operations after the connection has been
// closed, either locally or by the peer.
var ErrClosed = errors.New("transport: connection closed")

// Handler receives inbound traffic and lifecycle events for one connection.
// Callbacks are invoked sequentially from the connection's read loop and must
// not block; a slow handler stalls inbound message delivery.
type Handler interface {
	// OnMessage delivers one inbound message. binary is true for binary
	// payloads (audio) and false for text payloads (control messages).
	OnMessage(data []byte, binary bool)

	// OnError reports a connection-level failure. The connection is unusable
	// afterwards; no further callbacks follow.
	OnError(err error)

	// OnClose reports that the peer closed the connection. code is the
	// protocol close status; reason may be empty. No further callbacks follow.
	OnClose(code int, reason string)
}

// Conn is an established full-duplex connection.
//
// Implementations must be safe for concurrent use.
type Conn interface {
	// Send transmits one binary message.
	Send(ctx context.Context, data []byte) error

	// SendText transmits one text message.
	SendText(ctx context.Context, text string) error

	// Ping sends a keepalive probe and waits for the peer's acknowledgement.
	Ping(ctx context.Context) error

	// Close tears down the connection with the given status code and reason.
	// Safe to call more than once; subsequent calls return nil.
	Close(code int, reason string) error
}

// Dialer establishes connections to a streaming peer.
//
// Implementations must be safe for concurrent use.
type Dialer interface {
	// Dial connects to url, sending header with the handshake, and starts
	// delivering inbound traffic to h. The supplied ctx governs the handshake
	// only; the returned Conn lives until Close or a connection failure.
	Dial(ctx context.Context, url string, header http.Header, h Handler) (Conn, error)
}
