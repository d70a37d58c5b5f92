// Package ws implements the transport interfaces over WebSocket.
//
// Binary WebSocket messages carry compressed audio frames; text messages
// carry JSON control payloads. Connection-layer ping/pong doubles as the
// engine's keepalive probe. Peer-initiated closes and read failures are
// surfaced through the [transport.Handler] callbacks.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/voxpipe/voxpipe/pkg/transport"
)

// Compile-time interface assertions.
var _ transport.Dialer = (*Dialer)(nil)
var _ transport.Conn = (*Conn)(nil)

// Dialer implements [transport.Dialer] using WebSocket.
type Dialer struct{}

// NewDialer creates a WebSocket Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial connects to url with the given handshake header and starts the read
// loop that feeds h. A successful return means the connection is open.
func (d *Dialer) Dial(ctx context.Context, url string, header http.Header, h Handler) (transport.Conn, error) {
	wsConn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:    wsConn,
		handler: h,
		ctx:     connCtx,
		cancel:  cancel,
	}
	go c.readLoop()

	return c, nil
}

// Handler is an alias re-exported for readability at Dial call sites.
type Handler = transport.Handler

// Conn is an established WebSocket connection. It implements [transport.Conn].
type Conn struct {
	conn    *websocket.Conn
	handler transport.Handler

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	mu       sync.Mutex
	isClosed bool
}

// Send transmits one binary message.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.isShutdown() {
		return transport.ErrClosed
	}
	if err := c.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("ws: send binary: %w", err)
	}
	return nil
}

// SendText transmits one text message.
func (c *Conn) SendText(ctx context.Context, text string) error {
	if c.isShutdown() {
		return transport.ErrClosed
	}
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		return fmt.Errorf("ws: send text: %w", err)
	}
	return nil
}

// Ping sends a WebSocket ping and waits for the pong.
func (c *Conn) Ping(ctx context.Context) error {
	if c.isShutdown() {
		return transport.ErrClosed
	}
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("ws: ping: %w", err)
	}
	return nil
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isClosed = true
		c.mu.Unlock()
		c.cancel()
		c.conn.Close(websocket.StatusCode(code), reason)
	})
	return nil
}

// isShutdown reports whether Close has been called locally.
func (c *Conn) isShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed
}

// readLoop reads inbound messages and dispatches them to the handler until
// the connection fails, the peer closes, or Close is called locally.
func (c *Conn) readLoop() {
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			// Local close — no callback, the caller initiated it.
			if c.isShutdown() {
				return
			}
			if status := websocket.CloseStatus(err); status != -1 {
				c.handler.OnClose(int(status), "")
				return
			}
			c.handler.OnError(err)
			return
		}
		c.handler.OnMessage(data, typ == websocket.MessageBinary)
	}
}
