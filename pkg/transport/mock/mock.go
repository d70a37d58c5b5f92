// Package mock provides in-memory mock implementations of the
// [transport.Dialer] and [transport.Conn] interfaces for use in unit tests.
//
// The mocks record sends and pings, let tests inject failures per call, and
// expose the [transport.Handler] captured at Dial time so tests can simulate
// inbound messages, errors, and peer closes.
package mock

import (
	"context"
	"net/http"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/transport"
)

// Compile-time interface assertions.
var _ transport.Dialer = (*Dialer)(nil)
var _ transport.Conn = (*Conn)(nil)

// ─── Conn ─────────────────────────────────────────────────────────────────────

// Conn is a mock implementation of [transport.Conn].
// Set the Error fields before use; inspect the recorded calls after.
type Conn struct {
	mu sync.Mutex

	// SendError, when non-nil, is returned by every Send call.
	SendError error

	// SendTextError, when non-nil, is returned by every SendText call.
	SendTextError error

	// PingError, when non-nil, is returned by every Ping call.
	PingError error

	// Sent records the payload of every successful Send, in order.
	Sent [][]byte

	// SentText records the payload of every successful SendText, in order.
	SentText []string

	// PingCount records how many times Ping was called.
	PingCount int

	// CloseCalls records the (code, reason) of every Close invocation.
	CloseCalls []CloseCall

	// SendSignal, when non-nil, receives a struct{} after each successful
	// Send. Tests use it to wait for paced sends without polling.
	SendSignal chan struct{}

	closed bool
}

// CloseCall records the arguments of a single [Conn.Close] invocation.
type CloseCall struct {
	Code   int
	Reason string
}

// Send implements [transport.Conn]. Records data on success.
func (c *Conn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	if c.SendError != nil {
		err := c.SendError
		c.mu.Unlock()
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.Sent = append(c.Sent, buf)
	sig := c.SendSignal
	c.mu.Unlock()

	if sig != nil {
		sig <- struct{}{}
	}
	return nil
}

// SendText implements [transport.Conn]. Records text on success.
func (c *Conn) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	if c.SendTextError != nil {
		return c.SendTextError
	}
	c.SentText = append(c.SentText, text)
	return nil
}

// Ping implements [transport.Conn].
func (c *Conn) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PingCount++
	if c.closed {
		return transport.ErrClosed
	}
	return c.PingError
}

// Close implements [transport.Conn]. Records the call; always returns nil.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.CloseCalls = append(c.CloseCalls, CloseCall{Code: code, Reason: reason})
	return nil
}

// SentFrames returns a snapshot of all binary payloads sent so far.
func (c *Conn) SentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.Sent))
	copy(out, c.Sent)
	return out
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ─── Dialer ───────────────────────────────────────────────────────────────────

// DialCall records the arguments of a single [Dialer.Dial] invocation.
type DialCall struct {
	// URL is the url argument passed to Dial.
	URL string

	// Header is the handshake header passed to Dial.
	Header http.Header

	// Handler is the handler registered for the connection. Tests invoke its
	// callbacks to simulate inbound traffic and connection failures.
	Handler transport.Handler

	// Conn is the mock connection returned for this call (nil if Dial failed).
	Conn *Conn
}

// Dialer is a mock implementation of [transport.Dialer]. Each successful Dial
// returns a fresh [Conn]. Set DialErrors to fail the first len(DialErrors)
// attempts in order (a nil entry means success); attempts beyond the slice
// succeed.
type Dialer struct {
	mu sync.Mutex

	// DialErrors holds the per-attempt error schedule.
	DialErrors []error

	// DialCalls records all Dial invocations, in order.
	DialCalls []DialCall
}

// Dial implements [transport.Dialer].
func (d *Dialer) Dial(_ context.Context, url string, header http.Header, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := len(d.DialCalls)
	call := DialCall{URL: url, Header: header, Handler: h}

	if attempt < len(d.DialErrors) && d.DialErrors[attempt] != nil {
		d.DialCalls = append(d.DialCalls, call)
		return nil, d.DialErrors[attempt]
	}

	conn := &Conn{}
	call.Conn = conn
	d.DialCalls = append(d.DialCalls, call)
	return conn, nil
}

// LastCall returns the most recent Dial invocation, or nil if none.
func (d *Dialer) LastCall() *DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.DialCalls) == 0 {
		return nil
	}
	return &d.DialCalls[len(d.DialCalls)-1]
}

// CallCount returns the number of Dial invocations so far.
func (d *Dialer) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DialCalls)
}
