// Package engine implements the duplex streaming core: a supervised
// connection lifecycle that captures, encodes, and paces outbound audio
// frames over a persistent transport while decoding inbound frames for
// playback, with bounded queues on both paths and capped exponential
// backoff on connection loss.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/transport"
)

// ErrRetriesExhausted is returned by Run when the reconnection budget is
// spent without re-establishing a session.
var ErrRetriesExhausted = errors.New("engine: reconnection retries exhausted")

// WebSocket close codes sent on teardown.
const (
	statusNormalClosure = 1000
	statusGoingAway     = 1001
)

// pingTimeout bounds one keepalive round trip. A peer that cannot answer a
// ping within this window is treated as dead.
const pingTimeout = 10 * time.Second

// Config carries the streaming parameters the engine needs. It is typically
// assembled from the application config by the caller.
type Config struct {
	// URL is the server endpoint, e.g. "ws://127.0.0.1:8000/v1".
	URL string
	// ProtocolVersion is advertised in the Protocol-Version handshake header.
	ProtocolVersion string

	SampleRate int
	Channels   int
	// FramePeriod is the nominal duration of one frame and the pacing
	// interval for outbound sends.
	FramePeriod time.Duration

	// QueueCapacity bounds each of the capture and playback queues.
	QueueCapacity int

	KeepaliveInterval time.Duration
	MaxRetries        int
	BackoffCap        time.Duration
	DialTimeout       time.Duration
}

// Engine owns the full streaming lifecycle. Create one with New, drive it
// with Run, and stop it by cancelling the context or calling Stop.
type Engine struct {
	cfg     Config
	codec   audio.Codec
	source  audio.CaptureSource
	sink    audio.PlaybackSink
	dialer  transport.Dialer
	metrics *observe.Metrics
	log     *slog.Logger

	in  *FrameQueue
	out *FrameQueue

	state connState

	// backoffUnit scales the exponential delay. One second in production;
	// tests shrink it to keep backoff sequences observable without real
	// sleeps.
	backoffUnit time.Duration

	stopCh      chan struct{}
	stopOnce    sync.Once
	cleanupOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics overrides the metrics sink, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New assembles an engine from its collaborators. The source and sink are
// owned by the engine from this point on and are closed when Run returns.
func New(cfg Config, codec audio.Codec, source audio.CaptureSource, sink audio.PlaybackSink, dialer transport.Dialer, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		codec:       codec,
		source:      source,
		sink:        sink,
		dialer:      dialer,
		metrics:     observe.DefaultMetrics(),
		log:         slog.Default(),
		in:          NewFrameQueue(cfg.QueueCapacity),
		out:         NewFrameQueue(cfg.QueueCapacity),
		backoffUnit: time.Second,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	return e.state.get()
}

// Dropped reports the total frames discarded on the capture and playback
// queues respectively.
func (e *Engine) Dropped() (capture, playback int64) {
	return e.in.Dropped(), e.out.Dropped()
}

// Stop requests a graceful shutdown. It only signals; Run performs the
// teardown and releases resources before returning.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Run starts capture and drives the connect/stream/reconnect loop until ctx
// is cancelled, Stop is called, or the retry budget is exhausted. Owned
// resources are released exactly once before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := e.source.Start(ctx); err != nil {
		e.cleanup()
		return fmt.Errorf("starting capture: %w", err)
	}

	var feeder sync.WaitGroup
	feeder.Add(1)
	go func() {
		defer feeder.Done()
		e.captureLoop(ctx)
	}()

	defer func() {
		e.state.set(StateClosing)
		cancel()
		feeder.Wait()
		e.cleanup()
		// Capture started, so its channel closes on Close; release any
		// frames still buffered in it.
		audio.Drain(e.source.Frames())
		e.state.set(StateDisconnected)
		e.log.Info("engine stopped")
	}()

	retries := 0
	for {
		e.state.set(StateConnecting)
		conn, handler, err := e.connect(ctx)
		if err == nil {
			e.state.set(StateOpen)
			retries = 0
			e.log.Info("session established", "url", e.cfg.URL)
			err = e.runSession(ctx, conn, handler)
			if err == nil {
				// Graceful stop.
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		e.state.set(StateFailed)
		retries++
		e.metrics.Reconnects.Add(ctx, 1)
		delay := backoffDelay(retries, e.backoffUnit, e.cfg.BackoffCap)
		e.log.Warn("connection lost, backing off",
			"error", err, "attempt", retries, "max", e.cfg.MaxRetries, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if retries >= e.cfg.MaxRetries {
			e.log.Error("retry budget exhausted", "attempts", retries)
			return ErrRetriesExhausted
		}
	}
}

// connect dials the server with the handshake headers and a bounded timeout.
func (e *Engine) connect(ctx context.Context) (transport.Conn, *sessionHandler, error) {
	handler := &sessionHandler{fail: make(chan error, 1)}
	handler.dispatch = newDispatcher(e.codec, e.out, e.metrics, e.log, e.cfg.SampleRate, e.cfg.Channels)

	header := http.Header{}
	header.Set("Protocol-Version", e.cfg.ProtocolVersion)
	header.Set("Audio-Config", fmt.Sprintf("%d/%d", e.cfg.SampleRate, e.cfg.Channels))

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	defer cancel()

	start := time.Now()
	conn, err := e.dialer.Dial(dialCtx, e.cfg.URL, header, handler)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", e.cfg.URL, err)
	}
	e.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	return conn, handler, nil
}

// runSession runs the per-session loops until the connection fails or ctx is
// cancelled. All session goroutines are joined and the connection is closed
// before it returns. A nil return means a graceful stop.
func (e *Engine) runSession(ctx context.Context, conn transport.Conn, handler *sessionHandler) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.metrics.ActiveConnections.Add(ctx, 1)
	defer e.metrics.ActiveConnections.Add(ctx, -1)

	p := &pacer{
		period:  e.cfg.FramePeriod,
		queue:   e.in,
		codec:   e.codec,
		conn:    conn,
		metrics: e.metrics,
		log:     e.log,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		p.run(sessCtx)
	}()
	go func() {
		defer wg.Done()
		e.keepaliveLoop(sessCtx, conn, handler)
	}()
	go func() {
		defer wg.Done()
		e.playbackLoop(sessCtx)
	}()

	var failure error
	select {
	case <-ctx.Done():
	case failure = <-handler.fail:
	}
	cancel()
	wg.Wait()

	if failure == nil {
		conn.Close(statusNormalClosure, "client shutting down")
	} else {
		conn.Close(statusGoingAway, "connection failed")
	}
	return failure
}

// captureLoop moves frames from the capture source into the outbound queue
// for the engine's whole lifetime, so audio buffered during a reconnect is
// sent once the session is back.
func (e *Engine) captureLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-e.source.Frames():
			if !ok {
				return
			}
			if !e.in.Offer(frame) {
				e.metrics.RecordDrop(ctx, "capture", "overflow")
				continue
			}
			e.metrics.QueueDepth.Add(ctx, 1, queueAttr("capture"))
		}
	}
}

// keepaliveLoop pings the server at a fixed interval. A failed ping is
// treated as a dead connection and reported to the session's failure channel.
func (e *Engine) keepaliveLoop(ctx context.Context, conn transport.Conn, handler *sessionHandler) {
	ticker := time.NewTicker(e.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				handler.failed(fmt.Errorf("keepalive ping: %w", err))
				return
			}
		}
	}
}

// playbackLoop drains the inbound queue into the playback sink, sleeping on
// the queue's wake channel while it is empty.
func (e *Engine) playbackLoop(ctx context.Context) {
	for {
		frame, ok := e.out.Take()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-e.out.Wake():
			}
			continue
		}
		e.metrics.QueueDepth.Add(ctx, -1, queueAttr("playback"))
		if err := e.sink.Write(frame); err != nil {
			e.log.Warn("playback write failed, dropping frame", "error", err)
			e.metrics.RecordDrop(ctx, "playback", "write_error")
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// cleanup releases the capture source and playback sink exactly once.
func (e *Engine) cleanup() {
	e.cleanupOnce.Do(func() {
		if err := e.source.Close(); err != nil {
			e.log.Warn("closing capture source", "error", err)
		}
		if err := e.sink.Close(); err != nil {
			e.log.Warn("closing playback sink", "error", err)
		}
	})
}

// backoffDelay computes the capped exponential delay for the given retry
// attempt: unit * 2^attempt, clamped to limit.
func backoffDelay(attempt int, unit, limit time.Duration) time.Duration {
	if attempt > 30 {
		return limit
	}
	d := unit << uint(attempt)
	if d > limit || d <= 0 {
		return limit
	}
	return d
}

// sessionHandler receives transport events for a single session and funnels
// the first failure into a channel the supervise loop selects on. Events
// from an already-failed session are ignored.
type sessionHandler struct {
	dispatch *dispatcher
	fail     chan error
	once     sync.Once
}

var _ transport.Handler = (*sessionHandler)(nil)

func (h *sessionHandler) OnMessage(data []byte, binary bool) {
	h.dispatch.dispatch(data, binary)
}

func (h *sessionHandler) OnError(err error) {
	h.failed(fmt.Errorf("transport: %w", err))
}

func (h *sessionHandler) OnClose(code int, reason string) {
	h.failed(fmt.Errorf("connection closed by peer: code %d %q", code, reason))
}

func (h *sessionHandler) failed(err error) {
	h.once.Do(func() { h.fail <- err })
}

func queueAttr(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("queue", name))
}
