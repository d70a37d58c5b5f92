package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amock "github.com/voxpipe/voxpipe/pkg/audio/mock"
	tmock "github.com/voxpipe/voxpipe/pkg/transport/mock"
)

// testEngine bundles an engine with its mock collaborators.
type testEngine struct {
	eng    *Engine
	source *amock.CaptureSource
	sink   *amock.PlaybackSink
	dialer *tmock.Dialer
	done   chan error
}

// newTestEngine builds an engine with millisecond-scale timings so lifecycle
// transitions are observable without real backoff sleeps.
func newTestEngine(dialer *tmock.Dialer, maxRetries int) *testEngine {
	te := &testEngine{
		source: amock.NewCaptureSource(8),
		sink:   &amock.PlaybackSink{WriteSignal: make(chan struct{}, 32)},
		dialer: dialer,
		done:   make(chan error, 1),
	}
	te.eng = New(Config{
		URL:               "ws://127.0.0.1:8000/v1",
		ProtocolVersion:   "2.0",
		SampleRate:        24000,
		Channels:          1,
		FramePeriod:       2 * time.Millisecond,
		QueueCapacity:     30,
		KeepaliveInterval: 50 * time.Millisecond,
		MaxRetries:        maxRetries,
		BackoffCap:        8 * time.Millisecond,
		DialTimeout:       time.Second,
	}, &amock.Codec{}, te.source, te.sink, dialer)
	te.eng.backoffUnit = time.Millisecond
	return te
}

// start runs the engine in the background; the result arrives on te.done.
func (te *testEngine) start(ctx context.Context) {
	go func() { te.done <- te.eng.Run(ctx) }()
}

// wait returns the Run result or fails the test after a timeout.
func (te *testEngine) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-te.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop in time")
		return nil
	}
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBackoffDelay_CappedExponential(t *testing.T) {
	t.Parallel()

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := backoffDelay(i+1, time.Second, 30*time.Second); got != w {
			t.Errorf("backoffDelay(%d) = %v; want %v", i+1, got, w)
		}
	}
}

func TestEngine_HandshakeHeaders(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")

	call := te.dialer.LastCall()
	if got := call.Header.Get("Protocol-Version"); got != "2.0" {
		t.Errorf("Protocol-Version = %q; want 2.0", got)
	}
	if got := call.Header.Get("Audio-Config"); got != "24000/1" {
		t.Errorf("Audio-Config = %q; want 24000/1", got)
	}
	if call.URL != "ws://127.0.0.1:8000/v1" {
		t.Errorf("dialed %q", call.URL)
	}

	te.eng.Stop()
	te.wait(t)
}

func TestEngine_CaptureFlowsToConnection(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")

	te.source.Emit(frame(0xC4))
	conn := te.dialer.LastCall().Conn
	waitFor(t, func() bool { return len(conn.SentFrames()) > 0 }, "captured frame never sent")

	if got := conn.SentFrames()[0][0]; got != 0xC4 {
		t.Errorf("sent marker = %d; want 0xC4", got)
	}

	te.eng.Stop()
	te.wait(t)
}

func TestEngine_InboundFlowsToPlayback(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")

	te.dialer.LastCall().Handler.OnMessage([]byte{0x5E}, true)

	select {
	case <-te.sink.WriteSignal:
	case <-time.After(5 * time.Second):
		t.Fatal("inbound frame never reached playback")
	}
	if got := te.sink.WrittenFrames()[0].PCM[0]; got != 0x5E {
		t.Errorf("played marker = %d; want 0x5E", got)
	}

	te.eng.Stop()
	te.wait(t)
}

func TestEngine_GracefulStop(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")
	conn := te.dialer.LastCall().Conn

	te.eng.Stop()
	if err := te.wait(t); err != nil {
		t.Errorf("Run = %v; want nil on graceful stop", err)
	}

	if got := te.eng.State(); got != StateDisconnected {
		t.Errorf("state after stop = %s; want DISCONNECTED", got)
	}
	if !conn.Closed() {
		t.Error("connection not closed on stop")
	}
	if len(conn.CloseCalls) != 1 || conn.CloseCalls[0].Code != statusNormalClosure {
		t.Errorf("close calls = %+v; want one normal closure", conn.CloseCalls)
	}
	if te.source.CallCountClose != 1 {
		t.Errorf("capture source closed %d times; want 1", te.source.CallCountClose)
	}
	if te.sink.CallCountClose != 1 {
		t.Errorf("playback sink closed %d times; want 1", te.sink.CallCountClose)
	}

	// Stop is idempotent.
	te.eng.Stop()
	if te.source.CallCountClose != 1 {
		t.Errorf("second Stop closed the source again")
	}
}

func TestEngine_ReconnectsAfterConnectionFailure(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")
	first := te.dialer.LastCall().Conn

	te.dialer.LastCall().Handler.OnError(errors.New("read: connection reset"))

	waitFor(t, func() bool { return te.dialer.CallCount() == 2 }, "no reconnect attempt")
	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never reopened")

	if !first.Closed() {
		t.Error("failed connection was not closed")
	}

	te.eng.Stop()
	te.wait(t)
}

func TestEngine_ReconnectsAfterPeerClose(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")

	te.dialer.LastCall().Handler.OnClose(1001, "server going away")

	waitFor(t, func() bool { return te.dialer.CallCount() == 2 }, "no reconnect after peer close")

	te.eng.Stop()
	te.wait(t)
}

func TestEngine_RetriesExhausted(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")
	dialer := &tmock.Dialer{
		DialErrors: []error{dialErr, dialErr, dialErr, dialErr, dialErr, dialErr},
	}
	te := newTestEngine(dialer, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	err := te.wait(t)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run = %v; want ErrRetriesExhausted", err)
	}
	if got := dialer.CallCount(); got != 3 {
		t.Errorf("dial attempts = %d; want 3", got)
	}
	if got := te.eng.State(); got != StateDisconnected {
		t.Errorf("state = %s; want DISCONNECTED", got)
	}
	if te.source.CallCountClose != 1 || te.sink.CallCountClose != 1 {
		t.Error("devices not released after retry exhaustion")
	}
}

func TestEngine_RetryBudgetResetsOnSuccess(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")
	// Fail, succeed, fail, succeed. With a budget of 2 and no reset, the
	// second failure would exhaust the budget.
	dialer := &tmock.Dialer{DialErrors: []error{dialErr, nil, dialErr}}
	te := newTestEngine(dialer, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	te.start(ctx)

	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never opened")
	te.dialer.LastCall().Handler.OnError(errors.New("read: connection reset"))

	waitFor(t, func() bool { return te.dialer.CallCount() == 4 }, "engine gave up early")
	waitFor(t, func() bool { return te.eng.State() == StateOpen }, "engine never reopened")

	te.eng.Stop()
	if err := te.wait(t); err != nil {
		t.Errorf("Run = %v; want nil", err)
	}
}

func TestEngine_KeepaliveFailureReportsConnectionDead(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	te.eng.cfg.KeepaliveInterval = 5 * time.Millisecond

	conn := &tmock.Conn{PingError: errors.New("pong timeout")}
	handler := &sessionHandler{fail: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go te.eng.keepaliveLoop(ctx, conn, handler)

	select {
	case err := <-handler.fail:
		if err == nil {
			t.Fatal("nil failure from keepalive")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("keepalive failure never reported")
	}
}

func TestEngine_CaptureStartErrorAborts(t *testing.T) {
	t.Parallel()

	te := newTestEngine(&tmock.Dialer{}, 5)
	te.source.StartError = fmt.Errorf("no input device")

	err := te.eng.Run(context.Background())
	if err == nil {
		t.Fatal("Run = nil; want capture start error")
	}
	if te.dialer.CallCount() != 0 {
		t.Error("engine dialed despite capture failure")
	}
	if te.sink.CallCountClose != 1 {
		t.Error("sink not released after capture failure")
	}
}
