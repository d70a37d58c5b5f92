package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voxpipe/voxpipe/internal/observe"
)

func TestNewMetrics_CreatesAllInstruments(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Exercise every instrument once; a miswired instrument panics or
	// silently no-ops, and this at least catches the former.
	ctx := context.Background()
	m.SendInterval.Record(ctx, 0.06)
	m.ConnectDuration.Record(ctx, 0.2)
	m.FramesSent.Add(ctx, 1)
	m.FramesReceived.Add(ctx, 1)
	m.Reconnects.Add(ctx, 1)
	m.ActiveConnections.Add(ctx, 1)
	m.RecordDrop(ctx, "capture", "overflow")
	m.RecordCodecError(ctx, "encode")
	m.RecordControlMessage(ctx, "tts")
}

func TestDefaultMetrics_StableAcrossCalls(t *testing.T) {
	t.Parallel()

	a := observe.DefaultMetrics()
	b := observe.DefaultMetrics()
	if a == nil || a != b {
		t.Error("DefaultMetrics must return one shared instance")
	}
}

func TestInitProvider_ReturnsShutdown(t *testing.T) {
	t.Parallel()

	shutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:    "voxpipe-test",
		ServiceVersion: "0.0.0",
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
