package audio

import "context"

// CaptureSource produces PCM frames from an input device on the device's own
// schedule. The engine reads from Frames and must never block the source:
// delivery into the engine's queue is drop-on-overflow.
//
// Implementations must be safe for concurrent use.
type CaptureSource interface {
	// Start begins capture. Frames are delivered on the Frames channel until
	// ctx is cancelled or Close is called.
	Start(ctx context.Context) error

	// Frames returns the channel on which captured frames arrive. The channel
	// is closed when capture stops.
	Frames() <-chan Frame

	// Close stops capture and releases the device. Safe to call more than
	// once; subsequent calls return nil.
	Close() error
}

// PlaybackSink consumes PCM frames for immediate output. Write may apply
// bounded backpressure (the device buffer) but must not block indefinitely;
// a sink that cannot keep up should drop rather than stall the engine.
//
// Implementations must be safe for concurrent use.
type PlaybackSink interface {
	// Write queues one frame for playback.
	Write(f Frame) error

	// Close stops playback and releases the device. Safe to call more than
	// once; subsequent calls return nil.
	Close() error
}
