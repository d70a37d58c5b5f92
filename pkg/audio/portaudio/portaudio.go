// Package portaudio implements the audio.CaptureSource and audio.PlaybackSink
// interfaces on top of PortAudio default devices.
//
// Call [Initialize] once before opening any stream and [Terminate] when the
// process shuts down.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/voxpipe/voxpipe/pkg/audio"
)

// Compile-time interface assertions.
var _ audio.CaptureSource = (*Capture)(nil)
var _ audio.PlaybackSink = (*Playback)(nil)

const captureChannelBuffer = 8

// Initialize sets up the PortAudio runtime. Must be called once per process
// before any stream is opened.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate tears down the PortAudio runtime.
func Terminate() error {
	return portaudio.Terminate()
}

// Config holds the stream parameters shared by capture and playback.
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// FrameSize is the number of samples per channel per frame.
	FrameSize int
}

// ── Capture ───────────────────────────────────────────────────────────────────

// Capture reads fixed-size PCM frames from the default input device and
// delivers them on a buffered channel. Frames that cannot be delivered
// because the consumer is behind are dropped rather than stalling the device.
type Capture struct {
	cfg    Config
	stream *portaudio.Stream
	buf    []int16
	frames chan audio.Frame

	started   time.Time
	closeOnce sync.Once
	done      chan struct{}
}

// NewCapture opens the default input device with the given configuration.
func NewCapture(cfg Config) (*Capture, error) {
	c := &Capture{
		cfg:    cfg,
		buf:    make([]int16, cfg.FrameSize*cfg.Channels),
		frames: make(chan audio.Frame, captureChannelBuffer),
		done:   make(chan struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FrameSize, c.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// Start begins capture and spawns the read loop. Frames arrive on [Capture.Frames]
// until ctx is cancelled or [Capture.Close] is called.
func (c *Capture) Start(ctx context.Context) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	c.started = time.Now()
	go c.readLoop(ctx)
	return nil
}

// Frames returns the channel on which captured frames arrive.
func (c *Capture) Frames() <-chan audio.Frame {
	return c.frames
}

// Close stops capture and releases the input device. Safe to call more than once.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if sErr := c.stream.Stop(); sErr != nil {
			err = sErr
		}
		if cErr := c.stream.Close(); cErr != nil && err == nil {
			err = cErr
		}
	})
	return err
}

// readLoop blocks on the device for each frame period and forwards complete
// frames. It owns the frames channel and closes it on exit.
func (c *Capture) readLoop(ctx context.Context) {
	defer close(c.frames)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			slog.Warn("portaudio: input read error", "error", err)
			continue
		}

		frame := audio.Frame{
			PCM:        audio.Int16sToBytes(c.buf),
			SampleRate: c.cfg.SampleRate,
			Channels:   c.cfg.Channels,
			Timestamp:  time.Since(c.started),
		}

		select {
		case c.frames <- frame:
		default:
			// Consumer is behind — drop rather than stall the device.
		}
	}
}

// ── Playback ──────────────────────────────────────────────────────────────────

// Playback writes fixed-size PCM frames to the default output device.
// Write blocks only for the device buffer; undersized frames are zero-padded
// and oversized frames truncated to the configured frame size.
type Playback struct {
	cfg    Config
	stream *portaudio.Stream
	buf    []int16

	mu        sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// NewPlayback opens the default output device with the given configuration
// and starts the stream.
func NewPlayback(cfg Config) (*Playback, error) {
	p := &Playback{
		cfg: cfg,
		buf: make([]int16, cfg.FrameSize*cfg.Channels),
	}
	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.FrameSize, p.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	p.stream = stream
	return p, nil
}

// Write queues one frame for playback.
func (p *Playback) Write(f audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("portaudio: playback is closed")
	}

	samples := audio.BytesToInt16s(f.PCM)
	n := copy(p.buf, samples)
	for i := n; i < len(p.buf); i++ {
		p.buf[i] = 0
	}

	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: output write: %w", err)
	}
	return nil
}

// Close stops playback and releases the output device. Safe to call more than once.
func (p *Playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if sErr := p.stream.Stop(); sErr != nil {
			err = sErr
		}
		if cErr := p.stream.Close(); cErr != nil && err == nil {
			err = cErr
		}
	})
	return err
}
