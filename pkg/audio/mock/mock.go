// Package mock provides in-memory mock implementations of the [audio.Codec],
// [audio.CaptureSource], and [audio.PlaybackSink] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	src := mock.NewCaptureSource(16)
//	src.Emit(audio.Frame{PCM: make([]byte, 2880)})
//	sink := &mock.PlaybackSink{}
//	codec := &mock.Codec{}
package mock

import (
	"context"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/audio"
)

// ─── Codec ────────────────────────────────────────────────────────────────────

// Codec is a mock implementation of [audio.Codec]. By default Encode and
// Decode pass their input through unchanged, which keeps frame contents
// observable end to end in engine tests.
type Codec struct {
	mu sync.Mutex

	// EncodeError, when non-nil, is returned by every Encode call.
	EncodeError error

	// DecodeError, when non-nil, is returned by every Decode call.
	DecodeError error

	// EncodeFunc, when non-nil, replaces the default pass-through behaviour.
	EncodeFunc func(pcm []byte) ([]byte, error)

	// DecodeFunc, when non-nil, replaces the default pass-through behaviour.
	DecodeFunc func(data []byte) ([]byte, error)

	// EncodeCalls records the input of every Encode invocation.
	EncodeCalls [][]byte

	// DecodeCalls records the input of every Decode invocation.
	DecodeCalls [][]byte
}

// Encode implements [audio.Codec].
func (c *Codec) Encode(pcm []byte) ([]byte, error) {
	c.mu.Lock()
	c.EncodeCalls = append(c.EncodeCalls, pcm)
	errVal := c.EncodeError
	fn := c.EncodeFunc
	c.mu.Unlock()

	if errVal != nil {
		return nil, errVal
	}
	if fn != nil {
		return fn(pcm)
	}
	return pcm, nil
}

// Decode implements [audio.Codec].
func (c *Codec) Decode(data []byte) ([]byte, error) {
	c.mu.Lock()
	c.DecodeCalls = append(c.DecodeCalls, data)
	errVal := c.DecodeError
	fn := c.DecodeFunc
	c.mu.Unlock()

	if errVal != nil {
		return nil, errVal
	}
	if fn != nil {
		return fn(data)
	}
	return data, nil
}

// ─── CaptureSource ────────────────────────────────────────────────────────────

// CaptureSource is a mock implementation of [audio.CaptureSource]. Tests push
// frames with [CaptureSource.Emit]; the engine consumes them via Frames.
type CaptureSource struct {
	mu sync.Mutex

	// StartError is returned by Start.
	StartError error

	// CloseError is returned by the first Close call.
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	frames    chan audio.Frame
	closeOnce sync.Once
}

// NewCaptureSource creates a CaptureSource whose Frames channel holds up to
// buffer frames.
func NewCaptureSource(buffer int) *CaptureSource {
	return &CaptureSource{frames: make(chan audio.Frame, buffer)}
}

// Start implements [audio.CaptureSource].
func (s *CaptureSource) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	return s.StartError
}

// Frames implements [audio.CaptureSource].
func (s *CaptureSource) Frames() <-chan audio.Frame {
	return s.frames
}

// Close implements [audio.CaptureSource]. Closes the Frames channel.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	err := s.CloseError
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.frames) })
	return err
}

// Emit delivers one frame to the Frames channel, blocking if the buffer is full.
func (s *CaptureSource) Emit(f audio.Frame) {
	s.frames <- f
}

// ─── PlaybackSink ─────────────────────────────────────────────────────────────

// PlaybackSink is a mock implementation of [audio.PlaybackSink]. It records
// every written frame and optionally signals writes on a channel.
type PlaybackSink struct {
	mu sync.Mutex

	// WriteError, when non-nil, is returned by every Write call.
	WriteError error

	// CloseError is returned by Close.
	CloseError error

	// Written holds every frame passed to Write, in order.
	Written []audio.Frame

	// WriteSignal, when non-nil, receives a struct{} after each successful
	// Write. Tests use it to wait for playback without polling.
	WriteSignal chan struct{}

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Write implements [audio.PlaybackSink].
func (s *PlaybackSink) Write(f audio.Frame) error {
	s.mu.Lock()
	if s.WriteError != nil {
		err := s.WriteError
		s.mu.Unlock()
		return err
	}
	s.Written = append(s.Written, f)
	sig := s.WriteSignal
	s.mu.Unlock()

	if sig != nil {
		sig <- struct{}{}
	}
	return nil
}

// Close implements [audio.PlaybackSink].
func (s *PlaybackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// WrittenFrames returns a snapshot of all frames written so far.
func (s *PlaybackSink) WrittenFrames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.Written))
	copy(out, s.Written)
	return out
}
