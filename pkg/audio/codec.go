// Package audio defines the interfaces and types for audio capture, playback,
// and compression within voxpipe.
//
// The three boundary abstractions are:
//
//   - [Codec] — compresses one fixed-size PCM frame at a time and back.
//   - [CaptureSource] — delivers captured PCM frames on the device's schedule.
//   - [PlaybackSink] — accepts PCM frames for immediate output.
//
// Implementations live in subpackages (audio/opus, audio/portaudio); the
// engine depends only on the interfaces so that tests can substitute the
// channel-backed doubles in audio/mock.
package audio

// Codec converts between raw PCM frames and compressed packets. One call
// handles exactly one frame: the PCM input to Encode and the PCM output of
// Decode always contain the configured number of samples per channel
// (sampleRate × frameMillis / 1000).
//
// Implementations must be safe for use from a single goroutine per direction:
// the engine encodes only from its send loop and decodes only from the
// transport's dispatch path.
type Codec interface {
	// Encode compresses one PCM frame (interleaved little-endian int16) into
	// a variable-length packet.
	Encode(pcm []byte) ([]byte, error)

	// Decode decompresses one packet into a full PCM frame.
	Decode(data []byte) ([]byte, error)
}
