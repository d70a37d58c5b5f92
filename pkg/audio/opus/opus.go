// Package opus implements the audio.Codec interface on top of the gopus
// bindings. The encoder is tuned for voice: VoIP application mode at 24 kbps,
// matching the wire format expected by the voxpipe streaming peer.
package opus

import (
	"fmt"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"layeh.com/gopus"
)

// Compile-time interface assertion.
var _ audio.Codec = (*Codec)(nil)

const defaultBitrate = 24000

// Option is a functional option for configuring a Codec.
type Option func(*Codec)

// WithBitrate sets the encoder bitrate in bits per second.
func WithBitrate(bps int) Option {
	return func(c *Codec) { c.bitrate = bps }
}

// Codec wraps a gopus encoder/decoder pair for a single duplex stream.
// Encoder and decoder each maintain state across consecutive frames, so a
// Codec must not be shared between streams.
type Codec struct {
	enc *gopus.Encoder
	dec *gopus.Decoder

	sampleRate int
	channels   int
	frameSize  int // samples per channel per frame
	bitrate    int
}

// New creates a Codec for the given stream parameters. frameSize is the
// number of samples per channel in one frame (sampleRate × frameMillis / 1000).
func New(sampleRate, channels, frameSize int, opts ...Option) (*Codec, error) {
	c := &Codec{
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
		bitrate:    defaultBitrate,
	}
	for _, o := range opts {
		o(c)
	}

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	enc.SetBitrate(c.bitrate)
	c.enc = enc

	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	c.dec = dec

	return c, nil
}

// Encode compresses one PCM frame (interleaved little-endian int16 bytes)
// into an Opus packet.
func (c *Codec) Encode(pcm []byte) ([]byte, error) {
	samples := audio.BytesToInt16s(pcm)
	if len(samples) != c.frameSize*c.channels {
		return nil, fmt.Errorf("opus: encode: got %d samples, want %d", len(samples), c.frameSize*c.channels)
	}
	data, err := c.enc.Encode(samples, c.frameSize, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return data, nil
}

// Decode decompresses one Opus packet into a full PCM frame.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	samples, err := c.dec.Decode(data, c.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return audio.Int16sToBytes(samples), nil
}
