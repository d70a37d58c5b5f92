package opus_test

import (
	"math"
	"testing"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/audio/opus"
)

const (
	sampleRate = 24000
	channels   = 1
	frameSize  = 1440 // 60 ms at 24 kHz
)

// sineFrame generates one frame of a 440 Hz tone as PCM bytes.
func sineFrame() []byte {
	samples := make([]int16, frameSize*channels)
	for i := range samples {
		samples[i] = int16(10000 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
	}
	return audio.Int16sToBytes(samples)
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := opus.New(sampleRate, channels, frameSize, opus.WithBitrate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := sineFrame()
	packet, err := c.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) == 0 {
		t.Fatal("empty packet")
	}
	if len(packet) >= len(pcm) {
		t.Errorf("packet (%d bytes) not smaller than PCM (%d bytes)", len(packet), len(pcm))
	}

	out, err := c.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// Lossy codec: content differs, frame geometry must not.
	if len(out) != len(pcm) {
		t.Errorf("decoded %d bytes; want %d", len(out), len(pcm))
	}
}

func TestCodec_EncodeRejectsShortFrame(t *testing.T) {
	t.Parallel()

	c, err := opus.New(sampleRate, channels, frameSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Encode(make([]byte, 100)); err == nil {
		t.Error("Encode accepted a truncated frame")
	}
}

func TestCodec_DecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	c, err := opus.New(sampleRate, channels, frameSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Decode([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err == nil {
		t.Error("Decode accepted a garbage packet")
	}
}
