package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/internal/config"
)

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("sample_rate = %d; want %d", cfg.Audio.SampleRate, config.DefaultSampleRate)
	}
	if cfg.Audio.Channels != config.DefaultChannels {
		t.Errorf("channels = %d; want %d", cfg.Audio.Channels, config.DefaultChannels)
	}
	if cfg.Stream.URL != config.DefaultURL {
		t.Errorf("url = %q; want %q", cfg.Stream.URL, config.DefaultURL)
	}
	if cfg.Stream.MaxRetries != config.DefaultMaxRetries {
		t.Errorf("max_retries = %d; want %d", cfg.Stream.MaxRetries, config.DefaultMaxRetries)
	}
	if cfg.Stream.KeepaliveSeconds != config.DefaultKeepaliveSeconds {
		t.Errorf("keepalive_seconds = %d; want %d", cfg.Stream.KeepaliveSeconds, config.DefaultKeepaliveSeconds)
	}
	// No default for listen_addr: empty means the local HTTP server stays
	// disabled, and the stream must run without it.
	if cfg.Server.ListenAddr != "" {
		t.Errorf("listen_addr = %q; want empty (HTTP server disabled)", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_ListenAddrOptIn(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("server:\n  listen_addr: \":9090\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q; want :9090", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	t.Parallel()

	yaml := `
audio:
  sample_rate: 48000
  channels: 2
  frame_ms: 20
stream:
  url: wss://stream.example.com/v1
  max_retries: 10
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("sample_rate = %d; want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 2 {
		t.Errorf("channels = %d; want 2", cfg.Audio.Channels)
	}
	if cfg.Stream.URL != "wss://stream.example.com/v1" {
		t.Errorf("url = %q", cfg.Stream.URL)
	}
	// Untouched fields keep their defaults.
	if cfg.Audio.Bitrate != config.DefaultBitrate {
		t.Errorf("bitrate = %d; want default %d", cfg.Audio.Bitrate, config.DefaultBitrate)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("audio:\n  sampel_rate: 48000\n"))
	if err == nil {
		t.Fatal("misspelled field accepted")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
audio:
  sample_rate: 4000
  channels: 3
  frame_ms: 25
stream:
  url: http://not-a-websocket
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"log_level", "sample_rate", "channels", "frame_ms", "url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestAudioConfig_FrameHelpers(t *testing.T) {
	t.Parallel()

	a := config.AudioConfig{SampleRate: 24000, Channels: 1, FrameMillis: 60}
	if got := a.FrameSize(); got != 1440 {
		t.Errorf("FrameSize = %d; want 1440", got)
	}
	if got := a.FrameDuration(); got != 60*time.Millisecond {
		t.Errorf("FrameDuration = %v; want 60ms", got)
	}
}

func TestStreamConfig_DurationHelpers(t *testing.T) {
	t.Parallel()

	s := config.StreamConfig{KeepaliveSeconds: 25, BackoffCapSeconds: 30, DialSeconds: 10}
	if got := s.KeepaliveInterval(); got != 25*time.Second {
		t.Errorf("KeepaliveInterval = %v; want 25s", got)
	}
	if got := s.BackoffCap(); got != 30*time.Second {
		t.Errorf("BackoffCap = %v; want 30s", got)
	}
	if got := s.DialTimeout(); got != 10*time.Second {
		t.Errorf("DialTimeout = %v; want 10s", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("missing file accepted")
	}
}
