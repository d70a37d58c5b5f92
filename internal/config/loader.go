package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in every unset field with its Default* constant.
func ApplyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = DefaultChannels
	}
	if cfg.Audio.FrameMillis == 0 {
		cfg.Audio.FrameMillis = DefaultFrameMillis
	}
	if cfg.Audio.Bitrate == 0 {
		cfg.Audio.Bitrate = DefaultBitrate
	}
	if cfg.Stream.URL == "" {
		cfg.Stream.URL = DefaultURL
	}
	if cfg.Stream.ProtocolVersion == "" {
		cfg.Stream.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.Stream.QueueCapacity == 0 {
		cfg.Stream.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Stream.KeepaliveSeconds == 0 {
		cfg.Stream.KeepaliveSeconds = DefaultKeepaliveSeconds
	}
	if cfg.Stream.MaxRetries == 0 {
		cfg.Stream.MaxRetries = DefaultMaxRetries
	}
	if cfg.Stream.BackoffCapSeconds == 0 {
		cfg.Stream.BackoffCapSeconds = DefaultBackoffCapSeconds
	}
	if cfg.Stream.DialSeconds == 0 {
		cfg.Stream.DialSeconds = DefaultDialSeconds
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is too low; minimum 8000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	// Opus accepts 2.5, 5, 10, 20, 40, or 60 ms frames.
	switch cfg.Audio.FrameMillis {
	case 10, 20, 40, 60:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 40, 60", cfg.Audio.FrameMillis))
	}
	if cfg.Audio.Bitrate < 500 || cfg.Audio.Bitrate > 512000 {
		errs = append(errs, fmt.Errorf("audio.bitrate %d is out of range [500, 512000]", cfg.Audio.Bitrate))
	}

	if !strings.HasPrefix(cfg.Stream.URL, "ws://") && !strings.HasPrefix(cfg.Stream.URL, "wss://") {
		errs = append(errs, fmt.Errorf("stream.url %q must use the ws:// or wss:// scheme", cfg.Stream.URL))
	}
	if cfg.Stream.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("stream.queue_capacity %d must be at least 1", cfg.Stream.QueueCapacity))
	}
	if cfg.Stream.KeepaliveSeconds < 1 {
		errs = append(errs, fmt.Errorf("stream.keepalive_seconds %d must be at least 1", cfg.Stream.KeepaliveSeconds))
	}
	if cfg.Stream.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("stream.max_retries %d must be at least 1", cfg.Stream.MaxRetries))
	}
	if cfg.Stream.BackoffCapSeconds < 1 {
		errs = append(errs, fmt.Errorf("stream.backoff_cap_seconds %d must be at least 1", cfg.Stream.BackoffCapSeconds))
	}

	return errors.Join(errs...)
}
