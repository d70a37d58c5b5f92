// Package config provides the configuration schema and loader for the
// voxpipe streaming client.
package config

import "time"

// LogLevel controls log verbosity for the voxpipe client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] when the corresponding field is unset.
// Audio values match the wire format the peer expects; stream values match
// the reference deployment.
const (
	DefaultSampleRate        = 24000
	DefaultChannels          = 1
	DefaultFrameMillis       = 60
	DefaultBitrate           = 24000
	DefaultURL               = "ws://127.0.0.1:8000/v1"
	DefaultProtocolVersion   = "2.0"
	DefaultQueueCapacity     = 30
	DefaultKeepaliveSeconds  = 25
	DefaultMaxRetries        = 5
	DefaultBackoffCapSeconds = 30
	DefaultDialSeconds       = 10
)

// Config is the root configuration structure for voxpipe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	Stream StreamConfig `yaml:"stream"`
}

// ServerConfig holds logging and local HTTP settings (health + metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics server listens on
	// (e.g., ":9090"). Empty disables the local HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the capture/playback and codec parameters. All fields
// must agree with the peer's expected wire format.
type AudioConfig struct {
	// SampleRate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `yaml:"channels"`

	// FrameMillis is the duration of one audio frame in milliseconds.
	FrameMillis int `yaml:"frame_ms"`

	// Bitrate is the Opus encoder bitrate in bits per second.
	Bitrate int `yaml:"bitrate"`
}

// FrameSize returns the number of samples per channel in one frame.
func (a AudioConfig) FrameSize() int {
	return a.SampleRate * a.FrameMillis / 1000
}

// FrameDuration returns the duration of one frame.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMillis) * time.Millisecond
}

// StreamConfig holds the transport endpoint and connection-lifecycle settings.
type StreamConfig struct {
	// URL is the WebSocket endpoint of the streaming peer.
	URL string `yaml:"url"`

	// ProtocolVersion is sent in the Protocol-Version handshake header.
	ProtocolVersion string `yaml:"protocol_version"`

	// QueueCapacity is the maximum number of frames buffered on each side
	// (capture awaiting send, decoded awaiting playback). Insertions beyond
	// capacity drop the new frame.
	QueueCapacity int `yaml:"queue_capacity"`

	// KeepaliveSeconds is the interval between keepalive pings while connected.
	KeepaliveSeconds int `yaml:"keepalive_seconds"`

	// MaxRetries is the number of reconnection attempts allowed before the
	// engine gives up with a terminal error.
	MaxRetries int `yaml:"max_retries"`

	// BackoffCapSeconds is the upper limit on the exponential reconnect delay.
	BackoffCapSeconds int `yaml:"backoff_cap_seconds"`

	// DialSeconds bounds how long a single connection attempt may take.
	DialSeconds int `yaml:"dial_seconds"`
}

// KeepaliveInterval returns the keepalive interval as a duration.
func (s StreamConfig) KeepaliveInterval() time.Duration {
	return time.Duration(s.KeepaliveSeconds) * time.Second
}

// BackoffCap returns the backoff cap as a duration.
func (s StreamConfig) BackoffCap() time.Duration {
	return time.Duration(s.BackoffCapSeconds) * time.Second
}

// DialTimeout returns the per-attempt dial timeout as a duration.
func (s StreamConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialSeconds) * time.Second
}
