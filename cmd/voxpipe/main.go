// Command voxpipe is the duplex audio streaming client. It captures audio
// from the default input device, streams it Opus-compressed over a persistent
// WebSocket, and plays back whatever the server sends in return.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/engine"
	"github.com/voxpipe/voxpipe/internal/health"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/pkg/audio/opus"
	paudio "github.com/voxpipe/voxpipe/pkg/audio/portaudio"
	"github.com/voxpipe/voxpipe/pkg/transport/ws"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Run on defaults when no config file exists; the zero config
			// validates after ApplyDefaults.
			fmt.Fprintf(os.Stderr, "voxpipe: config file %q not found — using built-in defaults\n", *configPath)
			cfg = &config.Config{}
			config.ApplyDefaults(cfg)
		} else {
			fmt.Fprintf(os.Stderr, "voxpipe: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxpipe starting",
		"version", version,
		"config", *configPath,
		"url", cfg.Stream.URL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxpipe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Audio devices ─────────────────────────────────────────────────────────
	if err := paudio.Initialize(); err != nil {
		slog.Error("failed to initialise audio runtime", "err", err)
		return 1
	}
	defer func() {
		if err := paudio.Terminate(); err != nil {
			slog.Warn("audio runtime shutdown error", "err", err)
		}
	}()

	deviceCfg := paudio.Config{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		FrameSize:  cfg.Audio.FrameSize(),
	}
	capture, err := paudio.NewCapture(deviceCfg)
	if err != nil {
		slog.Error("failed to open input device", "err", err)
		return 1
	}
	playback, err := paudio.NewPlayback(deviceCfg)
	if err != nil {
		capture.Close()
		slog.Error("failed to open output device", "err", err)
		return 1
	}

	// ── Codec ─────────────────────────────────────────────────────────────────
	codec, err := opus.New(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameSize(),
		opus.WithBitrate(cfg.Audio.Bitrate))
	if err != nil {
		capture.Close()
		playback.Close()
		slog.Error("failed to create codec", "err", err)
		return 1
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(engine.Config{
		URL:               cfg.Stream.URL,
		ProtocolVersion:   cfg.Stream.ProtocolVersion,
		SampleRate:        cfg.Audio.SampleRate,
		Channels:          cfg.Audio.Channels,
		FramePeriod:       cfg.Audio.FrameDuration(),
		QueueCapacity:     cfg.Stream.QueueCapacity,
		KeepaliveInterval: cfg.Stream.KeepaliveInterval(),
		MaxRetries:        cfg.Stream.MaxRetries,
		BackoffCap:        cfg.Stream.BackoffCap(),
		DialTimeout:       cfg.Stream.DialTimeout(),
	}, codec, capture, playback, ws.NewDialer(),
		engine.WithMetrics(metrics),
		engine.WithLogger(logger),
	)

	printStartupSummary(cfg)
	slog.Info("client ready — press Ctrl+C to shut down")

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	// ── HTTP: health + metrics (optional) ────────────────────────────────────
	// An empty listen_addr disables the local HTTP server; the stream runs
	// without it.
	if cfg.Server.ListenAddr != "" {
		probes := health.New()
		probes.Add("stream", func(context.Context) error {
			if st := eng.State(); st != engine.StateOpen {
				return fmt.Errorf("stream is %s", st)
			}
			return nil
		})

		mux := http.NewServeMux()
		probes.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          voxpipe — stream client      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Server", cfg.Stream.URL)
	printRow("Audio", fmt.Sprintf("%d Hz / %d ch", cfg.Audio.SampleRate, cfg.Audio.Channels))
	printRow("Frame", fmt.Sprintf("%d ms @ %d bps", cfg.Audio.FrameMillis, cfg.Audio.Bitrate))
	printRow("Queues", fmt.Sprintf("%d frames each", cfg.Stream.QueueCapacity))
	printRow("Retries", fmt.Sprintf("%d (cap %ds)", cfg.Stream.MaxRetries, cfg.Stream.BackoffCapSeconds))
	if cfg.Server.ListenAddr != "" {
		printRow("HTTP", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
