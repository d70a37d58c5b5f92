package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/pkg/audio"
)

// controlMessage is the JSON shape of text payloads received from the server.
type controlMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// dispatcher routes inbound transport messages. Binary payloads are decoded
// and queued for playback; text payloads are parsed as control messages.
type dispatcher struct {
	codec      audio.Codec
	out        *FrameQueue
	metrics    *observe.Metrics
	log        *slog.Logger
	sampleRate int
	channels   int
	started    time.Time
}

func newDispatcher(codec audio.Codec, out *FrameQueue, metrics *observe.Metrics, log *slog.Logger, sampleRate, channels int) *dispatcher {
	return &dispatcher{
		codec:      codec,
		out:        out,
		metrics:    metrics,
		log:        log,
		sampleRate: sampleRate,
		channels:   channels,
		started:    time.Now(),
	}
}

func (d *dispatcher) dispatch(data []byte, binary bool) {
	if binary {
		d.handleAudio(data)
		return
	}
	d.handleControl(data)
}

func (d *dispatcher) handleAudio(data []byte) {
	ctx := context.Background()
	pcm, err := d.codec.Decode(data)
	if err != nil {
		d.log.Warn("frame decode failed, skipping", "error", err)
		d.metrics.RecordCodecError(ctx, "decode")
		return
	}
	frame := audio.Frame{
		PCM:        pcm,
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Timestamp:  time.Since(d.started),
	}
	d.metrics.FramesReceived.Add(ctx, 1)
	if !d.out.Offer(frame) {
		d.metrics.RecordDrop(ctx, "playback", "overflow")
		return
	}
	d.metrics.QueueDepth.Add(ctx, 1, queueAttr("playback"))
}

func (d *dispatcher) handleControl(data []byte) {
	ctx := context.Background()
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		d.log.Warn("malformed control message", "error", err, "payload", string(data))
		return
	}
	d.metrics.RecordControlMessage(ctx, msg.Type)

	switch {
	case msg.Type == "tts" && msg.State == "stop":
		cleared := d.out.Clear()
		d.log.Info("playback interrupted by server", "cleared_frames", cleared)
		if cleared > 0 {
			d.metrics.QueueDepth.Add(ctx, int64(-cleared), queueAttr("playback"))
		}
	default:
		d.log.Debug("control message", "type", msg.Type, "state", msg.State)
	}
}
