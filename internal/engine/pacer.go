package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/transport"
)

// pacer drains the capture queue at a fixed cadence, encoding each frame and
// writing it to the connection. The wait for the next cycle is computed from
// the time of the last successful send rather than a fixed sleep, so encode
// and network latency do not accumulate as drift.
type pacer struct {
	period  time.Duration
	queue   *FrameQueue
	codec   audio.Codec
	conn    transport.Conn
	metrics *observe.Metrics
	log     *slog.Logger
}

// run sends frames until ctx is cancelled. Encode and send errors are logged
// and the frame is skipped; fatal connection errors surface through the
// transport handler, not here.
func (p *pacer) run(ctx context.Context) {
	lastSend := time.Now()
	for {
		if wait := p.period - time.Since(lastSend); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		} else {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		frame, ok := p.queue.Take()
		if !ok {
			// Nothing buffered. Sleep until a frame arrives or a full
			// period passes; the elapsed-time check above sends it
			// immediately once it is due.
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Wake():
			case <-time.After(p.period):
			}
			continue
		}
		p.metrics.QueueDepth.Add(ctx, -1, queueAttr("capture"))

		data, err := p.codec.Encode(frame.PCM)
		if err != nil {
			p.log.Warn("frame encode failed, skipping", "error", err)
			p.metrics.RecordCodecError(ctx, "encode")
			continue
		}

		if err := p.conn.Send(ctx, data); err != nil {
			p.log.Warn("frame send failed, dropping", "error", err)
			p.metrics.RecordDrop(ctx, "capture", "send_error")
			continue
		}

		now := time.Now()
		p.metrics.SendInterval.Record(ctx, now.Sub(lastSend).Seconds())
		p.metrics.FramesSent.Add(ctx, 1)
		lastSend = now
	}
}
