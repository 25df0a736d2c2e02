package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"personal/botkit/src/logging"
	"personal/botkit/src/metrics"
	"personal/botkit/src/opcodes"
)

// ErrAckMissed means the gateway never acknowledged the previous heartbeat.
// The connection must be considered dead.
var ErrAckMissed = errors.New("heartbeat: previous heartbeat was not acknowledged")

// Heartbeater sends heartbeats on the interval announced in Hello.
// It is safe to call from more than one goroutine.
type Heartbeater struct {
	state  *State
	now    func() time.Time
	logger zerolog.Logger
}

func NewHeartbeater(state *State, logger zerolog.Logger) *Heartbeater {
	return &Heartbeater{state: state, now: time.Now, logger: logger}
}

// MaybeHeartbeat sends a heartbeat when one is due, or unconditionally when
// force is set. It does nothing before Hello. When a heartbeat is due but
// the previous one is unacknowledged it returns ErrAckMissed and sends
// nothing.
func (h *Heartbeater) MaybeHeartbeat(ctx context.Context, tx FrameSender, force bool) error {
	switch h.state.claimHeartbeat(h.now(), force) {
	case heartbeatSkip:
		return nil
	case heartbeatAckMissed:
		return ErrAckMissed
	}

	seq := h.state.Sequence()
	if err := sendPayload(ctx, tx, NewHeartbeat(seq), h.logger); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	if logging.Tracing() {
		ev := h.logger.Trace().Bool("forced", force)
		if seq != nil {
			ev = ev.Uint64(logging.FieldSequence, *seq)
		}
		ev.Msg("heartbeat sent")
	}
	return nil
}

// Acknowledge records a HeartbeatAck.
func (h *Heartbeater) Acknowledge() {
	latency, ok := h.state.Ack(h.now())
	if !ok {
		h.logger.Debug().Msg("unexpected heartbeat ack")
		return
	}
	metrics.HeartbeatLatency.Observe(latency.Seconds())
}

// sendPayload encodes p and writes it, logging the frame when tracing.
func sendPayload(ctx context.Context, tx FrameSender, p Payload, logger zerolog.Logger) error {
	frame, err := Encode(p)
	if err != nil {
		return err
	}
	if err := tx.Send(ctx, frame); err != nil {
		return err
	}
	metrics.IncSent(p.Op.String())
	if logging.Tracing() && p.Op != opcodes.Heartbeat {
		logger.Debug().Str(logging.FieldOpCode, p.Op.String()).RawJSON("frame", redact(p, frame)).Msg("frame sent")
	}
	return nil
}
