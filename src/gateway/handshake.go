package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"personal/botkit/src/logging"
	"personal/botkit/src/opcodes"
)

// Credentials supplies the values sent in Identify and Resume. They must
// not change while a session is running.
type Credentials interface {
	Token() string
	Intents() uint32
}

// StaticCredentials is a fixed token and intent set.
type StaticCredentials struct {
	BotToken   string
	BotIntents uint32
}

func (c StaticCredentials) Token() string { return c.BotToken }
func (c StaticCredentials) Intents() uint32 { return c.BotIntents }

// HandshakeKind is how a new connection introduces itself.
type HandshakeKind int

const (
	HandshakeIdentify HandshakeKind = iota
	HandshakeResume
)

func (k HandshakeKind) String() string {
	if k == HandshakeResume {
		return "resume"
	}
	return "identify"
}

var ErrNoSession = errors.New("handshake: no session to resume")

// DefaultProperties identifies the library to the gateway.
func DefaultProperties() ConnectionProperties {
	return ConnectionProperties{
		OS:      runtime.GOOS,
		Browser: "botkit",
		Device:  "botkit",
	}
}

// Handshaker sends Identify and Resume.
type Handshaker struct {
	creds      Credentials
	state      *State
	properties ConnectionProperties
	logger     zerolog.Logger
}

func NewHandshaker(creds Credentials, state *State, properties ConnectionProperties, logger zerolog.Logger) *Handshaker {
	return &Handshaker{creds: creds, state: state, properties: properties, logger: logger}
}

// Send performs the handshake of the given kind.
func (h *Handshaker) Send(ctx context.Context, tx FrameSender, kind HandshakeKind) error {
	if kind == HandshakeResume {
		return h.Resume(ctx, tx)
	}
	return h.Identify(ctx, tx)
}

// Identify starts a new session. It must be sent once per fresh connection.
func (h *Handshaker) Identify(ctx context.Context, tx FrameSender) error {
	p, err := NewIdentify(IdentifyData{
		Token:      h.creds.Token(),
		Intents:    h.creds.Intents(),
		Properties: h.properties,
	})
	if err != nil {
		return err
	}
	if err := sendPayload(ctx, tx, p, h.logger); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	h.logger.Info().Uint32("intents", h.creds.Intents()).Msg("identify sent")
	return nil
}

// Resume continues the session recorded in State. Both Reconnect and a
// resumable InvalidSession end up here.
func (h *Handshaker) Resume(ctx context.Context, tx FrameSender) error {
	sessionID := h.state.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	seq := h.state.Sequence()
	p, err := NewResume(ResumeData{
		Token:     h.creds.Token(),
		SessionID: sessionID,
		Seq:       seq,
	})
	if err != nil {
		return err
	}
	if err := sendPayload(ctx, tx, p, h.logger); err != nil {
		return fmt.Errorf("send resume: %w", err)
	}
	ev := h.logger.Info().Str(logging.FieldSessionID, sessionID)
	if seq != nil {
		ev = ev.Uint64(logging.FieldSequence, *seq)
	}
	ev.Msg("resume sent")
	return nil
}

// redact hides the token of handshake frames before they are logged.
func redact(p Payload, frame []byte) []byte {
	if p.Op != opcodes.Identify && p.Op != opcodes.Resume {
		return frame
	}
	var d map[string]json.RawMessage
	if err := json.Unmarshal(p.D, &d); err != nil {
		return []byte(`{}`)
	}
	d["token"] = json.RawMessage(`"[redacted]"`)
	raw, err := json.Marshal(d)
	if err != nil {
		return []byte(`{}`)
	}
	out, err := Encode(Payload{Op: p.Op, D: raw})
	if err != nil {
		return []byte(`{}`)
	}
	return out
}
