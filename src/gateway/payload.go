package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"personal/botkit/src/client"
	"personal/botkit/src/opcodes"
)

// Payload is the gateway envelope. S and T are only set on Dispatch frames.
// D is kept raw so dispatch data reaches handlers with its original fields.
type Payload struct {
	Op opcodes.OpCode  `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *uint64         `json:"s,omitempty"`
	T  *string         `json:"t,omitempty"`
}

// Event returns the dispatch event name, or "" for non-dispatch frames.
func (p Payload) Event() string {
	if p.T == nil {
		return ""
	}
	return *p.T
}

// Unmarshal decodes the payload data into v.
func (p Payload) Unmarshal(v any) error {
	if len(p.D) == 0 {
		return fmt.Errorf("%s payload has no data", p.Op)
	}
	return json.Unmarshal(p.D, v)
}

// DecodeError is returned for frames that are not a valid gateway envelope.
// Callers log it and skip the frame.
type DecodeError struct {
	Reason string
	Frame  string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type envelope struct {
	Op json.RawMessage `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *uint64         `json:"s"`
	T  *string         `json:"t"`
}

var jsonNull = []byte("null")

// Decode parses one text frame. The op field is required and must be
// numeric; values outside the known set decode to opcodes.Unknown.
func Decode(text []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(text, &env); err != nil {
		return Payload{}, &DecodeError{Reason: "malformed json", Frame: truncate(text), Err: err}
	}
	if len(env.Op) == 0 || bytes.Equal(env.Op, jsonNull) {
		return Payload{}, &DecodeError{Reason: "missing op", Frame: truncate(text)}
	}

	var op opcodes.OpCode
	if err := op.UnmarshalJSON(env.Op); err != nil {
		return Payload{}, &DecodeError{Reason: "invalid op", Frame: truncate(text), Err: err}
	}

	p := Payload{Op: op, S: env.S, T: env.T}
	if len(env.D) > 0 && !bytes.Equal(env.D, jsonNull) {
		p.D = env.D
	}
	return p, nil
}

// Encode serialises a payload into a text frame.
func Encode(p Payload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Op, err)
	}
	return b, nil
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

type HelloData struct {
	HeartbeatInterval uint64 `json:"heartbeat_interval"`
}

func (h HelloData) Interval() time.Duration {
	return time.Duration(h.HeartbeatInterval) * time.Millisecond
}

type ReadyData struct {
	V                int                       `json:"v"`
	User             client.User               `json:"user"`
	Guilds           []client.UnavailableGuild `json:"guilds"`
	SessionID        string                    `json:"session_id"`
	ResumeGatewayURL string                    `json:"resume_gateway_url"`
	Shard            []int                     `json:"shard,omitempty"`
	Application      client.PartialApplication `json:"application"`
}

type ConnectionProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type IdentifyData struct {
	Token      string               `json:"token"`
	Intents    uint32               `json:"intents"`
	Properties ConnectionProperties `json:"properties"`
}

type ResumeData struct {
	Token     string  `json:"token"`
	SessionID string  `json:"session_id"`
	Seq       *uint64 `json:"seq"`
}

type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

type PresenceUpdateData struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

func newPayload(op opcodes.OpCode, d any) (Payload, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Payload{}, fmt.Errorf("encode %s data: %w", op, err)
	}
	return Payload{Op: op, D: raw}, nil
}

// NewHeartbeat builds a heartbeat carrying the last seen sequence, or null.
func NewHeartbeat(seq *uint64) Payload {
	p := Payload{Op: opcodes.Heartbeat}
	if seq != nil {
		p.D = json.RawMessage(fmt.Sprintf("%d", *seq))
	}
	return p
}

func NewIdentify(d IdentifyData) (Payload, error) {
	return newPayload(opcodes.Identify, d)
}

func NewResume(d ResumeData) (Payload, error) {
	return newPayload(opcodes.Resume, d)
}

func NewPresenceUpdate(d PresenceUpdateData) (Payload, error) {
	if d.Activities == nil {
		d.Activities = []Activity{}
	}
	return newPayload(opcodes.PresenceUpdate, d)
}

// NewHello is only sent by gateways; it exists for mock servers in tests.
func NewHello(interval time.Duration) Payload {
	p, _ := newPayload(opcodes.Hello, HelloData{HeartbeatInterval: uint64(interval / time.Millisecond)})
	return p
}

// NewDispatch builds a dispatch frame; used by mock gateways.
func NewDispatch(event string, seq uint64, d any) (Payload, error) {
	p, err := newPayload(opcodes.Dispatch, d)
	if err != nil {
		return Payload{}, err
	}
	p.S = &seq
	p.T = &event
	return p, nil
}
