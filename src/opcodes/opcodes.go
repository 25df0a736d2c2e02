package opcodes

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// 0	Dispatch	Receive	An event was dispatched.
// 1	Heartbeat	Send/Receive	Fired periodically by the client to keep the connection alive.
// 2	Identify	Send	Starts a new session during the initial handshake.
// 3	Presence Update	Send	Update the client's presence.
// 4	Voice State Update	Send	Used to join/leave or move between voice channels.
// 6	Resume	Send	Resume a previous session that was disconnected.
// 7	Reconnect	Receive	You should attempt to reconnect and resume immediately.
// 8	Request Guild Members	Send	Request information about offline guild members in a large guild.
// 9	Invalid Session	Receive	The session has been invalidated. You should reconnect and identify/resume accordingly.
// 10	Hello	Receive	Sent immediately after connecting, contains the heartbeat_interval to use.
// 11	Heartbeat ACK	Receive	Sent in response to receiving a heartbeat to acknowledge that it has been received.

// OpCode is a gateway operation code. Values the client does not know
// about are represented by Unknown.
type OpCode uint8

const (
	Dispatch            OpCode = 0
	Heartbeat           OpCode = 1
	Identify            OpCode = 2
	PresenceUpdate      OpCode = 3
	VoiceStateUpdate    OpCode = 4
	Resume              OpCode = 6
	Reconnect           OpCode = 7
	RequestGuildMembers OpCode = 8
	InvalidSession      OpCode = 9
	Hello               OpCode = 10
	HeartbeatACK        OpCode = 11
	Unknown             OpCode = 255
)

var names = map[OpCode]string{
	Dispatch:            "Dispatch",
	Heartbeat:           "Heartbeat",
	Identify:            "Identify",
	PresenceUpdate:      "PresenceUpdate",
	VoiceStateUpdate:    "VoiceStateUpdate",
	Resume:              "Resume",
	Reconnect:           "Reconnect",
	RequestGuildMembers: "RequestGuildMembers",
	InvalidSession:      "InvalidSession",
	Hello:               "Hello",
	HeartbeatACK:        "HeartbeatAck",
	Unknown:             "Unknown",
}

// FromInt maps a numeric opcode onto the enumeration. Anything outside the
// known set, including negative and out-of-range values, becomes Unknown.
func FromInt(v int64) OpCode {
	if v < 0 || v > 255 {
		return Unknown
	}
	op := OpCode(v)
	if _, ok := names[op]; !ok {
		return Unknown
	}
	return op
}

// Known reports whether op is part of the closed opcode set.
func (op OpCode) Known() bool {
	return op != Unknown && FromInt(int64(op)) == op
}

func (op OpCode) String() string {
	if name, ok := names[op]; ok {
		return name
	}
	return "Unknown"
}

func (op OpCode) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(FromInt(int64(op))), 10), nil
}

// UnmarshalJSON requires a JSON integer. Unrecognised values decode to
// Unknown instead of failing.
func (op *OpCode) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		if isNumber(b) {
			*op = Unknown
			return nil
		}
		return fmt.Errorf("opcode must be numeric, got %s", b)
	}
	*op = FromInt(v)
	return nil
}

// isNumber reports whether b is a JSON number literal of any size.
func isNumber(b []byte) bool {
	if len(b) == 0 || !json.Valid(b) {
		return false
	}
	return b[0] == '-' || (b[0] >= '0' && b[0] <= '9')
}
