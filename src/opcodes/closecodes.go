package opcodes

// Gateway close codes.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpCode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

var closeDescriptions = map[int]string{
	CloseUnknownError:         "Unknown error",
	CloseUnknownOpCode:        "Unknown opcode",
	CloseDecodeError:          "Decode error",
	CloseNotAuthenticated:     "Not authenticated",
	CloseAuthenticationFailed: "Authentication failed",
	CloseAlreadyAuthenticated: "Already authenticated",
	CloseInvalidSeq:           "Invalid seq",
	CloseRateLimited:          "Rate limited",
	CloseSessionTimedOut:      "Session timed out",
	CloseInvalidShard:         "Invalid shard",
	CloseShardingRequired:     "Sharding required",
	CloseInvalidAPIVersion:    "Invalid API version",
	CloseInvalidIntents:       "Invalid intent(s)",
	CloseDisallowedIntents:    "Disallowed intent(s)",
}

// Reconnectable reports whether a connection closed with code may be
// resumed on a new connection.
func Reconnectable(code int) bool {
	switch code {
	case CloseUnknownError, CloseUnknownOpCode, CloseDecodeError, CloseNotAuthenticated,
		CloseAlreadyAuthenticated, CloseInvalidSeq, CloseRateLimited, CloseSessionTimedOut:
		return true
	}
	return false
}

// CloseDescription returns a human readable name for a gateway close code,
// or the empty string when the code is not a gateway code.
func CloseDescription(code int) string {
	return closeDescriptions[code]
}
