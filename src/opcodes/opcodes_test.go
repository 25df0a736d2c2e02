package opcodes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromInt(t *testing.T) {
	tests := []struct {
		in   int64
		want OpCode
	}{
		{0, Dispatch},
		{1, Heartbeat},
		{6, Resume},
		{11, HeartbeatACK},
		{5, Unknown},
		{12, Unknown},
		{-1, Unknown},
		{256, Unknown},
		{1 << 40, Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromInt(tt.in), "FromInt(%d)", tt.in)
	}
}

func TestKnown(t *testing.T) {
	assert.True(t, Hello.Known())
	assert.False(t, Unknown.Known())
	assert.False(t, OpCode(5).Known())
}

func TestUnmarshal(t *testing.T) {
	var op OpCode
	require.NoError(t, json.Unmarshal([]byte(`10`), &op))
	assert.Equal(t, Hello, op)

	require.NoError(t, json.Unmarshal([]byte(`99`), &op))
	assert.Equal(t, Unknown, op)

	for _, literal := range []string{`1.5`, `-3`, `1e400`, `-1e400`, `99999999999999999999`} {
		op = Hello
		require.NoError(t, json.Unmarshal([]byte(literal), &op), literal)
		assert.Equal(t, Unknown, op, literal)
	}

	assert.Error(t, json.Unmarshal([]byte(`"hello"`), &op))
}

func TestMarshal(t *testing.T) {
	b, err := json.Marshal(struct {
		Op OpCode `json:"op"`
	}{Identify})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":2}`, string(b))
}

func TestCloseCodes(t *testing.T) {
	for _, code := range []int{4000, 4001, 4002, 4003, 4005, 4007, 4008, 4009} {
		assert.True(t, Reconnectable(code), "%d", code)
	}
	for _, code := range []int{1000, 1006, 4004, 4010, 4011, 4012, 4013, 4014} {
		assert.False(t, Reconnectable(code), "%d", code)
	}
	assert.Equal(t, "Authentication failed", CloseDescription(CloseAuthenticationFailed))
	assert.Empty(t, CloseDescription(1000))
}
