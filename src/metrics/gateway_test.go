package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncReconnectDefaultsKind(t *testing.T) {
	before := testutil.ToFloat64(Reconnects.WithLabelValues("unknown"))
	IncReconnect("")
	assert.Equal(t, before+1, testutil.ToFloat64(Reconnects.WithLabelValues("unknown")))
}

func TestIncIssue(t *testing.T) {
	before := testutil.ToFloat64(Issues.WithLabelValues("error"))
	IncIssue("error")
	IncIssue("error")
	assert.Equal(t, before+2, testutil.ToFloat64(Issues.WithLabelValues("error")))
}
