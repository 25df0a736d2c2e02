package issue

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorForwards(t *testing.T) {
	var forwarded []Issue
	c := NewCollector(ReporterFunc(func(i Issue) { forwarded = append(forwarded, i) }))

	c.Report(Issue{Severity: Error, Title: "a"})
	c.Report(Issue{Severity: Fatal, Title: "b"})
	c.Report(Issue{Severity: Error, Title: "c"})

	assert.Len(t, c.Issues(), 3)
	assert.Len(t, forwarded, 3)
	errs := c.WithSeverity(Error)
	require.Len(t, errs, 2)
	assert.Equal(t, "c", errs[1].Title)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(zerolog.New(&buf))
	r.Report(Issue{Severity: Fatal, Stage: StageWebsocket, Title: "Connection closed", Description: "Authentication failed (4004)"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "fatal", line["severity"])
	assert.Equal(t, "Connection closed", line["message"])
}

func TestString(t *testing.T) {
	i := Issue{Severity: Warning, Title: "Bad frame", Description: "unexpected EOF", Path: "events/ready.js"}
	assert.Equal(t, "[warning] Bad frame: unexpected EOF (events/ready.js)", i.String())
}
