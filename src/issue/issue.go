// Package issue carries user-facing problems found while running a bot.
//
// An Issue is not an error: reporting one never stops the gateway loop on
// its own. Callers decide separately whether the condition behind a Fatal
// issue terminates the session.
package issue

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"personal/botkit/src/logging"
	"personal/botkit/src/metrics"
)

type Severity int

const (
	Fatal Severity = iota
	Error
	Warning
)

func (s Severity) String() string {
	switch s {
	case Fatal:
		return "fatal"
	case Error:
		return "error"
	case Warning:
		return "warning"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Stages name the part of the bot an issue came from.
const (
	StageWebsocket = "websocket"
	StageRuntime   = "runtime"
	StageAPI       = "discord-api"
	StageStructure = "app-structure"
	StageConfig    = "config"
)

type Issue struct {
	Severity    Severity
	Stage       string
	Title       string
	Description string
	// Path is the handler file or project directory the issue is tied to.
	Path string
}

func (i Issue) String() string {
	s := fmt.Sprintf("[%s] %s", i.Severity, i.Title)
	if i.Description != "" {
		s += ": " + i.Description
	}
	if i.Path != "" {
		s += " (" + i.Path + ")"
	}
	return s
}

type Reporter interface {
	Report(Issue)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Issue)

func (f ReporterFunc) Report(i Issue) { f(i) }

// LogReporter writes issues to a zerolog logger.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// NewDefaultReporter logs through the process logger.
func NewDefaultReporter() *LogReporter {
	return NewLogReporter(logging.WithComponent("issues"))
}

func (r *LogReporter) Report(i Issue) {
	metrics.IncIssue(i.Severity.String())

	var ev *zerolog.Event
	switch i.Severity {
	case Fatal, Error:
		ev = r.logger.Error()
	default:
		ev = r.logger.Warn()
	}
	ev.Str("severity", i.Severity.String()).
		Str("stage", i.Stage).
		Str(logging.FieldPath, i.Path).
		Str("description", i.Description).
		Msg(i.Title)
}

// Collector keeps every reported issue in memory and optionally forwards
// them to another reporter.
type Collector struct {
	mu     sync.Mutex
	issues []Issue
	next   Reporter
}

func NewCollector(next Reporter) *Collector {
	return &Collector{next: next}
}

func (c *Collector) Report(i Issue) {
	c.mu.Lock()
	c.issues = append(c.issues, i)
	c.mu.Unlock()
	if c.next != nil {
		c.next.Report(i)
	}
}

// Issues returns a copy of the collected issues.
func (c *Collector) Issues() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// WithSeverity returns the collected issues of one severity.
func (c *Collector) WithSeverity(s Severity) []Issue {
	var out []Issue
	for _, i := range c.Issues() {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// Nop discards issues.
var Nop Reporter = ReporterFunc(func(Issue) {})
