// Package handlers resolves gateway events and slash commands to user code.
//
// The gateway only sees the Handler and Registry interfaces. Handlers take
// a JSON document and return one; how they run is up to the implementation.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type Handler interface {
	// Name is the event or command name the handler is registered under.
	Name() string
	// Path is the source file, or "" for handlers defined in Go.
	Path() string
	Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

type Registry interface {
	LookupEvent(event string) (Handler, bool)
	LookupCommand(command string) (Handler, bool)
}

// EvalError wraps a failure raised while running a handler.
type EvalError struct {
	Handler string
	Path    string
	Err     error
}

func (e *EvalError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("handler %s (%s): %v", e.Handler, e.Path, e.Err)
	}
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Func is a Handler backed by a Go function.
type Func struct {
	name string
	fn   func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

func NewFunc(name string, fn func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }
func (f *Func) Path() string { return "" }

func (f *Func) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	out, err := f.fn(ctx, input)
	if err != nil {
		return nil, &EvalError{Handler: f.name, Err: err}
	}
	return out, nil
}

// Set is a static Registry. The zero value is not usable; call NewSet.
type Set struct {
	mu       sync.RWMutex
	events   map[string]Handler
	commands map[string]Handler
}

func NewSet() *Set {
	return &Set{
		events:   make(map[string]Handler),
		commands: make(map[string]Handler),
	}
}

// On registers h for a dispatch event name such as "MESSAGE_CREATE".
func (s *Set) On(event string, h Handler) {
	s.mu.Lock()
	s.events[event] = h
	s.mu.Unlock()
}

// Command registers h for an application command name.
func (s *Set) Command(name string, h Handler) {
	s.mu.Lock()
	s.commands[name] = h
	s.mu.Unlock()
}

func (s *Set) LookupEvent(event string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.events[event]
	return h, ok
}

func (s *Set) LookupCommand(command string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.commands[command]
	return h, ok
}

// Events returns the registered event names, sorted.
func (s *Set) Events() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.events)
}

// Commands returns the registered command names, sorted.
func (s *Set) Commands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.commands)
}

func sortedKeys(m map[string]Handler) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Empty is a Registry with no handlers.
var Empty Registry = NewSet()
