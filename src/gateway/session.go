package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"personal/botkit/src/client"
	"personal/botkit/src/handlers"
	"personal/botkit/src/issue"
	"personal/botkit/src/logging"
	"personal/botkit/src/metrics"
	"personal/botkit/src/opcodes"
)

const (
	DefaultPollInterval   = 250 * time.Millisecond
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second

	offlineTimeout = 2 * time.Second
)

// Options configure a Session. Only Credentials is required.
type Options struct {
	Credentials Credentials
	// GatewayURL is where fresh sessions connect. Resumes use the URL from
	// READY instead.
	GatewayURL string
	Version    int
	Properties ConnectionProperties

	Registry  handlers.Registry
	Responder InteractionResponder
	Issues    issue.Reporter
	Dialer    *websocket.Dialer

	// PollInterval bounds how long the loop waits for a frame before it
	// checks whether a heartbeat is due.
	PollInterval time.Duration
	// HandlerTimeout limits each handler invocation. Zero means no limit.
	HandlerTimeout time.Duration

	// MaxConnectAttempts is how many consecutive failed dials are retried.
	// Zero makes the first failure fatal.
	MaxConnectAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
}

func (o *Options) fillDefaults() {
	if o.GatewayURL == "" {
		o.GatewayURL = client.DefaultGateway
	}
	if o.Version == 0 {
		o.Version = client.APIVersion
	}
	if o.Properties == (ConnectionProperties{}) {
		o.Properties = DefaultProperties()
	}
	if o.Registry == nil {
		o.Registry = handlers.Empty
	}
	if o.Issues == nil {
		o.Issues = issue.NewDefaultReporter()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
}

// SessionError ends a session. The caller decides whether to start over.
type SessionError struct {
	SessionID string
	Reason    string
	// Code is the websocket close code, or zero.
	Code int
	Err  error
}

func (e *SessionError) Error() string {
	msg := "session"
	if e.SessionID != "" {
		msg += " " + e.SessionID
	}
	msg += ": " + e.Reason
	if e.Code != 0 {
		msg += fmt.Sprintf(" (close code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionError) Unwrap() error { return e.Err }

var errShutdown = errors.New("session shut down")

type inbound struct {
	data []byte
	err  error
}

// Session keeps one bot connected to the gateway, resuming or identifying
// again as the gateway requires.
type Session struct {
	opts       Options
	runID      string
	state      *State
	queue      *Queue
	heartbeat  *Heartbeater
	handshake  *Handshaker
	dispatcher *Dispatcher
	backoff    *backoff.ExponentialBackOff
	logger     zerolog.Logger

	conn atomic.Pointer[Connection]
}

func NewSession(opts Options) (*Session, error) {
	if opts.Credentials == nil || opts.Credentials.Token() == "" {
		return nil, errors.New("gateway: a bot token is required")
	}
	if opts.MaxConnectAttempts < 0 {
		return nil, errors.New("gateway: max connect attempts must not be negative")
	}
	opts.fillDefaults()

	runID := uuid.NewString()
	logger := logging.WithComponent("gateway").With().Str(logging.FieldRunID, runID).Logger()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.InitialBackoff
	eb.MaxInterval = opts.MaxBackoff

	state := NewState()
	queue := NewQueue(context.Background())
	hb := NewHeartbeater(state, logger)
	hs := NewHandshaker(opts.Credentials, state, opts.Properties, logger)
	d := newDispatcher(state, queue, hb, hs, opts.Registry, opts.Responder, opts.Issues, logger)
	d.handlerTimeout = opts.HandlerTimeout

	return &Session{
		opts:       opts,
		runID:      runID,
		state:      state,
		queue:      queue,
		heartbeat:  hb,
		handshake:  hs,
		dispatcher: d,
		backoff:    eb,
		logger:     logger,
	}, nil
}

func (s *Session) RunID() string { return s.runID }
func (s *Session) State() *State { return s.state }
func (s *Session) Phase() Phase  { return s.dispatcher.Phase() }

// Pending returns the number of side effects not yet drained.
func (s *Session) Pending() int { return s.queue.Len() }

// Connected reports whether a gateway connection is currently open.
func (s *Session) Connected() bool { return s.conn.Load() != nil }

// Run connects and serves the gateway until ctx is cancelled or the
// session fails. On cancellation the bot goes offline and Run returns nil.
// Side effects still running are left to finish on their own.
func (s *Session) Run(ctx context.Context) error {
	kind := HandshakeIdentify
	failures := 0

	for {
		if kind == HandshakeResume && !s.state.CanResume() {
			kind = HandshakeIdentify
		}
		target := s.opts.GatewayURL
		if kind == HandshakeIdentify {
			s.state.Reset()
		} else if _, resumeURL := s.state.Identity(); resumeURL != "" {
			target = resumeURL
		}

		s.logger.Info().Str(logging.FieldURL, target).Str("handshake", kind.String()).Msg("connecting")
		conn, err := Connect(ctx, s.opts.Dialer, target, s.opts.Version)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures > s.opts.MaxConnectAttempts {
				return s.fail(&SessionError{SessionID: s.state.SessionID(), Reason: "could not connect", Err: err})
			}
			s.logger.Warn().Err(err).Int("attempt", failures).Msg("connect failed")
			if !s.sleep(ctx) {
				return nil
			}
			continue
		}
		failures = 0

		s.conn.Store(conn)
		next, live, err := s.serve(ctx, conn, kind)
		s.conn.Store(nil)
		if err != nil {
			if errors.Is(err, errShutdown) {
				return nil
			}
			return err
		}

		metrics.IncReconnect(next.String())
		kind = next
		if live {
			s.backoff.Reset()
			continue
		}
		// The connection never got to READY or RESUMED; do not hammer.
		if !s.sleep(ctx) {
			return nil
		}
	}
}

func (s *Session) sleep(ctx context.Context) bool {
	wait := s.backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = s.opts.MaxBackoff
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// serve runs the loop for one connection. It returns how the next
// connection should introduce itself and whether this one reached Live.
func (s *Session) serve(ctx context.Context, conn *Connection, kind HandshakeKind) (HandshakeKind, bool, error) {
	s.state.ResetHeartbeat()
	s.dispatcher.begin(kind)

	frames := make(chan inbound)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readLoop(conn, frames, done)
	}()
	defer func() {
		close(done)
		_ = conn.Close()
		wg.Wait()
	}()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var backlog []inbound
	for {
		s.queue.DrainCompletedPrefix()

		// Once the reader has failed the socket is gone: the buffered frames
		// and then the failure itself are handled without waiting or
		// heartbeating, so a close code is always classified.
		if !readFailedIn(backlog) {
			var err error
			backlog, err = s.awaitSideEffects(ctx, conn, frames, backlog)
			if err != nil {
				if ctx.Err() != nil {
					s.goOffline(conn)
					return 0, false, errShutdown
				}
				return s.connectionFailed(conn, frames, backlog, err)
			}
		}
		if !readFailedIn(backlog) {
			if err := s.heartbeat.MaybeHeartbeat(ctx, conn, false); err != nil {
				return s.connectionFailed(conn, frames, backlog, err)
			}
		}

		var in inbound
		if len(backlog) > 0 {
			in, backlog = backlog[0], backlog[1:]
		} else {
			select {
			case <-ctx.Done():
			case <-ticker.C:
				continue
			case in = <-frames:
			}
		}
		if ctx.Err() != nil {
			s.goOffline(conn)
			return 0, false, errShutdown
		}

		if in.err != nil {
			next, err := s.readFailed(in.err)
			return next, false, err
		}

		p, err := Decode(in.data)
		if err != nil {
			metrics.DecodeFailures.Inc()
			s.opts.Issues.Report(issue.Issue{
				Severity:    issue.Warning,
				Stage:       issue.StageWebsocket,
				Title:       "Could not decode gateway frame",
				Description: err.Error(),
			})
			continue
		}
		metrics.IncReceived(p.Op.String())
		if logging.Tracing() && p.Op != opcodes.Dispatch {
			s.logger.Debug().Str(logging.FieldOpCode, p.Op.String()).RawJSON("data", rawOrNull(p.D)).Msg("frame received")
		}

		action, err := s.dispatcher.Handle(ctx, conn, p)
		if err != nil {
			return s.connectionFailed(conn, frames, backlog, err)
		}
		switch action {
		case ActionResume:
			return s.reconnect(conn, HandshakeResume, nil)
		case ActionReidentify:
			return s.reconnect(conn, HandshakeIdentify, nil)
		}
	}
}

// awaitSideEffects waits for every queued side effect in order before the
// next frame is handled. Heartbeats keep running meanwhile, and heartbeat
// frames from the gateway are answered at once; every other frame is kept
// in the backlog so it is handled in arrival order. A read failure ends the
// wait early and is returned last in the backlog.
func (s *Session) awaitSideEffects(ctx context.Context, conn *Connection, frames <-chan inbound, backlog []inbound) ([]inbound, error) {
	if s.queue.Len() == 0 {
		return backlog, nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	result := make(chan error, 1)
	go func() {
		_, err := s.queue.AwaitAllPendingInOrder(waitCtx)
		result <- err
	}()
	stop := func(err error) ([]inbound, error) {
		cancel()
		<-result
		return backlog, err
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-result:
			cancel()
			return backlog, err
		case <-ctx.Done():
			return stop(ctx.Err())
		case <-ticker.C:
			if err := s.heartbeat.MaybeHeartbeat(ctx, conn, false); err != nil {
				return stop(err)
			}
		case in := <-frames:
			if in.err != nil {
				backlog = append(backlog, in)
				return stop(nil)
			}
			if p, err := Decode(in.data); err == nil {
				switch p.Op {
				case opcodes.HeartbeatACK:
					metrics.IncReceived(p.Op.String())
					s.heartbeat.Acknowledge()
					continue
				case opcodes.Heartbeat:
					metrics.IncReceived(p.Op.String())
					if err := s.heartbeat.MaybeHeartbeat(ctx, conn, true); err != nil {
						return stop(err)
					}
					continue
				}
			}
			backlog = append(backlog, in)
		}
	}
}

func readFailedIn(backlog []inbound) bool {
	return len(backlog) > 0 && backlog[len(backlog)-1].err != nil
}

func readLoop(conn *Connection, frames chan<- inbound, done <-chan struct{}) {
	for {
		data, err := conn.Receive()
		select {
		case frames <- inbound{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// readFailed classifies a receive error. Reconnectable close codes and
// dropped connections resume; any other close code ends the session.
func (s *Session) readFailed(err error) (HandshakeKind, error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code := closeErr.Code
		if opcodes.Reconnectable(code) || code == websocket.CloseAbnormalClosure {
			s.logger.Warn().Int(logging.FieldCloseCode, code).Str("reason", closeErr.Text).Msg("connection closed, resuming")
			return HandshakeResume, nil
		}
		reason := opcodes.CloseDescription(code)
		if reason == "" {
			reason = "connection closed"
		}
		return 0, s.fail(&SessionError{SessionID: s.state.SessionID(), Reason: reason, Code: code, Err: err})
	}
	if isNetworkError(err) {
		s.logger.Warn().Err(err).Msg("connection lost, resuming")
		return HandshakeResume, nil
	}
	return 0, s.fail(&SessionError{SessionID: s.state.SessionID(), Reason: "read failed", Err: err})
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

// connectionFailed handles an error from writing to conn. When the gateway
// closed the socket the write error hides the close code, so the socket is
// closed and the reader's error is classified first.
func (s *Session) connectionFailed(conn *Connection, frames <-chan inbound, backlog []inbound, cause error) (HandshakeKind, bool, error) {
	if errors.Is(cause, ErrAckMissed) {
		return s.reconnect(conn, HandshakeResume, cause)
	}

	var readErr error
	for _, in := range backlog {
		if in.err != nil {
			readErr = in.err
		}
	}
	if readErr == nil {
		_ = conn.Close()
		for in := range frames {
			if in.err != nil {
				readErr = in.err
				break
			}
		}
	}

	var closeErr *websocket.CloseError
	if errors.As(readErr, &closeErr) {
		next, err := s.readFailed(readErr)
		return next, false, err
	}
	return s.reconnect(conn, HandshakeResume, cause)
}

// reconnect closes conn so the next connection can take over. A resume
// closes with a non-normal code, since a normal close ends the session on
// the gateway side.
func (s *Session) reconnect(conn *Connection, next HandshakeKind, cause error) (HandshakeKind, bool, error) {
	live := s.dispatcher.Phase() == PhaseLive
	ev := s.logger.Info().Str("handshake", next.String())
	if cause != nil {
		ev = s.logger.Warn().Err(cause).Str("handshake", next.String())
	}
	ev.Msg("reconnecting")

	code := websocket.CloseNormalClosure
	if next == HandshakeResume {
		code = websocket.CloseServiceRestart
	}
	if err := conn.CloseWithCode(code, ""); err != nil {
		s.logger.Debug().Err(err).Msg("close failed")
	}
	return next, live, nil
}

// goOffline marks the bot invisible and closes the connection normally.
func (s *Session) goOffline(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()

	if s.dispatcher.Phase() == PhaseLive {
		p, err := NewPresenceUpdate(PresenceUpdateData{Status: "invisible"})
		if err == nil {
			if err := sendPayload(ctx, conn, p, s.logger); err != nil {
				s.logger.Debug().Err(err).Msg("could not send offline presence")
			}
		}
	}
	if err := conn.CloseWithCode(websocket.CloseNormalClosure, ""); err != nil {
		s.logger.Debug().Err(err).Msg("close failed")
	}
	s.logger.Info().Int("pending_side_effects", s.queue.Len()).Msg("session stopped")
}

func (s *Session) fail(err *SessionError) error {
	description := err.Reason
	if err.Code != 0 {
		description = fmt.Sprintf("%s (%d)", err.Reason, err.Code)
	}
	if err.Err != nil && err.Code == 0 {
		description += ": " + err.Err.Error()
	}
	s.opts.Issues.Report(issue.Issue{
		Severity:    issue.Fatal,
		Stage:       issue.StageWebsocket,
		Title:       "Gateway session ended",
		Description: description,
	})
	s.logger.Error().Err(err).Str(logging.FieldSessionID, err.SessionID).Msg("session failed")
	return err
}
