package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"

	"personal/botkit/src/client"
	"personal/botkit/src/handlers"
	"personal/botkit/src/issue"
	"personal/botkit/src/logging"
	"personal/botkit/src/opcodes"
)

// Phase is where a connection is in its lifecycle.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseIdentifying
	PhaseAwaitingReady
	PhaseLive
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseIdentifying:
		return "identifying"
	case PhaseAwaitingReady:
		return "awaiting_ready"
	case PhaseLive:
		return "live"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Action tells the session what to do with the connection after a frame.
type Action int

const (
	ActionNone Action = iota
	ActionResume
	ActionReidentify
)

// InteractionResponder answers interactions over REST.
type InteractionResponder interface {
	CreateInteractionResponse(ctx context.Context, id snowflake.ID, token string, response client.InteractionResponse) error
}

const (
	EventReady             = "READY"
	EventResumed           = "RESUMED"
	EventInteractionCreate = "INTERACTION_CREATE"
)

// Fields of READY that only matter to the connection, not to user code.
var readyInternalFields = []string{"_trace", "geo_ordered_rtc_regions", "session_id", "resume_gateway_url"}

// handlerInput is the document passed to handlers. READY handlers get only
// client, INTERACTION_CREATE handlers get interaction and client, and every
// other event gets data and client.
type handlerInput struct {
	Data        json.RawMessage `json:"data,omitempty"`
	Interaction json.RawMessage `json:"interaction,omitempty"`
	Client      json.RawMessage `json:"client"`
}

// Dispatcher applies decoded frames to the session state and starts
// handlers as side effects. It is driven by one goroutine at a time.
type Dispatcher struct {
	state     *State
	queue     *Queue
	heartbeat *Heartbeater
	handshake *Handshaker
	registry  handlers.Registry
	responder InteractionResponder
	issues    issue.Reporter
	logger    zerolog.Logger

	handlerTimeout time.Duration

	phase   atomic.Int32
	pending HandshakeKind
}

func newDispatcher(state *State, queue *Queue, hb *Heartbeater, hs *Handshaker, registry handlers.Registry, responder InteractionResponder, issues issue.Reporter, logger zerolog.Logger) *Dispatcher {
	if registry == nil {
		registry = handlers.Empty
	}
	if issues == nil {
		issues = issue.Nop
	}
	return &Dispatcher{
		state:     state,
		queue:     queue,
		heartbeat: hb,
		handshake: hs,
		registry:  registry,
		responder: responder,
		issues:    issues,
		logger:    logger,
	}
}

func (d *Dispatcher) Phase() Phase {
	return Phase(d.phase.Load())
}

func (d *Dispatcher) setPhase(p Phase) {
	old := Phase(d.phase.Swap(int32(p)))
	if old != p {
		d.logger.Debug().
			Str(logging.FieldOldPhase, old.String()).
			Str(logging.FieldNewPhase, p.String()).
			Msg("phase changed")
	}
}

// begin prepares for a new connection that will introduce itself with kind
// once Hello arrives.
func (d *Dispatcher) begin(kind HandshakeKind) {
	d.pending = kind
	d.setPhase(PhaseConnecting)
}

// Handle processes one frame. A returned error means the connection can no
// longer be written to.
func (d *Dispatcher) Handle(ctx context.Context, tx FrameSender, p Payload) (Action, error) {
	switch p.Op {
	case opcodes.Hello:
		return d.handleHello(ctx, tx, p)
	case opcodes.Heartbeat:
		return ActionNone, d.heartbeat.MaybeHeartbeat(ctx, tx, true)
	case opcodes.HeartbeatACK:
		d.heartbeat.Acknowledge()
		return ActionNone, nil
	case opcodes.Reconnect:
		d.logger.Info().Msg("gateway requested reconnect")
		return ActionResume, nil
	case opcodes.InvalidSession:
		var resumable bool
		if len(p.D) > 0 {
			if err := json.Unmarshal(p.D, &resumable); err != nil {
				d.logger.Debug().Err(err).Bytes("data", p.D).Msg("malformed invalid session payload")
			}
		}
		d.logger.Warn().Bool("resumable", resumable).Msg("invalid session")
		if resumable && d.state.CanResume() {
			return ActionResume, nil
		}
		return ActionReidentify, nil
	case opcodes.Dispatch:
		d.handleDispatch(p)
		return ActionNone, nil
	default:
		d.logger.Debug().Str(logging.FieldOpCode, p.Op.String()).Msg("ignoring frame")
		return ActionNone, nil
	}
}

func (d *Dispatcher) handleHello(ctx context.Context, tx FrameSender, p Payload) (Action, error) {
	var hello HelloData
	if err := p.Unmarshal(&hello); err != nil {
		return ActionNone, fmt.Errorf("hello: %w", err)
	}
	if hello.HeartbeatInterval == 0 {
		return ActionNone, errors.New("hello: heartbeat interval is zero")
	}
	d.state.SetHeartbeatInterval(hello.Interval())
	d.setPhase(PhaseIdentifying)

	if err := d.heartbeat.MaybeHeartbeat(ctx, tx, true); err != nil {
		return ActionNone, err
	}
	if err := d.handshake.Send(ctx, tx, d.pending); err != nil {
		if errors.Is(err, ErrNoSession) {
			return ActionReidentify, nil
		}
		return ActionNone, err
	}
	d.setPhase(PhaseAwaitingReady)
	return ActionNone, nil
}

func (d *Dispatcher) handleDispatch(p Payload) {
	if p.S != nil {
		d.state.SetSequence(*p.S)
	}
	event := p.Event()
	if logging.Tracing() {
		d.logger.Debug().Str(logging.FieldEvent, event).RawJSON("data", rawOrNull(p.D)).Msg("dispatch")
	}

	switch event {
	case EventReady:
		d.handleReady(p)
	case EventResumed:
		d.setPhase(PhaseLive)
		d.logger.Info().Str(logging.FieldSessionID, d.state.SessionID()).Msg("session resumed")
		d.fireEvent(event, handlerInput{Data: p.D, Client: d.state.ClientData()})
	case EventInteractionCreate:
		d.handleInteraction(p)
	default:
		d.fireEvent(event, handlerInput{Data: p.D, Client: d.state.ClientData()})
	}
}

func (d *Dispatcher) handleReady(p Payload) {
	var ready ReadyData
	if err := p.Unmarshal(&ready); err != nil {
		d.issues.Report(issue.Issue{
			Severity:    issue.Error,
			Stage:       issue.StageWebsocket,
			Title:       "Invalid READY payload",
			Description: err.Error(),
		})
		return
	}
	d.state.SetIdentity(ready.SessionID, ready.ResumeGatewayURL)

	clientData, err := cleanReady(p.D)
	if err != nil {
		d.logger.Warn().Err(err).Msg("could not clean READY payload")
		clientData = nil
	}
	d.state.SetClientData(clientData)
	d.setPhase(PhaseLive)

	d.logger.Info().
		Str(logging.FieldSessionID, ready.SessionID).
		Str("user", ready.User.Username).
		Int("guilds", len(ready.Guilds)).
		Msg("session ready")

	d.fireEvent(EventReady, handlerInput{Client: clientData})
}

func (d *Dispatcher) handleInteraction(p Payload) {
	var in client.Interaction
	if err := p.Unmarshal(&in); err != nil {
		d.issues.Report(issue.Issue{
			Severity:    issue.Warning,
			Stage:       issue.StageWebsocket,
			Title:       "Invalid INTERACTION_CREATE payload",
			Description: err.Error(),
		})
		return
	}
	input := handlerInput{Interaction: p.D, Client: d.state.ClientData()}

	if name := in.CommandName(); name != "" {
		if h, ok := d.registry.LookupCommand(name); ok {
			raw, err := json.Marshal(input)
			if err != nil {
				d.logger.Warn().Err(err).Str("command", name).Msg("could not encode handler input")
			} else {
				d.spawn("command "+name, h, func(ctx context.Context) error {
					return d.runCommand(ctx, h, in, raw)
				})
			}
		} else {
			d.logger.Debug().Str("command", name).Msg("no handler for command")
		}
	}
	d.fireEvent(EventInteractionCreate, input)
}

func (d *Dispatcher) fireEvent(event string, input handlerInput) {
	if event == "" {
		return
	}
	h, ok := d.registry.LookupEvent(event)
	if !ok {
		return
	}
	raw, err := json.Marshal(input)
	if err != nil {
		d.logger.Warn().Err(err).Str(logging.FieldEvent, event).Msg("could not encode handler input")
		return
	}
	d.spawn("event "+event, h, func(ctx context.Context) error {
		ctx, cancel := d.withHandlerTimeout(ctx)
		defer cancel()
		if _, err := h.Invoke(ctx, raw); err != nil {
			d.reportHandlerError(h, err)
			return err
		}
		return nil
	})
}

// spawn queues fn as a side effect of handler h. A panic in fn is reported
// against h like any other handler failure.
func (d *Dispatcher) spawn(name string, h handlers.Handler, fn func(ctx context.Context) error) {
	d.queue.Go(name, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", name, r)
				d.reportHandlerError(h, err)
			}
		}()
		return fn(ctx)
	})
}

func (d *Dispatcher) runCommand(ctx context.Context, h handlers.Handler, in client.Interaction, raw json.RawMessage) error {
	hctx, cancel := d.withHandlerTimeout(ctx)
	out, err := h.Invoke(hctx, raw)
	cancel()
	if err != nil {
		d.reportHandlerError(h, err)
		return err
	}

	response, err := shapeResponse(out)
	if err != nil {
		var rerr *ResponseError
		if errors.As(err, &rerr) {
			d.issues.Report(issue.Issue{
				Severity:    issue.Error,
				Stage:       issue.StageRuntime,
				Title:       rerr.Title,
				Description: rerr.Description,
				Path:        h.Path(),
			})
		}
		return err
	}
	if response == nil {
		return nil
	}
	if d.responder == nil {
		d.logger.Warn().Str(logging.FieldHandler, h.Name()).Msg("no REST client configured, dropping interaction response")
		return nil
	}

	if err := d.responder.CreateInteractionResponse(ctx, in.ID, in.Token, *response); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			for _, i := range apiErr.Issues(h.Path()) {
				d.issues.Report(i)
			}
		} else {
			d.issues.Report(issue.Issue{
				Severity:    issue.Error,
				Stage:       issue.StageAPI,
				Title:       "Could not respond to interaction",
				Description: err.Error(),
				Path:        h.Path(),
			})
		}
		return err
	}
	return nil
}

func (d *Dispatcher) withHandlerTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.handlerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.handlerTimeout)
}

func (d *Dispatcher) reportHandlerError(h handlers.Handler, err error) {
	d.issues.Report(issue.Issue{
		Severity:    issue.Error,
		Stage:       issue.StageRuntime,
		Title:       fmt.Sprintf("Handler %s failed", h.Name()),
		Description: err.Error(),
		Path:        h.Path(),
	})
}

// cleanReady removes connection internals from READY and snake_cases the
// top level keys.
func cleanReady(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, k := range readyInternalFields {
		delete(fields, k)
	}
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		out[snakeCase(k)] = v
	}
	return json.Marshal(out)
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
