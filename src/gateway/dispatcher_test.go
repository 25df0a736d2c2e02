package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal/botkit/src/client"
	"personal/botkit/src/handlers"
	"personal/botkit/src/issue"
	"personal/botkit/src/opcodes"
)

type fakeResponder struct {
	mu        sync.Mutex
	responses []client.InteractionResponse
	ids       []snowflake.ID
	tokens    []string
	err       error
	called    chan struct{}
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{called: make(chan struct{}, 8)}
}

func (f *fakeResponder) CreateInteractionResponse(_ context.Context, id snowflake.ID, token string, response client.InteractionResponse) error {
	f.mu.Lock()
	f.responses = append(f.responses, response)
	f.ids = append(f.ids, id)
	f.tokens = append(f.tokens, token)
	err := f.err
	f.mu.Unlock()
	f.called <- struct{}{}
	return err
}

type dispatcherFixture struct {
	d         *Dispatcher
	state     *State
	queue     *Queue
	tx        *recorder
	issues    *issue.Collector
	responder *fakeResponder
}

func newDispatcherFixture(t *testing.T, registry handlers.Registry) *dispatcherFixture {
	t.Helper()
	state := NewState()
	queue := NewQueue(context.Background())
	logger := zerolog.Nop()
	hb := NewHeartbeater(state, logger)
	hs := NewHandshaker(StaticCredentials{BotToken: "token", BotIntents: 513}, state, DefaultProperties(), logger)
	issues := issue.NewCollector(nil)
	responder := newFakeResponder()
	return &dispatcherFixture{
		d:         newDispatcher(state, queue, hb, hs, registry, responder, issues, logger),
		state:     state,
		queue:     queue,
		tx:        &recorder{},
		issues:    issues,
		responder: responder,
	}
}

func (f *dispatcherFixture) handle(t *testing.T, p Payload) Action {
	t.Helper()
	action, err := f.d.Handle(context.Background(), f.tx, p)
	require.NoError(t, err)
	return action
}

func (f *dispatcherFixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.queue.AwaitAllPendingInOrder(ctx)
	require.NoError(t, err)
}

func dispatchFrame(t *testing.T, event string, seq uint64, data any) Payload {
	t.Helper()
	p, err := NewDispatch(event, seq, data)
	require.NoError(t, err)
	return p
}

func readyData(sessionID, resumeURL string) map[string]any {
	return map[string]any{
		"v":                       10,
		"user":                    map[string]any{"id": "100", "username": "bot", "discriminator": "0", "avatar": nil},
		"guilds":                  []any{map[string]any{"id": "200", "unavailable": true}},
		"session_id":              sessionID,
		"resume_gateway_url":      resumeURL,
		"application":             map[string]any{"id": "300", "flags": 0},
		"_trace":                  []string{"gateway-prd"},
		"geo_ordered_rtc_regions": []string{"us-east"},
	}
}

func TestSequenceFollowsDispatch(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	for seq := uint64(1); seq <= 5; seq++ {
		f.handle(t, dispatchFrame(t, "MESSAGE_CREATE", seq, map[string]any{"content": "hi"}))
	}
	seq := f.state.Sequence()
	require.NotNil(t, seq)
	assert.Equal(t, uint64(5), *seq)
}

func TestHelloSendsHeartbeatAndHandshake(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.d.begin(HandshakeIdentify)

	f.handle(t, NewHello(45*time.Second))

	assert.Equal(t, []opcodes.OpCode{opcodes.Heartbeat, opcodes.Identify}, f.tx.ops())
	assert.Equal(t, 45*time.Second, f.state.HeartbeatInterval())
	assert.Equal(t, PhaseAwaitingReady, f.d.Phase())

	var identify IdentifyData
	require.NoError(t, f.tx.sent()[1].Unmarshal(&identify))
	assert.Equal(t, "token", identify.Token)
	assert.Equal(t, uint32(513), identify.Intents)
	assert.Equal(t, "botkit", identify.Properties.Browser)
}

func TestHelloResumesKnownSession(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.state.SetIdentity("abc", "wss://resume.example")
	f.state.SetSequence(9)
	f.d.begin(HandshakeResume)

	f.handle(t, NewHello(45*time.Second))

	sent := f.tx.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, opcodes.Resume, sent[1].Op)
	var resume ResumeData
	require.NoError(t, sent[1].Unmarshal(&resume))
	assert.Equal(t, "abc", resume.SessionID)
	require.NotNil(t, resume.Seq)
	assert.Equal(t, uint64(9), *resume.Seq)
}

func TestReadyStripsInternalFields(t *testing.T) {
	inputs := make(chan json.RawMessage, 1)
	set := handlers.NewSet()
	set.On(EventReady, handlers.NewFunc(EventReady, func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		inputs <- input
		return nil, nil
	}))
	f := newDispatcherFixture(t, set)

	f.handle(t, dispatchFrame(t, EventReady, 1, readyData("abc", "wss://resume.example")))
	f.settle(t)

	id, resumeURL := f.state.Identity()
	assert.Equal(t, "abc", id)
	assert.Equal(t, "wss://resume.example", resumeURL)
	assert.Equal(t, PhaseLive, f.d.Phase())

	var input map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(<-inputs, &input))
	require.Contains(t, input, "client")
	for _, k := range readyInternalFields {
		assert.NotContains(t, input["client"], k)
	}
	assert.Contains(t, input["client"], "user")
	assert.Contains(t, input["client"], "application")
}

func TestInvalidSessionActions(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	invalid := func(resumable string) Payload {
		return Payload{Op: opcodes.InvalidSession, D: json.RawMessage(resumable)}
	}

	assert.Equal(t, ActionReidentify, f.handle(t, invalid("false")))
	assert.Equal(t, ActionReidentify, f.handle(t, invalid("true")), "nothing to resume yet")

	f.state.SetIdentity("abc", "")
	assert.Equal(t, ActionResume, f.handle(t, invalid("true")))
	assert.Equal(t, ActionReidentify, f.handle(t, Payload{Op: opcodes.InvalidSession}))
	assert.Equal(t, ActionResume, f.handle(t, Payload{Op: opcodes.Reconnect}))
}

func TestServerHeartbeatRequest(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	f.state.SetHeartbeatInterval(time.Hour)
	require.NoError(t, f.d.heartbeat.MaybeHeartbeat(context.Background(), f.tx, true))

	// Unacknowledged, but the gateway asked for it.
	f.handle(t, Payload{Op: opcodes.Heartbeat})
	assert.Equal(t, []opcodes.OpCode{opcodes.Heartbeat, opcodes.Heartbeat}, f.tx.ops())

	f.handle(t, Payload{Op: opcodes.HeartbeatACK})
	assert.True(t, f.state.Acknowledged())
}

func TestUnknownEventsAndOpcodesAreIgnored(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	assert.Equal(t, ActionNone, f.handle(t, dispatchFrame(t, "SOMETHING_NEW", 1, map[string]any{})))
	assert.Equal(t, ActionNone, f.handle(t, Payload{Op: opcodes.Unknown}))
	assert.Zero(t, f.queue.Len())
	assert.Empty(t, f.issues.Issues())
}

func interactionData(name string) map[string]any {
	return map[string]any{
		"id":             "42",
		"application_id": "300",
		"type":           2,
		"token":          "interaction-token",
		"version":        1,
		"data":           map[string]any{"id": "7", "name": name, "type": 1},
	}
}

func commandSet(name string, result string, events chan<- json.RawMessage) *handlers.Set {
	set := handlers.NewSet()
	set.Command(name, handlers.NewFunc(name, func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}))
	if events != nil {
		set.On(EventInteractionCreate, handlers.NewFunc(EventInteractionCreate, func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
			events <- input
			return nil, nil
		}))
	}
	return set
}

func TestCommandStringResponse(t *testing.T) {
	events := make(chan json.RawMessage, 1)
	f := newDispatcherFixture(t, commandSet("ping", `"pong"`, events))

	f.handle(t, dispatchFrame(t, EventInteractionCreate, 3, interactionData("ping")))
	f.settle(t)

	require.Len(t, f.responder.responses, 1)
	res := f.responder.responses[0]
	assert.Equal(t, client.ChannelMessageWithSource, res.Type)
	require.NotNil(t, res.Data)
	assert.Equal(t, "pong", res.Data.Content)
	assert.Equal(t, snowflake.ID(42), f.responder.ids[0])
	assert.Equal(t, "interaction-token", f.responder.tokens[0])

	var input map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(<-events, &input))
	assert.Contains(t, input, "interaction")
	assert.Contains(t, input, "client")
}

func TestCommandEmbedResponse(t *testing.T) {
	f := newDispatcherFixture(t, commandSet("info", `{"title":"x"}`, nil))

	f.handle(t, dispatchFrame(t, EventInteractionCreate, 1, interactionData("info")))
	f.settle(t)

	require.Len(t, f.responder.responses, 1)
	data := f.responder.responses[0].Data
	require.NotNil(t, data)
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, "x", data.Embeds[0].Title)
	assert.Empty(t, data.Content)
}

func TestCommandArrayResponseIsRejected(t *testing.T) {
	f := newDispatcherFixture(t, commandSet("list", `[1,2,3]`, nil))

	f.handle(t, dispatchFrame(t, EventInteractionCreate, 1, interactionData("list")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := f.queue.AwaitAllPendingInOrder(ctx)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Error(t, done[0].Err())

	assert.Empty(t, f.responder.responses)
	errs := f.issues.WithSeverity(issue.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, "Parsing arrays is not supported yet", errs[0].Description)
}

func TestCommandNullResponseSendsNothing(t *testing.T) {
	f := newDispatcherFixture(t, commandSet("quiet", `null`, nil))

	f.handle(t, dispatchFrame(t, EventInteractionCreate, 1, interactionData("quiet")))
	f.settle(t)

	assert.Empty(t, f.responder.responses)
	assert.Empty(t, f.issues.Issues())
}

func TestCommandAPIErrorsBecomeIssues(t *testing.T) {
	f := newDispatcherFixture(t, commandSet("ping", `"pong"`, nil))
	f.responder.err = &client.APIError{
		Status:  400,
		Code:    50035,
		Message: "Invalid Form Body",
		Fields: []client.FieldError{
			{Path: "data.content", Field: "content", Message: "Must be 2000 or fewer in length."},
			{Path: "data.embeds.0.title", Field: "title", Message: "Required"},
		},
	}

	f.handle(t, dispatchFrame(t, EventInteractionCreate, 1, interactionData("ping")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.queue.AwaitAllPendingInOrder(ctx)
	require.NoError(t, err)

	errs := f.issues.WithSeverity(issue.Error)
	require.Len(t, errs, 2)
	assert.Equal(t, "Content", errs[0].Title)
	assert.Equal(t, "Title", errs[1].Title)
}

func TestShapeResponse(t *testing.T) {
	res, err := shapeResponse(json.RawMessage(`"pong"`))
	require.NoError(t, err)
	assert.Equal(t, client.ChannelMessageWithSource, res.Type)
	assert.Equal(t, "pong", res.Data.Content)

	res, err = shapeResponse(json.RawMessage(`{"title":"x","type":"video","footer":{"text":"f"},"fields":[{"name":"a","value":"b","inline":true}]}`))
	require.NoError(t, err)
	require.Len(t, res.Data.Embeds, 1)
	embed := res.Data.Embeds[0]
	assert.Equal(t, "x", embed.Title)
	assert.Equal(t, client.EmbedRich, embed.Type)
	assert.Equal(t, "f", embed.Footer.Text)
	assert.Equal(t, []client.EmbedField{{Name: "a", Value: "b", Inline: true}}, embed.Fields)

	for _, raw := range []string{``, `null`, ` null `} {
		res, err = shapeResponse(json.RawMessage(raw))
		assert.NoError(t, err)
		assert.Nil(t, res)
	}

	rejected := map[string]string{
		`[1,2,3]`:                      "Parsing arrays is not supported yet",
		`true`:                         "Return value of type boolean is not supported",
		`12.5`:                         "Return value of type number is not supported",
		`{"type":"poll"}`:              `Unknown embed type "poll"`,
		`{"footer":{}}`:                "Embed footer is missing text",
		`{"image":{"height":1}}`:       "Embed image is missing url",
		`{"fields":[{"name":"only"}]}`: "Embed field 0 needs a name and a value",
	}
	for raw, description := range rejected {
		_, err := shapeResponse(json.RawMessage(raw))
		var rerr *ResponseError
		require.ErrorAs(t, err, &rerr, raw)
		assert.Equal(t, description, rerr.Description, raw)
	}
}

func TestCleanReadySnakeCasesKeys(t *testing.T) {
	out, err := cleanReady(json.RawMessage(`{"sessionId":"x","privateChannels":[],"user":{"globalName":"kept"},"_trace":[]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"x","private_channels":[],"user":{"globalName":"kept"}}`, string(out))
}

func TestHandlerPanicBecomesIssue(t *testing.T) {
	set := handlers.NewSet()
	set.On(EventReady, handlers.NewFunc(EventReady, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("index out of range")
	}))
	set.Command("ping", handlers.NewFunc("ping", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("boom")
	}))
	f := newDispatcherFixture(t, set)

	f.handle(t, dispatchFrame(t, EventReady, 1, readyData("abc", "")))
	f.handle(t, dispatchFrame(t, EventInteractionCreate, 2, interactionData("ping")))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := f.queue.AwaitAllPendingInOrder(ctx)
	require.NoError(t, err)
	require.Len(t, done, 2)
	for _, e := range done {
		assert.ErrorContains(t, e.Err(), "panicked")
	}

	descriptions := map[string]string{}
	for _, i := range f.issues.WithSeverity(issue.Error) {
		descriptions[i.Title] = i.Description
	}
	require.Len(t, descriptions, 2)
	assert.Contains(t, descriptions["Handler READY failed"], "index out of range")
	assert.Contains(t, descriptions["Handler ping failed"], "boom")
	assert.Empty(t, f.responder.responses)
	assert.Equal(t, PhaseLive, f.d.Phase())
}

func TestMalformedInvalidSessionIsLogged(t *testing.T) {
	f := newDispatcherFixture(t, nil)
	var logs bytes.Buffer
	f.d.logger = zerolog.New(&logs)
	f.state.SetIdentity("abc", "")

	action := f.handle(t, Payload{Op: opcodes.InvalidSession, D: json.RawMessage(`"yes"`)})
	assert.Equal(t, ActionReidentify, action)
	assert.Contains(t, logs.String(), "malformed invalid session payload")
}

func TestCommandInputEncodingFailureIsLogged(t *testing.T) {
	f := newDispatcherFixture(t, commandSet("ping", `"pong"`, nil))
	var logs bytes.Buffer
	f.d.logger = zerolog.New(&logs)
	f.state.SetClientData(json.RawMessage(`{"user":`))

	f.handle(t, dispatchFrame(t, EventInteractionCreate, 1, interactionData("ping")))
	assert.Zero(t, f.queue.Len())
	assert.Contains(t, logs.String(), "could not encode handler input")
	assert.Contains(t, logs.String(), `"command":"ping"`)
}
