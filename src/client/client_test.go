package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal/botkit/src/issue"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("secret", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
}

func TestGatewayBot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gateway/bot", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"url":"wss://gateway.example","shards":1,"session_start_limit":{"total":1000,"remaining":999,"reset_after":0,"max_concurrency":1}}`)
	})

	res, err := c.GatewayBot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example", res.URL)
	assert.Equal(t, 999, res.SessionStartLimit.Remaining)
}

func TestCreateInteractionResponse(t *testing.T) {
	var body InteractionResponse
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/interactions/42/tok/callback", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.CreateInteractionResponse(context.Background(), snowflake.ID(42), "tok", InteractionResponse{
		Type: ChannelMessageWithSource,
		Data: &InteractionCallbackData{Content: "pong"},
	})
	require.NoError(t, err)
	assert.Equal(t, ChannelMessageWithSource, body.Type)
	require.NotNil(t, body.Data)
	assert.Equal(t, "pong", body.Data.Content)
}

func TestGetGlobalApplicationCommands(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/applications/7/commands", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"1","type":1,"application_id":"7","name":"ping","description":"Replies","version":"3"}]`)
	})

	commands, err := c.GetGlobalApplicationCommands(context.Background(), snowflake.ID(7))
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "ping", commands[0].Name)
	assert.Equal(t, snowflake.ID(7), commands[0].ApplicationID)
}

func TestValidationErrorsBecomeIssues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{
			"code": 50035,
			"message": "Invalid Form Body",
			"errors": {
				"data": {
					"content": {"_errors": [{"code": "BASE_TYPE_MAX_LENGTH", "message": "Must be 2000 or fewer in length."}]},
					"embeds": {"0": {"image_url": {"_errors": [{"code": "URL_TYPE_INVALID_URL", "message": "Not a well formed URL."}]}}}
				}
			}
		}`)
	})

	err := c.CreateInteractionResponse(context.Background(), snowflake.ID(1), "tok", InteractionResponse{Type: Pong})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 50035, apiErr.Code)
	require.Len(t, apiErr.Fields, 2)
	assert.Equal(t, "data.content", apiErr.Fields[0].Path)
	assert.Equal(t, "data.embeds.0.image_url", apiErr.Fields[1].Path)

	issues := apiErr.Issues("commands/ping.js")
	require.Len(t, issues, 2)
	assert.Equal(t, "Content", issues[0].Title)
	assert.Equal(t, "Must be 2000 or fewer in length.", issues[0].Description)
	assert.Equal(t, "Image Url", issues[1].Title)
	assert.Equal(t, issue.Error, issues[1].Severity)
	assert.Equal(t, "commands/ping.js", issues[1].Path)
}

func TestPlainErrorBecomesSingleIssue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code": 10062, "message": "Unknown interaction"}`)
	})

	err := c.CreateInteractionResponse(context.Background(), snowflake.ID(1), "tok", InteractionResponse{Type: Pong})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)

	issues := apiErr.Issues("")
	require.Len(t, issues, 1)
	assert.Equal(t, "10062: Unknown interaction", issues[0].Title)
}

func TestParseIntents(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "513", want: 513},
		{in: "GUILDS, guild_messages", want: IntentGuilds | IntentGuildMessages},
		{in: "GUILDS,NOPE", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIntents(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
