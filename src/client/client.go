package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"personal/botkit/src/logging"
)

const (
	// DiscordAPI is the versioned REST base URL.
	DiscordAPI = "https://discord.com/api/v10"
	// DefaultGateway is used when no gateway lookup or override is available.
	DefaultGateway = "wss://gateway.discord.gg"
	// APIVersion is the gateway and REST API version spoken by this package.
	APIVersion = 10

	userAgent = "DiscordBot (https://github.com/personal/botkit, 0.1.0)"
)

// Client is a minimal Discord REST client. It is safe for concurrent use.
// There is no rate limit handling: callers issue few requests per event.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DiscordAPI,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.WithComponent("rest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GatewayBot returns the gateway URL and session start limits for the bot.
func (c *Client) GatewayBot(ctx context.Context) (GatewayBotResponse, error) {
	var response GatewayBotResponse
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &response); err != nil {
		return GatewayBotResponse{}, fmt.Errorf("client: get gateway: %w", err)
	}
	return response, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bot %s", c.token))
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making http request: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Msg("discord api request")

	if res.StatusCode >= http.StatusBadRequest {
		return parseAPIError(res.StatusCode, resBody)
	}
	if out == nil || res.StatusCode == http.StatusNoContent || len(resBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return fmt.Errorf("could not unmarshal response body: %w", err)
	}
	return nil
}
