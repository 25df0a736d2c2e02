package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// CreateInteractionResponse replies to an interaction. The interaction token
// authenticates the call, so it works without the bot token as well.
func (c *Client) CreateInteractionResponse(ctx context.Context, id snowflake.ID, token string, response InteractionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", id, token)
	if err := c.do(ctx, http.MethodPost, path, response, nil); err != nil {
		return fmt.Errorf("client: create interaction response: %w", err)
	}
	return nil
}

// GetGlobalApplicationCommands lists the commands registered for the
// application outside of any guild.
func (c *Client) GetGlobalApplicationCommands(ctx context.Context, applicationID snowflake.ID) ([]ApplicationCommand, error) {
	var commands []ApplicationCommand
	path := fmt.Sprintf("/applications/%s/commands", applicationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &commands); err != nil {
		return nil, fmt.Errorf("client: get global application commands: %w", err)
	}
	return commands, nil
}

// CurrentApplication returns the application owned by the bot token.
func (c *Client) CurrentApplication(ctx context.Context) (PartialApplication, error) {
	var app PartialApplication
	if err := c.do(ctx, http.MethodGet, "/applications/@me", nil, &app); err != nil {
		return PartialApplication{}, fmt.Errorf("client: get current application: %w", err)
	}
	return app, nil
}
