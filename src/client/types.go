package client

import (
	"github.com/bwmarrin/snowflake"
)

type InteractionType int

const (
	PingInteraction                           InteractionType = 1
	ApplicationCommandInteraction             InteractionType = 2
	MessageComponentInteraction               InteractionType = 3
	ApplicationCommandAutocompleteInteraction InteractionType = 4
	ModalSubmitInteraction                    InteractionType = 5
)

// Interaction holds the fields of an INTERACTION_CREATE payload that the
// gateway needs for routing and replying. Handlers receive the raw payload.
type Interaction struct {
	ID            snowflake.ID     `json:"id"`
	ApplicationID snowflake.ID     `json:"application_id"`
	Type          InteractionType  `json:"type"`
	Data          *InteractionData `json:"data,omitempty"`
	GuildID       *snowflake.ID    `json:"guild_id,omitempty"`
	ChannelID     *snowflake.ID    `json:"channel_id,omitempty"`
	Token         string           `json:"token"`
	Version       int              `json:"version"`
}

type InteractionData struct {
	ID   snowflake.ID           `json:"id"`
	Name string                 `json:"name"`
	Type ApplicationCommandType `json:"type"`
}

// CommandName returns the invoked command name, or "" when the interaction
// carries no command data.
func (i Interaction) CommandName() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.Name
}

type InteractionCallbackType int

const (
	Pong                                 InteractionCallbackType = 1
	ChannelMessageWithSource             InteractionCallbackType = 4
	DeferredChannelMessageWithSource     InteractionCallbackType = 5
	DeferredUpdateMessage                InteractionCallbackType = 6
	UpdateMessage                        InteractionCallbackType = 7
	ApplicationCommandAutocompleteResult InteractionCallbackType = 8
	Modal                                InteractionCallbackType = 9
)

type InteractionResponse struct {
	Type InteractionCallbackType  `json:"type"`
	Data *InteractionCallbackData `json:"data,omitempty"`
}

type InteractionCallbackData struct {
	TTS     bool    `json:"tts,omitempty"`
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
	Flags   int     `json:"flags,omitempty"`
}

type EmbedType string

const (
	EmbedRich    EmbedType = "rich"
	EmbedImage   EmbedType = "image"
	EmbedGifv    EmbedType = "gifv"
	EmbedArticle EmbedType = "article"
	EmbedLink    EmbedType = "link"
)

type Embed struct {
	Title       string         `json:"title,omitempty"`
	Type        EmbedType      `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Color       *int           `json:"color,omitempty"`
	Footer      *EmbedFooter   `json:"footer,omitempty"`
	Image       *EmbedMedia    `json:"image,omitempty"`
	Thumbnail   *EmbedMedia    `json:"thumbnail,omitempty"`
	Video       *EmbedMedia    `json:"video,omitempty"`
	Provider    *EmbedProvider `json:"provider,omitempty"`
	Author      *EmbedAuthor   `json:"author,omitempty"`
	Fields      []EmbedField   `json:"fields,omitempty"`
}

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedMedia struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type EmbedProvider struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}
