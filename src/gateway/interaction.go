package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"personal/botkit/src/client"
)

// ResponseError explains why a command handler's return value could not be
// turned into an interaction response.
type ResponseError struct {
	Title       string
	Description string
}

func (e *ResponseError) Error() string {
	return e.Title + ": " + e.Description
}

func unsupported(kind string) *ResponseError {
	return &ResponseError{
		Title:       "Failed to parse command response",
		Description: fmt.Sprintf("Return value of type %s is not supported", kind),
	}
}

// shapeResponse converts a command handler result into an interaction
// response. A string becomes the message content and an object becomes an
// embed. Null means the handler does not reply, and the response is nil.
func shapeResponse(out json.RawMessage) (*client.InteractionResponse, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch c := trimmed[0]; {
	case c == 'n':
		return nil, nil
	case c == '"':
		var content string
		if err := json.Unmarshal(trimmed, &content); err != nil {
			return nil, &ResponseError{Title: "Failed to parse command response", Description: err.Error()}
		}
		return &client.InteractionResponse{
			Type: client.ChannelMessageWithSource,
			Data: &client.InteractionCallbackData{Content: content},
		}, nil
	case c == '{':
		embed, err := parseEmbed(trimmed)
		if err != nil {
			return nil, err
		}
		return &client.InteractionResponse{
			Type: client.ChannelMessageWithSource,
			Data: &client.InteractionCallbackData{Embeds: []client.Embed{embed}},
		}, nil
	case c == '[':
		return nil, &ResponseError{
			Title:       "Failed to parse command response",
			Description: "Parsing arrays is not supported yet",
		}
	case c == 't' || c == 'f':
		return nil, unsupported("boolean")
	default:
		return nil, unsupported("number")
	}
}

type embedInput struct {
	Title       string                `json:"title"`
	Type        string                `json:"type"`
	Description string                `json:"description"`
	URL         string                `json:"url"`
	Timestamp   string                `json:"timestamp"`
	Color       *int                  `json:"color"`
	Footer      *footerInput          `json:"footer"`
	Image       *mediaInput           `json:"image"`
	Thumbnail   *mediaInput           `json:"thumbnail"`
	Video       *mediaInput           `json:"video"`
	Provider    *client.EmbedProvider `json:"provider"`
	Author      *authorInput          `json:"author"`
	Fields      []fieldInput          `json:"fields"`
}

type footerInput struct {
	Text    *string `json:"text"`
	IconURL string  `json:"icon_url"`
}

type mediaInput struct {
	URL    *string `json:"url"`
	Height int     `json:"height"`
	Width  int     `json:"width"`
}

type authorInput struct {
	Name    *string `json:"name"`
	URL     string  `json:"url"`
	IconURL string  `json:"icon_url"`
}

type fieldInput struct {
	Name   *string `json:"name"`
	Value  *string `json:"value"`
	Inline bool    `json:"inline"`
}

var embedTypes = map[string]client.EmbedType{
	"rich":    client.EmbedRich,
	"image":   client.EmbedImage,
	"video":   client.EmbedRich,
	"gifv":    client.EmbedGifv,
	"article": client.EmbedArticle,
	"link":    client.EmbedLink,
}

func parseEmbed(raw []byte) (client.Embed, error) {
	fail := func(format string, args ...any) (client.Embed, error) {
		return client.Embed{}, &ResponseError{
			Title:       "Failed to parse command response",
			Description: fmt.Sprintf(format, args...),
		}
	}

	var in embedInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fail("%v", err)
	}

	embed := client.Embed{
		Title:       in.Title,
		Description: in.Description,
		URL:         in.URL,
		Timestamp:   in.Timestamp,
		Color:       in.Color,
		Provider:    in.Provider,
	}
	if in.Type != "" {
		t, ok := embedTypes[in.Type]
		if !ok {
			return fail("Unknown embed type %q", in.Type)
		}
		embed.Type = t
	}
	if in.Footer != nil {
		if in.Footer.Text == nil {
			return fail("Embed footer is missing text")
		}
		embed.Footer = &client.EmbedFooter{Text: *in.Footer.Text, IconURL: in.Footer.IconURL}
	}
	if in.Author != nil {
		if in.Author.Name == nil {
			return fail("Embed author is missing name")
		}
		embed.Author = &client.EmbedAuthor{Name: *in.Author.Name, URL: in.Author.URL, IconURL: in.Author.IconURL}
	}
	media := []struct {
		name string
		in   *mediaInput
		out  **client.EmbedMedia
	}{
		{"image", in.Image, &embed.Image},
		{"thumbnail", in.Thumbnail, &embed.Thumbnail},
		{"video", in.Video, &embed.Video},
	}
	for _, m := range media {
		if m.in == nil {
			continue
		}
		if m.in.URL == nil {
			return fail("Embed %s is missing url", m.name)
		}
		*m.out = &client.EmbedMedia{URL: *m.in.URL, Height: m.in.Height, Width: m.in.Width}
	}
	for i, f := range in.Fields {
		if f.Name == nil || f.Value == nil {
			return fail("Embed field %d needs a name and a value", i)
		}
		embed.Fields = append(embed.Fields, client.EmbedField{Name: *f.Name, Value: *f.Value, Inline: f.Inline})
	}
	return embed, nil
}
