package client

import (
	"github.com/bwmarrin/snowflake"
)

type GatewayBotResponse struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	Discriminator string       `json:"discriminator"`
	GlobalName    *string      `json:"global_name,omitempty"`
	Avatar        *string      `json:"avatar"`
	Bot           *bool        `json:"bot,omitempty"`
	System        *bool        `json:"system,omitempty"`
	MFAEnabled    *bool        `json:"mfa_enabled,omitempty"`
	Banner        *string      `json:"banner,omitempty"`
	AccentColor   *int         `json:"accent_color,omitempty"`
	Locale        *string      `json:"locale,omitempty"`
	Verified      *bool        `json:"verified,omitempty"`
	Email         *string      `json:"email,omitempty"`
	Flags         *int         `json:"flags,omitempty"`
	PremiumType   *int         `json:"premium_type,omitempty"`
	PublicFlags   *int         `json:"public_flags,omitempty"`
}

type UnavailableGuild struct {
	ID          snowflake.ID `json:"id"`
	Unavailable bool         `json:"unavailable"`
}

type PartialApplication struct {
	ID    snowflake.ID `json:"id"`
	Flags int          `json:"flags"`
}

type ApplicationCommandType int

const (
	ChatInputCommand ApplicationCommandType = 1
	UserCommand      ApplicationCommandType = 2
	MessageCommand   ApplicationCommandType = 3
)

type ApplicationCommand struct {
	ID                       snowflake.ID               `json:"id"`
	Type                     ApplicationCommandType     `json:"type"`
	ApplicationID            snowflake.ID               `json:"application_id"`
	GuildID                  *snowflake.ID              `json:"guild_id,omitempty"`
	Name                     string                     `json:"name"`
	Description              string                     `json:"description"`
	Options                  []ApplicationCommandOption `json:"options,omitempty"`
	DefaultMemberPermissions *string                    `json:"default_member_permissions,omitempty"`
	NSFW                     bool                       `json:"nsfw,omitempty"`
	Version                  snowflake.ID               `json:"version"`
}

type ApplicationCommandOption struct {
	Type        int                        `json:"type"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Required    bool                       `json:"required,omitempty"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}
