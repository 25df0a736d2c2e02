package client

import (
	"fmt"
	"strconv"
	"strings"
)

// Gateway intents.
const (
	IntentGuilds                      uint32 = 1 << 0
	IntentGuildMembers                uint32 = 1 << 1
	IntentGuildModeration             uint32 = 1 << 2
	IntentGuildEmojisAndStickers      uint32 = 1 << 3
	IntentGuildIntegrations           uint32 = 1 << 4
	IntentGuildWebhooks               uint32 = 1 << 5
	IntentGuildInvites                uint32 = 1 << 6
	IntentGuildVoiceStates            uint32 = 1 << 7
	IntentGuildPresences              uint32 = 1 << 8
	IntentGuildMessages               uint32 = 1 << 9
	IntentGuildMessageReactions       uint32 = 1 << 10
	IntentGuildMessageTyping          uint32 = 1 << 11
	IntentDirectMessages              uint32 = 1 << 12
	IntentDirectMessageReactions      uint32 = 1 << 13
	IntentDirectMessageTyping         uint32 = 1 << 14
	IntentMessageContent              uint32 = 1 << 15
	IntentGuildScheduledEvents        uint32 = 1 << 16
	IntentAutoModerationConfiguration uint32 = 1 << 20
	IntentAutoModerationExecution     uint32 = 1 << 21
)

var intentNames = map[string]uint32{
	"GUILDS":                        IntentGuilds,
	"GUILD_MEMBERS":                 IntentGuildMembers,
	"GUILD_MODERATION":              IntentGuildModeration,
	"GUILD_EMOJIS_AND_STICKERS":     IntentGuildEmojisAndStickers,
	"GUILD_INTEGRATIONS":            IntentGuildIntegrations,
	"GUILD_WEBHOOKS":                IntentGuildWebhooks,
	"GUILD_INVITES":                 IntentGuildInvites,
	"GUILD_VOICE_STATES":            IntentGuildVoiceStates,
	"GUILD_PRESENCES":               IntentGuildPresences,
	"GUILD_MESSAGES":                IntentGuildMessages,
	"GUILD_MESSAGE_REACTIONS":       IntentGuildMessageReactions,
	"GUILD_MESSAGE_TYPING":          IntentGuildMessageTyping,
	"DIRECT_MESSAGES":               IntentDirectMessages,
	"DIRECT_MESSAGE_REACTIONS":      IntentDirectMessageReactions,
	"DIRECT_MESSAGE_TYPING":         IntentDirectMessageTyping,
	"MESSAGE_CONTENT":               IntentMessageContent,
	"GUILD_SCHEDULED_EVENTS":        IntentGuildScheduledEvents,
	"AUTO_MODERATION_CONFIGURATION": IntentAutoModerationConfiguration,
	"AUTO_MODERATION_EXECUTION":     IntentAutoModerationExecution,
}

// ParseIntents accepts either a decimal bitmask or a comma separated list of
// intent names ("GUILDS,GUILD_MESSAGES"). Names are case insensitive.
func ParseIntents(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil
	}
	var intents uint32
	for _, name := range strings.Split(s, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		bit, ok := intentNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown intent %q", name)
		}
		intents |= bit
	}
	return intents, nil
}
