// Package gate decides whether an inbound message may trigger the bot.
package gate

import (
	"slices"
	"strings"

	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/relay"
)

// Everyone in allowed_roles admits every author
const Everyone = "@everyone"

// Gate checks mentions of the bot and role membership
type Gate struct {
	name         string
	botID        string
	allowedRoles []string
}

// New creates a gate. botID is the bot's own user ID.
func New(chat config.ChatConfig, discord config.DiscordConfig, botID string) *Gate {
	return &Gate{
		name:         chat.Name,
		botID:        botID,
		allowedRoles: slices.Clone(discord.AllowedRoles),
	}
}

// Mentioned reports whether ev mentions the bot by ID or by its configured name
func (g *Gate) Mentioned(ev relay.Event) bool {
	for _, m := range ev.Mentions() {
		if g.botID != "" && m.ID == g.botID {
			return true
		}
		if g.name != "" && strings.EqualFold(m.Name, g.name) {
			return true
		}
	}
	return false
}

// Permitted reports whether the author holds one of the allowed roles.
// An empty role list permits everyone.
func (g *Gate) Permitted(ev relay.Event) bool {
	if len(g.allowedRoles) == 0 {
		return true
	}

	for _, role := range g.allowedRoles {
		if role == Everyone || slices.Contains(ev.RoleIDs, role) {
			return true
		}
	}
	return false
}
