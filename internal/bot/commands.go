package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/s33g/discord-relay/internal/config"
)

// messageOption is the slash command's free-text option
const messageOption = "message"

// commandsFor returns the slash commands for a chat configuration
func commandsFor(chat config.ChatConfig) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        chat.TriggerWord,
			Description: fmt.Sprintf("Ask %s a question", chat.Name),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        messageOption,
					Description: "Your message",
					Required:    true,
				},
			},
		},
	}
}

// registerCommands replaces the application's commands in the configured guild,
// or globally when no guild is set.
func (b *Bot) registerCommands(cfg *config.Config) error {
	commands := commandsFor(cfg.Chat)

	_, err := b.session.ApplicationCommandBulkOverwrite(b.botID(), cfg.Discord.GuildID, commands)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("guild", cfg.Discord.GuildID).
			Str("command", cfg.Chat.TriggerWord).
			Msg("Failed to register command")
		return err
	}

	b.logger.Info().
		Str("guild", cfg.Discord.GuildID).
		Str("command", cfg.Chat.TriggerWord).
		Msg("Registered slash command")
	return nil
}

func getStringOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func stringPtr(s string) *string {
	return &s
}
