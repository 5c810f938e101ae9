package bot

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/s33g/discord-relay/internal/relay"
)

const (
	// typingDelay keeps the indicator off for messages the router ignores straight away
	typingDelay = 250 * time.Millisecond
	// typingInterval refreshes the indicator before Discord's 10s expiry
	typingInterval = 8 * time.Second
)

// noMentions stops replies from pinging anyone the completion happens to name
var noMentions = &discordgo.MessageAllowedMentions{}

// handleInteractionCreate handles the trigger-word slash command
func (b *Bot) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	router := b.router.Load()
	data := i.ApplicationCommandData()
	if router == nil || data.Name != router.TriggerWord() {
		b.respondError(s, i, "Unknown command")
		return
	}

	text := getStringOption(data.Options, messageOption)
	if strings.TrimSpace(text) == "" {
		b.respondError(s, i, "Please include a message")
		return
	}

	// Defer initial response to avoid timeout
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.logger.Error().Err(err).Msg("Failed to defer interaction")
		return
	}

	ev := eventFromInteraction(i)
	reply := router.Command(b.ctx, ev, text)
	reply = b.prepare(b.ctx, router, reply)

	edit := &discordgo.WebhookEdit{AllowedMentions: noMentions}
	var rest []string
	if reply.Image != nil {
		edit.Files = []*discordgo.File{imageFile(reply)}
		edit.Content = stringPtr("")
	} else {
		chunks := splitMessage(reply.Text, maxMessageLength)
		edit.Content = stringPtr(chunks[0])
		rest = chunks[1:]
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.logger.Error().Err(err).Str("interaction_id", i.ID).Msg("Failed to edit interaction response")
		return
	}

	for _, chunk := range rest {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content:         chunk,
			AllowedMentions: noMentions,
		}); err != nil {
			b.logger.Error().Err(err).Str("interaction_id", i.ID).Msg("Failed to send follow-up message")
			return
		}
	}

	b.logger.Info().
		Str("user", ev.AuthorName).
		Str("command", data.Name).
		Str("origin", reply.Origin.String()).
		Msg("Command answered")
}

// handleMessageCreate passes every human message through the router
func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot messages
	if m.Author == nil || m.Author.Bot {
		return
	}

	router := b.router.Load()
	if router == nil {
		return
	}

	stopTyping := b.keepTyping(s, m.ChannelID)
	ev := eventFromMessage(m.Message, b.botID())
	reply, ok := router.Dispatch(b.ctx, ev)
	if !ok {
		stopTyping()
		return
	}

	reply = b.prepare(b.ctx, router, reply)
	stopTyping()

	b.send(s, m.ChannelID, m.Reference(), reply)
}

// prepare runs the outbound hook. Failures and empty replies become the error message.
func (b *Bot) prepare(ctx context.Context, router *relay.Router, reply *relay.Reply) *relay.Reply {
	// Checked before rendering so picture mode never delivers a blank card
	if reply.Image == nil && strings.TrimSpace(reply.Text) == "" {
		b.logger.Warn().Msg("Completion returned empty text, sending error message instead")
		return router.Fallback()
	}
	if err := router.BeforeSend(ctx, reply); err != nil {
		b.logger.Error().Err(err).Msg("Failed to prepare reply, sending error message instead")
		return router.Fallback()
	}
	return reply
}

// send delivers a reply to a channel, as a file or as one or more text messages
func (b *Bot) send(s *discordgo.Session, channelID string, ref *discordgo.MessageReference, reply *relay.Reply) {
	if reply.Image != nil {
		_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Files:           []*discordgo.File{imageFile(reply)},
			Reference:       ref,
			AllowedMentions: noMentions,
		})
		if err != nil {
			b.logger.Error().Err(err).Str("channel", channelID).Msg("Failed to send image reply")
		}
		return
	}

	for i, chunk := range splitMessage(reply.Text, maxMessageLength) {
		msg := &discordgo.MessageSend{
			Content:         chunk,
			AllowedMentions: noMentions,
		}
		if i == 0 {
			msg.Reference = ref
		}
		if _, err := s.ChannelMessageSendComplex(channelID, msg); err != nil {
			b.logger.Error().Err(err).Str("channel", channelID).Msg("Failed to send reply")
			return
		}
	}
}

// keepTyping shows the typing indicator until the returned func is called
func (b *Bot) keepTyping(s *discordgo.Session, channelID string) func() {
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(typingDelay)
		defer timer.Stop()
		for {
			select {
			case <-done:
				return
			case <-b.ctx.Done():
				return
			case <-timer.C:
				if err := s.ChannelTyping(channelID); err != nil {
					b.logger.Debug().Err(err).Msg("Failed to send typing indicator")
				}
				timer.Reset(typingInterval)
			}
		}
	}()

	return sync.OnceFunc(func() { close(done) })
}

func (b *Bot) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, errMsg string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "❌ " + errMsg,
			Flags:   discordgo.MessageFlagsEphemeral, // Only visible to user
		},
	})
}

func imageFile(reply *relay.Reply) *discordgo.File {
	return &discordgo.File{
		Name:        reply.Image.Name,
		ContentType: reply.Image.ContentType,
		Reader:      bytes.NewReader(reply.Image.Data),
	}
}

// eventFromMessage converts a gateway message. Mentions of the bot are removed
// from the content and kept as elements.
func eventFromMessage(m *discordgo.Message, botID string) relay.Event {
	ev := relay.Event{
		ID:         m.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Content:    stripMention(m.Content, botID),
	}
	if m.Member != nil {
		ev.RoleIDs = m.Member.Roles
	}
	for _, u := range m.Mentions {
		ev.Elements = append(ev.Elements, relay.Element{
			Type: relay.ElementMention,
			ID:   u.ID,
			Name: u.Username,
		})
	}
	return ev
}

// eventFromInteraction converts a slash command invocation
func eventFromInteraction(i *discordgo.InteractionCreate) relay.Event {
	ev := relay.Event{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
	}

	user := i.User
	if i.Member != nil {
		ev.RoleIDs = i.Member.Roles
		user = i.Member.User
	}
	if user != nil {
		ev.AuthorID = user.ID
		ev.AuthorName = user.Username
	}
	return ev
}

// stripMention removes <@id> and <@!id> tokens for botID
func stripMention(content, botID string) string {
	if botID == "" {
		return content
	}
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}
