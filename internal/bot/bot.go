package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/relay"
)

// RouterFactory builds a router for a configuration. botID is the bot's own user ID.
type RouterFactory func(cfg *config.Config, botID string) (*relay.Router, error)

// Bot connects a relay.Router to Discord
type Bot struct {
	session *discordgo.Session
	factory RouterFactory
	logger  zerolog.Logger

	router atomic.Pointer[relay.Router]
	config atomic.Pointer[config.Config]

	// reloadMu serializes reloads; handlers never take it
	reloadMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new bot instance. The router is built once the session is open.
func New(cfg *config.Config, factory RouterFactory, logger zerolog.Logger) (*Bot, error) {
	if cfg.Discord.Token == "" {
		return nil, errors.New("DISCORD_TOKEN is not set")
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		session: session,
		factory: factory,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	b.config.Store(cfg)

	b.registerHandlers()

	return b, nil
}

// Start opens the gateway connection, builds the router and registers the slash command
func (b *Bot) Start() error {
	b.logger.Info().Msg("Starting Discord bot...")

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	cfg := b.config.Load()
	router, err := b.factory(cfg, b.botID())
	if err != nil {
		b.session.Close()
		return fmt.Errorf("failed to build router: %w", err)
	}
	b.router.Store(router)

	if err := b.registerCommands(cfg); err != nil {
		b.session.Close()
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.logger.Info().Msg("Bot started successfully")
	return nil
}

// Stop cancels in-flight requests and closes the session
func (b *Bot) Stop() error {
	b.logger.Info().Msg("Stopping Discord bot...")

	b.cancel()

	if err := b.session.Close(); err != nil {
		b.logger.Error().Err(err).Msg("Failed to close Discord session")
		return err
	}

	b.logger.Info().Msg("Bot stopped")
	return nil
}

// Reload builds a router from cfg and swaps it in. Requests already running
// keep the router they started with.
func (b *Bot) Reload(cfg *config.Config) error {
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()

	router, err := b.factory(cfg, b.botID())
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	prev := b.config.Load()
	if prev.Chat.TriggerWord != cfg.Chat.TriggerWord || prev.Chat.Name != cfg.Chat.Name || prev.Discord.GuildID != cfg.Discord.GuildID {
		if err := b.registerCommands(cfg); err != nil {
			return fmt.Errorf("failed to register commands: %w", err)
		}
	}

	b.router.Store(router)
	b.config.Store(cfg)

	b.logger.Info().
		Str("model", cfg.Chat.Model).
		Str("trigger_word", cfg.Chat.TriggerWord).
		Bool("picture_mode", cfg.Chat.PictureMode).
		Msg("Router swapped")
	return nil
}

// Ready reports whether the gateway is connected and a router is installed
func (b *Bot) Ready() bool {
	return b.session.DataReady && b.router.Load() != nil
}

func (b *Bot) botID() string {
	if b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

// registerHandlers registers Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteractionCreate)
	b.session.AddHandler(b.handleMessageCreate)
	b.session.AddHandler(b.handleReady)
}

// handleReady is called when the bot is ready
func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Bot is ready")
}
