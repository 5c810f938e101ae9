package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/s33g/discord-relay/internal/bot"
	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/gate"
	"github.com/s33g/discord-relay/internal/llm"
	"github.com/s33g/discord-relay/internal/prompt"
	"github.com/s33g/discord-relay/internal/ratelimit"
	"github.com/s33g/discord-relay/internal/relay"
	"github.com/s33g/discord-relay/internal/render"
	"github.com/s33g/discord-relay/internal/server"
	"github.com/s33g/discord-relay/internal/storage"
	"github.com/s33g/discord-relay/internal/telemetry"
)

// loadConfig reads the .env file, if any, and the configuration file
func loadConfig(cmd *cli.Command) (*config.Config, string, error) {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	path := cmd.String("config")
	log.Info().Str("path", path).Msg("Loading configuration...")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from the logging section
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "text" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.With().Timestamp().Logger()

	log.Logger = logger
	return logger
}

// components holds the long-lived collaborators shared by every router
type components struct {
	storage    *storage.Client
	limiter    *ratelimit.Limiter
	rasterizer *render.RodRasterizer
	tokens     *prompt.TokenCounter
	logger     zerolog.Logger
}

func newComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *components {
	c := &components{
		rasterizer: render.NewRodRasterizer(cfg.Render, logger.With().Str("component", "render").Logger()),
		tokens:     prompt.NewTokenCounter(),
		logger:     logger,
	}

	if !cfg.Redis.Enabled() {
		logger.Info().Msg("Redis not configured - rate limiting disabled")
		return c
	}

	client, err := storage.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable - rate limiting disabled")
		return c
	}
	limiter, err := ratelimit.NewLimiter(ctx, client)
	if err != nil {
		client.Close()
		logger.Warn().Err(err).Msg("Failed to initialize rate limiter - rate limiting disabled")
		return c
	}

	c.storage = client
	c.limiter = limiter
	return c
}

// newRouter is the bot's RouterFactory
func (c *components) newRouter(cfg *config.Config, botID string) (*relay.Router, error) {
	client, err := llm.NewClient(cfg.Chat, c.logger.With().Str("component", "llm").Logger())
	if err != nil {
		return nil, err
	}

	deps := relay.Deps{
		Completer: client,
		Prompts:   prompt.NewBuilder(cfg.Chat.Persona),
		Gate:      gate.New(cfg.Chat, cfg.Discord, botID),
		Tokens:    c.tokens,
	}
	if cfg.Chat.PictureMode {
		deps.Renderer = render.NewRenderer(cfg.Render, c.rasterizer, c.logger.With().Str("component", "render").Logger())
	}
	if c.limiter != nil {
		deps.Limiter = c.limiter
	}

	return relay.New(cfg.Chat, cfg.RateLimits, deps, c.logger.With().Str("component", "relay").Logger())
}

func (c *components) Close() {
	c.rasterizer.Close()
	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	mainLogger := logger.With().Str("component", "main").Logger()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			mainLogger.Error().Err(err).Msg("Failed to flush traces")
		}
	}()

	comps := newComponents(ctx, cfg, logger)
	defer comps.Close()

	mainLogger.Info().Msg("Creating bot...")
	b, err := bot.New(cfg, comps.newRouter, logger.With().Str("component", "bot").Logger())
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	if err := b.Start(); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}
	defer b.Stop()

	watcher, err := config.NewWatcher(path, b.Reload, logger.With().Str("component", "config").Logger())
	if err != nil {
		mainLogger.Warn().Err(err).Msg("Failed to create config watcher - hot reload disabled")
	} else {
		go watcher.Run(ctx)
	}

	if cfg.Server.Address != "" {
		checks := map[string]server.Check{
			"discord": func(context.Context) error {
				if !b.Ready() {
					return errors.New("not connected")
				}
				return nil
			},
		}
		if comps.storage != nil {
			checks["redis"] = comps.storage.Ping
		}

		srv := server.New(cfg.Server.Address, checks, logger.With().Str("component", "server").Logger())
		go func() {
			if err := srv.Run(ctx); err != nil {
				mainLogger.Error().Err(err).Msg("Ops server failed")
			}
		}()
	}

	mainLogger.Info().Msg("Bot is running. Press Ctrl+C to exit.")
	<-ctx.Done()

	mainLogger.Info().Msg("Shutting down...")
	return nil
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("%s: ok\n", path)
	fmt.Printf("  name:          %s\n", cfg.Chat.Name)
	fmt.Printf("  endpoint:      %s\n", cfg.Chat.APIAddress)
	fmt.Printf("  model:         %s\n", cfg.Chat.Model)
	fmt.Printf("  trigger word:  %s\n", cfg.Chat.TriggerWord)
	fmt.Printf("  picture mode:  %t\n", cfg.Chat.PictureMode)
	fmt.Printf("  mention gate:  %t\n", cfg.Chat.RequireMention)
	fmt.Printf("  rate limiting: %t\n", cfg.Redis.Enabled())
	if cfg.Discord.Token == "" {
		fmt.Println("  warning: DISCORD_TOKEN is not set; run will fail")
	}
	return nil
}

func renderAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("render expects exactly one text file")
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	text, err := os.ReadFile(cmd.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	rasterizer := render.NewRodRasterizer(cfg.Render, logger)
	defer rasterizer.Close()

	img, err := render.NewRenderer(cfg.Render, rasterizer, logger).Render(ctx, string(text))
	if err != nil {
		return err
	}

	out := cmd.String("out")
	if err := os.WriteFile(out, img.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	logger.Info().Str("path", out).Int("bytes", len(img.Data)).Msg("Card rendered")
	return nil
}
