package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Console output until the configured format is known
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:           "discord-relay",
		Usage:          "Discord chat bot backed by an OpenAI-compatible completion endpoint",
		DefaultCommand: "run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config/config.yaml",
				Sources: cli.EnvVars("RELAY_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Path to a .env file with secrets",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and answer messages",
				Action: runAction,
			},
			{
				Name:   "check",
				Usage:  "Validate the configuration and exit",
				Action: checkAction,
			},
			{
				Name:      "render",
				Usage:     "Render a text file to a PNG card using the picture mode template",
				ArgsUsage: "<text-file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output PNG path",
						Value:   "reply.png",
					},
				},
				Action: renderAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("discord-relay failed")
	}
}
