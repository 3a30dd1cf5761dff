package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "scribble-bot",
		Usage:   "Create or join a room and play it automatically",
		Version: version.Get(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "base URL of the scribble server",
				Value:   "http://localhost:8000",
				Sources: cli.EnvVars("SCRIBBLE_SERVER"),
			},
			&cli.StringFlag{
				Name:  "room",
				Usage: "room to join; a new room is created when empty",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "display name",
				Value: "bot",
			},
			&cli.IntFlag{
				Name:  "rounds",
				Usage: "total rounds when creating a room",
				Value: 3,
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "word category when creating a room",
			},
			&cli.IntFlag{
				Name:  "min-players",
				Usage: "connected players the host waits for before starting",
				Value: 2,
			},
			&cli.DurationFlag{
				Name:  "guess-interval",
				Usage: "delay between guesses",
				Value: 2 * time.Second,
			},
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Origin header sent with the websocket handshake",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (error, warn, info, debug, trace)",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "scribble-bot: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	parsedLogLevel, err := log.ParseLogLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	log.SetDefaultLogger(log.New(os.Stdout, parsedLogLevel))
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot := NewBot(NewBotOptions{
		ServerURL:     cmd.String("server"),
		Name:          cmd.String("name"),
		RoomID:        cmd.String("room"),
		TotalRounds:   int(cmd.Int("rounds")),
		Category:      cmd.String("category"),
		MinPlayers:    int(cmd.Int("min-players")),
		GuessInterval: cmd.Duration("guess-interval"),
		Origin:        cmd.String("origin"),
	})
	return bot.Run(ctx)
}
