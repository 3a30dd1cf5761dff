package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cbodonnell/scribble/pkg/api"
	"github.com/cbodonnell/scribble/pkg/config"
	"github.com/cbodonnell/scribble/pkg/game"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/network"
	"github.com/cbodonnell/scribble/pkg/queue"
	"github.com/cbodonnell/scribble/pkg/repositories"
	"github.com/cbodonnell/scribble/pkg/version"
	"github.com/cbodonnell/scribble/pkg/words"
	"github.com/cbodonnell/scribble/pkg/workers"
	"github.com/urfave/cli/v3"
)

const (
	shutdownTimeout    = 10 * time.Second
	archiveQueueSize   = 10000
	minJanitorInterval = time.Second
)

func main() {
	cmd := &cli.Command{
		Name:    "scribble-server",
		Usage:   "Serve draw-and-guess rooms over HTTP and websockets",
		Version: version.Get(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML, JSON or TOML config file",
				Sources: cli.EnvVars("SCRIBBLE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (error, warn, info, debug, trace), overrides the config file",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "scribble-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Addr = addr
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	parsedLogLevel, err := log.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	log.SetDefaultLogger(log.New(os.Stdout, parsedLogLevel))
	defer log.Sync()
	log.Info("Log level set to %s", parsedLogLevel)
	log.Info("Starting server version %s", version.Get())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	wg := &sync.WaitGroup{}

	var repository repositories.Repository
	var archiveQueue queue.Queue
	if cfg.DatabaseURL != "" {
		repository, err = repositories.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open repository: %v", err)
		}
		defer func() {
			if err := repository.Close(context.Background()); err != nil {
				log.Error("Failed to close repository: %v", err)
			}
		}()

		q := queue.NewInMemoryQueue(archiveQueueSize)
		archiveQueue = q
		archiveWorker := workers.NewArchiveWorker(workers.NewArchiveWorkerOptions{
			Repository: repository,
			Queue:      q,
			Interval:   cfg.Archive.Interval,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiveWorker.Start(workerCtx)
		}()
	} else {
		log.Warn("No database_url configured, finished games will not be archived")
	}

	pool := words.NewPool(words.NewPoolOptions{
		DefaultCategory: cfg.Game.DefaultCategory,
	})
	connections := network.NewConnectionManager()

	registry := game.NewRegistry(game.NewRegistryOptions{
		Connections:   connections,
		Pool:          pool,
		Archive:       archiveQueue,
		DrawDuration:  cfg.Game.DrawDuration,
		AdvanceDelay:  cfg.Game.AdvanceDelay,
		WordChoices:   cfg.Game.WordChoices,
		DefaultRounds: cfg.Game.DefaultRounds,
		MaxRounds:     cfg.Game.MaxRounds,
		MaxPlayers:    cfg.Game.MaxPlayers,
	})

	janitorInterval := cfg.Game.IdleTimeout / 2
	if janitorInterval < minJanitorInterval {
		janitorInterval = minJanitorInterval
	}
	janitor := workers.NewRoomJanitor(workers.NewRoomJanitorOptions{
		Rooms:    registry,
		MaxIdle:  cfg.Game.IdleTimeout,
		Interval: janitorInterval,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		janitor.Start(workerCtx)
	}()

	wsServer := network.NewWSServer(network.NewWSServerOptions{
		Connections:   connections,
		Handler:       registry,
		AllowedOrigin: cfg.AllowedOrigin,
		SendBuffer:    cfg.Network.SendBuffer,
		InboundRate:   cfg.Network.InboundRate,
		InboundBurst:  cfg.Network.InboundBurst,
		WriteTimeout:  cfg.Network.WriteTimeout,
		PongWait:      cfg.Network.PongWait,
	})

	var tlsConfig *api.TLSConfig
	if cfg.TLS.Enabled() {
		tlsConfig = &api.TLSConfig{
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
		}
	}
	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Addr:          cfg.Addr,
		TLS:           tlsConfig,
		Registry:      registry,
		WSServer:      wsServer,
		Pool:          pool,
		Repository:    repository,
		AllowedOrigin: cfg.AllowedOrigin,
	})
	go apiServer.Start()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}

	registry.Close()

	// the archive worker flushes whatever the closed rooms left queued
	cancelWorkers()
	wg.Wait()

	log.Info("Server stopped")
	return nil
}
