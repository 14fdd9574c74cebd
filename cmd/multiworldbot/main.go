// Package main provides the multiworld bot binary: it holds a lobby session
// open, joins games on request, and optionally attaches an operator console
// to stdin.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/multiworld/internal/bot"
	"github.com/cory-johannsen/multiworld/internal/config"
	"github.com/cory-johannsen/multiworld/internal/console"
	"github.com/cory-johannsen/multiworld/internal/importer"
	"github.com/cory-johannsen/multiworld/internal/multiworld"
	"github.com/cory-johannsen/multiworld/internal/observability"
	"github.com/cory-johannsen/multiworld/internal/server"
	"github.com/cory-johannsen/multiworld/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = defaults and environment only")
	attachConsole := flag.Bool("console", false, "attach the operator console to stdin (overrides console.stdin)")
	color := flag.Bool("color", true, "colorize console output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	dialer := &transport.WebsocketDialer{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		WriteTimeout:     cfg.Session.WriteTimeout,
	}
	b, err := bot.New(bot.Config{
		BaseAddress:   cfg.Service.BaseAddress,
		LobbyEndpoint: cfg.Service.LobbyEndpoint,
		Token:         cfg.Bot.Token,
		Name:          cfg.Bot.Name,
		DefaultKind:   multiworld.Kind(cfg.Service.DefaultGameKind),
		InboxSize:     cfg.Session.InboxSize,
		Backoff:       cfg.Session.Backoff,
		TokenTTL:      cfg.Lobby.CreationTokenTTL,
		SweepInterval: cfg.Bot.SweepInterval,
	}, dialer, logger)
	if err != nil {
		logger.Fatal("creating bot", zap.Error(err))
	}

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("bot", &server.FuncService{
		StartFn: b.Run,
		StopFn:  b.Stop,
	})

	opts := console.Options{Color: cfg.Console.Color && *color, Prompt: "mw> "}
	if cfg.Importer.Enabled() {
		opts.Importer = importer.New(&importer.HTTPSource{
			URL:     cfg.Importer.URL,
			Token:   cfg.Importer.Token,
			Timeout: cfg.Importer.Timeout,
		}, logger.Named("importer"))
	}
	if *attachConsole || cfg.Console.Stdin {
		con := console.New(b, os.Stdout, opts, logger.Named("console"))
		lifecycle.Add("console", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				return ignoreCancel(con.Run(ctx, os.Stdin))
			},
		})
	}

	logger.Info("multiworld bot initialized",
		zap.String("base_address", cfg.Service.BaseAddress),
		zap.String("name", cfg.Bot.Name),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("bot error", zap.Error(err))
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
