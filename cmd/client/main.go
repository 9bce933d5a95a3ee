package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/handfill/internal/config"
	"github.com/DoyleJ11/handfill/internal/docstore/remote"
	"github.com/DoyleJ11/handfill/internal/logging"
	"github.com/DoyleJ11/handfill/internal/profile"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/DoyleJ11/handfill/internal/session"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	var name string
	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "room server url")
	flag.StringVar(&cfg.ProfilePath, "profile", cfg.ProfilePath, "profile file")
	flag.StringVar(&cfg.Difficulty, "difficulty", cfg.Difficulty, "easy, normal, hard or extreme")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "classic, infinite or challenge")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flag.StringVar(&name, "name", "", "display name (defaults to the profile's)")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := logging.NewConsole(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, name, logger); err != nil {
		logger.Error("client stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Client, name string, logger *zap.Logger) error {
	clock := clockwork.NewRealClock()
	profiles := profile.NewFileStore(cfg.ProfilePath)
	tracker, err := profile.NewTracker(ctx, profiles, logger.Named("profile"))
	if err != nil {
		return fmt.Errorf("load profile %s: %w", profiles.Path(), err)
	}
	logger.Debug("profile loaded", zap.String("path", profiles.Path()))
	if name == "" {
		name = tracker.Profile().Username
	}
	if name != "" {
		if name, err = room.NormalizeName(name); err != nil {
			return err
		}
	}

	store := remote.New(cfg.ServerURL, clock, logger.Named("remote"))
	a := &app{
		rooms:   rooms.NewClient(store, clock, logger.Named("rooms")),
		tracker: tracker,
		opts: session.Options{
			Clock:    clock,
			Logger:   logger.Named("session"),
			Reporter: tracker,
		},
		logger:     logger,
		out:        &syncWriter{w: os.Stdout},
		name:       name,
		difficulty: cfg.Difficulty,
		mode:       cfg.Mode,
	}
	return a.run(ctx, os.Stdin)
}
