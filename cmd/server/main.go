package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/handfill/internal/config"
	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/docstore/pgstore"
	"github.com/DoyleJ11/handfill/internal/httpapi"
	"github.com/DoyleJ11/handfill/internal/logging"
	"github.com/DoyleJ11/handfill/internal/rooms"
	"github.com/DoyleJ11/handfill/internal/sweeper"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// closableStore is what every server-side store backend provides.
type closableStore interface {
	docstore.Store
	Close() error
}

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "document store: memory or postgres")
	flag.DurationVar(&cfg.SweepInterval, "sweep", cfg.SweepInterval, "expired room sweep interval")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, logger *zap.Logger) (err error) {
	clock := clockwork.NewRealClock()

	store, err := openStore(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	sw, err := sweeper.New(rooms.NewClient(store, clock, logger), clock, logger.Named("sweeper"), cfg.SweepInterval)
	if err != nil {
		return err
	}
	if err := sw.Start(ctx); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sw.Stop()) }()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(store, logger.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Server, clock clockwork.Clock, logger *zap.Logger) (closableStore, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return pgstore.Open(ctx, cfg.DatabaseURL, clock, logger.Named("pgstore"))
	default:
		return docstore.NewMemory(context.Background(), clock, logger.Named("memory")), nil
	}
}
