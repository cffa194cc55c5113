package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/config"
	"github.com/hubenschmidt/go-pagesearch/server"
	"github.com/hubenschmidt/go-pagesearch/server/store"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a pagesearch.yaml config file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("load .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("load config")
	}
	logger := config.NewLogger(cfg.Log, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	svc, err := pagesearch.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	runs, err := store.NewRunStore(cfg.Ledger.DSN)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{Pipeline: svc, Runs: runs, Logger: logger})
	if err != nil {
		runs.Close()
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Str("version", server.Version).Msg("starting pagesearch server")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
