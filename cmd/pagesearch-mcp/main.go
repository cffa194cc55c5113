package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/config"
	"github.com/hubenschmidt/go-pagesearch/server"
	"github.com/hubenschmidt/go-pagesearch/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a pagesearch.yaml config file")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", tools.ServerName, server.Version)
		return
	}

	// stdout carries the protocol, so logs go to stderr.
	if err := config.LoadDotEnv(); err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("load .env")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("load config")
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := pagesearch.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open pipelines")
	}
	defer svc.Close()

	mcpServer := tools.NewServer(svc, server.Version, logger)
	logger.Info().Str("version", server.Version).Msg("mcp server ready on stdio")

	if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("mcp server stopped")
	}
}
