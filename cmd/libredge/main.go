package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/libredge/libredge/internal/config"
	"github.com/libredge/libredge/internal/gateway"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	var logger *zap.Logger
	if *logLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting libredge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The artifact is compiled and the service stood up before the
	// listener opens: no request is ever handled pre-init.
	srv, err := gateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", zap.Error(err))
	}
	defer srv.Close(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server shutdown complete")
}
