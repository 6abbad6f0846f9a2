package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/geoquery/internal/app"
	"github.com/mohammed-shakir/geoquery/internal/core/config"
	"github.com/mohammed-shakir/geoquery/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real environment wins
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "geoquery",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting geoquery",
		"addr", cfg.Addr,
		"version", Version,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"catalog", cfg.Catalog.Source)

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("close", "err", err)
		}
	}()

	if err := a.Serve(ctx, Version); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("server error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
