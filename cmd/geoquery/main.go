// Command geoquery runs single queries against the engine without the HTTP
// server: ask a natural-language question or inspect the layer catalogue.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geoquery/internal/app"
	"github.com/mohammed-shakir/geoquery/internal/core/config"
	"github.com/mohammed-shakir/geoquery/internal/core/router"
	"github.com/mohammed-shakir/geoquery/internal/dispatch"
	"github.com/mohammed-shakir/geoquery/internal/logger"
)

var Version = "dev"

type engine interface {
	router.Dispatcher
	router.LayerAPI
}

type opener func(ctx context.Context, cfg config.Config) (engine, io.Closer, error)

type appEngine struct {
	*dispatch.Dispatcher
	*dispatch.LayerService
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(openApp).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func openApp(ctx context.Context, cfg config.Config) (engine, io.Closer, error) {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Service:   "geoquery",
		Component: "cli",
	}, os.Stderr)
	a, err := app.Build(ctx, cfg, logger.NewSlog(&zl))
	if err != nil {
		return nil, nil, err
	}
	return appEngine{a.Dispatcher, a.Layers}, a, nil
}

func newRootCmd(open opener) *cobra.Command {
	var (
		eng    engine
		closer io.Closer
		level  string
	)
	root := &cobra.Command{
		Use:           "geoquery",
		Short:         "Natural-language spatial queries over PostGIS layers",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if level != "" {
				cfg.LogLevel = level
			}
			var err error
			eng, closer, err = open(cmd.Context(), cfg)
			if err != nil {
				return fail(cmd, err)
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if closer != nil {
				return closer.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", "", "override LOG_LEVEL")

	get := func() engine { return eng }
	root.AddCommand(newAskCmd(get), newLayersCmd(get))
	return root
}

func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	return err
}
