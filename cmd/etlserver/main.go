// Command etlserver runs the control-plane HTTP server: it exposes
// endpoints to trigger pipeline runs and to query execution history and
// quality metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"banketl/internal/app"
)

func main() {
	configFile := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, *configFile)
	if err != nil {
		slog.Error("failed to start application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(gCtx)
	})

	if err := g.Wait(); err != nil {
		application.Logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	application.Logger.Info("server stopped")
}
