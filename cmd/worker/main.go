package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-engine/internal/app"
	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	logger.Info("worker running, waiting for due contacts...")
	if err := run(ctx, a); err != nil {
		logger.Error("worker stopped", zap.Error(err))
	}
}

// run drives the send loop and the daily reply scan until ctx ends.
func run(ctx context.Context, a *app.App) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Orchestrator.Run(ctx)
	})
	g.Go(func() error {
		return a.Scheduler.Run(ctx)
	})
	return g.Wait()
}
