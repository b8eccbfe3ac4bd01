// Package main runs the background worker: email delivery and the periodic
// sponsorship validation sweep.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aura-platform/sponsorships/config"
	"github.com/aura-platform/sponsorships/internal/app"
	"github.com/aura-platform/sponsorships/internal/worker"
)

func main() {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	sender, err := a.Sender()
	if err != nil {
		logger.Fatal("mail sender", zap.Error(err))
	}

	emails := worker.NewEmailProcessor(a.Queue, a.EmailLogs, sender, logger.Named("email_worker"))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return emails.Run(gctx) })

	// Self-hosted installations hold no cloud sponsorships to sweep.
	if !cfg.Sponsorship.SelfHosted {
		sweeper := worker.NewValidationSweeper(a.Sponsorships, a.Service, a.Redis,
			cfg.Sponsorship.ValidateInterval, cfg.Sponsorship.ValidateTimeout, logger.Named("sweeper"))
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	logger.Info("worker started")
	if err := g.Wait(); err != nil {
		logger.Error("worker exited", zap.Error(err))
	}
	logger.Info("worker stopped")
}
