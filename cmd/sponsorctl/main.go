// Package main is the operator CLI for sponsorship maintenance.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aura-platform/sponsorships/cmd/sponsorctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := commands.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
