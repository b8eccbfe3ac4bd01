package commands

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/config"
	"github.com/aura-platform/sponsorships/internal/app"
)

// NewRootCommand builds the sponsorctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "sponsorctl",
		Short:        "Operate organization sponsorships",
		SilenceUsage: true,
	}
	root.AddCommand(
		newProtectorKeyCommand(),
		newValidateCommand(),
		newInspectTokenCommand(),
		newSweepCommand(),
	)
	return root
}

// withApp loads config, connects and runs fn with the wired application.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init", zap.Error(err))
		return err
	}
	defer a.Close()
	return fn(a)
}
