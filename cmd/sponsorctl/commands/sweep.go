package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aura-platform/sponsorships/internal/app"
	"github.com/aura-platform/sponsorships/internal/worker"
)

func newSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Validate every sponsored organization once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			noLock, err := cmd.Flags().GetBool("no-lock")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				var locker worker.Locker
				if !noLock {
					locker = a.Redis
				}
				sweeper := worker.NewValidationSweeper(a.Sponsorships, a.Service, locker,
					a.Config.Sponsorship.ValidateInterval, a.Config.Sponsorship.ValidateTimeout, a.Logger.Named("sweeper"))
				res, err := sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "checked=%d valid=%d removed=%d failed=%d\n",
					res.Checked, res.Valid, res.Removed, res.Failed)
				return err
			})
		},
	}
	cmd.Flags().Bool("no-lock", false, "run even if another worker holds the sweep lock")
	return cmd
}
