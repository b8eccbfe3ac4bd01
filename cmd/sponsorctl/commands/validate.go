package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-platform/sponsorships/internal/app"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sponsoredOrgID>",
		Short: "Re-check one sponsored organization and remove an ineligible sponsorship",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid organization id: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				valid, err := a.Service.Validate(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s valid=%t\n", id, valid)
				return err
			})
		},
	}
}
