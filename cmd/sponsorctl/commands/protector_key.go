package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aura-platform/sponsorships/pkg/protect"
)

func newProtectorKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "protector-key",
		Short: "Generate a SPONSORSHIP_PROTECTOR_KEY for a cloud deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := protect.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}
