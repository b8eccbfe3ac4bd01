package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aura-platform/sponsorships/internal/app"
	"github.com/aura-platform/sponsorships/internal/models"
)

type tokenReport struct {
	SponsorshipID       string `yaml:"sponsorship_id"`
	PlanSponsorshipType string `yaml:"plan_sponsorship_type"`
	State               string `yaml:"state"`
	OfferedToEmail      string `yaml:"offered_to_email,omitempty"`
	SponsoredOrgID      string `yaml:"sponsored_organization_id,omitempty"`
	Redeemable          bool   `yaml:"redeemable"`
}

func reportFor(sp *models.Sponsorship) tokenReport {
	r := tokenReport{
		SponsorshipID: sp.ID.String(),
		State:         string(sp.State()),
		Redeemable:    sp.State() == models.SponsorshipOffered,
	}
	if sp.PlanSponsorshipType != nil {
		r.PlanSponsorshipType = string(*sp.PlanSponsorshipType)
	}
	if sp.OfferedToEmail != nil {
		r.OfferedToEmail = *sp.OfferedToEmail
	}
	if sp.SponsoredOrganizationID != nil {
		r.SponsoredOrgID = sp.SponsoredOrganizationID.String()
	}
	return r
}

func newInspectTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect-token <token>",
		Short: "Decode a redemption token and show the sponsorship it names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgFlag, err := cmd.Flags().GetString("sponsoring-org")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				ctx := cmd.Context()
				var sponsoringOrg *models.Organization
				if orgFlag != "" {
					orgID, err := uuid.Parse(orgFlag)
					if err != nil {
						return fmt.Errorf("invalid --sponsoring-org: %w", err)
					}
					if sponsoringOrg, err = a.Organizations.GetByID(ctx, orgID); err != nil {
						return err
					}
					if sponsoringOrg == nil {
						return fmt.Errorf("organization %s not found", orgID)
					}
				}
				sp, err := a.Service.VerifyToken(ctx, args[0], sponsoringOrg)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				defer enc.Close()
				return enc.Encode(reportFor(sp))
			})
		},
	}
	cmd.Flags().String("sponsoring-org", "", "sponsoring organization id; required for self-hosted tokens")
	return cmd
}
