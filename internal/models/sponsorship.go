package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanSponsorshipType names a sponsorship plan a slot can offer.
type PlanSponsorshipType string

const (
	PlanSponsorshipFamiliesForEnterprise PlanSponsorshipType = "FamiliesForEnterprise"
)

var planSponsorshipTypes = []PlanSponsorshipType{
	PlanSponsorshipFamiliesForEnterprise,
}

// ParsePlanSponsorshipType matches s against the known literals, ignoring case.
func ParsePlanSponsorshipType(s string) (PlanSponsorshipType, bool) {
	for _, t := range planSponsorshipTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// SponsorshipState is the lifecycle state derived from a row's fields.
type SponsorshipState string

const (
	SponsorshipAvailable SponsorshipState = "available"
	SponsorshipOffered   SponsorshipState = "offered"
	SponsorshipActive    SponsorshipState = "active"
	SponsorshipLapsed    SponsorshipState = "lapsed"
	SponsorshipDeleted   SponsorshipState = "deleted"
)

// SponsorshipTransition is one edge of the lifecycle graph.
type SponsorshipTransition struct {
	From SponsorshipState
	To   SponsorshipState
}

var sponsorshipTransitions = map[SponsorshipTransition]bool{
	{SponsorshipAvailable, SponsorshipOffered}: true, // offer issued
	{SponsorshipAvailable, SponsorshipDeleted}: true,
	{SponsorshipOffered, SponsorshipActive}:    true, // redeemed
	{SponsorshipOffered, SponsorshipAvailable}: true,
	{SponsorshipOffered, SponsorshipDeleted}:   true, // revoked before redemption
	{SponsorshipActive, SponsorshipLapsed}:     true, // renewed too often without validation
	{SponsorshipActive, SponsorshipAvailable}:  true, // removed, slot recycled
	{SponsorshipActive, SponsorshipDeleted}:    true,
	{SponsorshipLapsed, SponsorshipActive}:     true, // validated again
	{SponsorshipLapsed, SponsorshipAvailable}:  true,
	{SponsorshipLapsed, SponsorshipDeleted}:    true,
}

// CanTransition reports whether a row may move from one state to another.
func CanTransition(from, to SponsorshipState) bool {
	return from == to || sponsorshipTransitions[SponsorshipTransition{from, to}]
}

// Sponsorship is one sponsor-side slot. At most one row exists per sponsoring
// organization user and per sponsored organization.
type Sponsorship struct {
	ID                            uuid.UUID            `json:"id"`
	SponsoringOrganizationID      *uuid.UUID           `json:"sponsoring_organization_id,omitempty"`
	SponsoringOrganizationUserID  *uuid.UUID           `json:"sponsoring_organization_user_id,omitempty"`
	SponsoredOrganizationID       *uuid.UUID           `json:"sponsored_organization_id,omitempty"`
	OfferedToEmail                *string              `json:"offered_to_email,omitempty"`
	FriendlyName                  *string              `json:"friendly_name,omitempty"`
	PlanSponsorshipType           *PlanSponsorshipType `json:"plan_sponsorship_type,omitempty"`
	CloudSponsor                  bool                 `json:"cloud_sponsor"`
	TimesRenewedWithoutValidation int                  `json:"times_renewed_without_validation"`
	SponsorshipLapsedDate         *time.Time           `json:"sponsorship_lapsed_date,omitempty"`
	CreatedAt                     time.Time            `json:"created_at"`
	UpdatedAt                     time.Time            `json:"updated_at"`
}

// State derives the lifecycle state. Call CheckInvariants first when the row
// comes from an untrusted source; State assumes a consistent row.
func (s *Sponsorship) State() SponsorshipState {
	switch {
	case s.PlanSponsorshipType == nil:
		return SponsorshipAvailable
	case s.SponsoredOrganizationID == nil:
		return SponsorshipOffered
	case s.SponsorshipLapsedDate != nil:
		return SponsorshipLapsed
	default:
		return SponsorshipActive
	}
}

// ErrSponsorshipInconsistent is returned by CheckInvariants.
var ErrSponsorshipInconsistent = errors.New("sponsorship fields are inconsistent")

// CheckInvariants asserts the field-nullity rules every persisted row must obey.
func (s *Sponsorship) CheckInvariants() error {
	if s.TimesRenewedWithoutValidation < 0 {
		return inconsistent("negative renewal count")
	}
	if s.OfferedToEmail != nil && s.SponsoredOrganizationID != nil {
		return inconsistent("outstanding offer on a redeemed sponsorship")
	}
	if s.SponsoredOrganizationID != nil && s.PlanSponsorshipType == nil {
		return inconsistent("sponsored organization without plan")
	}
	if s.PlanSponsorshipType == nil {
		if s.OfferedToEmail != nil {
			return inconsistent("offer without plan")
		}
		return nil
	}
	if s.SponsoredOrganizationID == nil && s.OfferedToEmail == nil {
		return inconsistent("plan set but neither offered nor redeemed")
	}
	if s.SponsorshipLapsedDate != nil && s.SponsoredOrganizationID == nil {
		return inconsistent("lapsed date on an unredeemed offer")
	}
	return nil
}

// ResetToAvailable clears everything an offer or redemption set.
func (s *Sponsorship) ResetToAvailable() {
	s.SponsoredOrganizationID = nil
	s.FriendlyName = nil
	s.OfferedToEmail = nil
	s.PlanSponsorshipType = nil
	s.TimesRenewedWithoutValidation = 0
	s.SponsorshipLapsedDate = nil
}

func inconsistent(reason string) error {
	return fmt.Errorf("%w: %s", ErrSponsorshipInconsistent, reason)
}
