package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingEventType names a change to an organization's billed plan.
const (
	BillingEventSponsoredPlanActivated   = "sponsored_plan_activated"
	BillingEventSponsoredPlanDeactivated = "sponsored_plan_deactivated"
)

// BillingEvent is an append-only record of a plan change.
type BillingEvent struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	SponsorshipID  *uuid.UUID `json:"sponsorship_id,omitempty"`
	EventType      string     `json:"event_type"`
	PlanType       PlanType   `json:"plan_type"`
	CreatedAt      time.Time  `json:"created_at"`
}
