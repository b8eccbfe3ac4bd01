package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanType is the subscription plan an organization is billed on.
type PlanType string

const (
	PlanFree                   PlanType = "Free"
	PlanFamiliesAnnually2019   PlanType = "FamiliesAnnually2019"
	PlanTeamsMonthly2019       PlanType = "TeamsMonthly2019"
	PlanTeamsAnnually2019      PlanType = "TeamsAnnually2019"
	PlanEnterpriseMonthly2019  PlanType = "EnterpriseMonthly2019"
	PlanEnterpriseAnnually2019 PlanType = "EnterpriseAnnually2019"
	PlanCustom                 PlanType = "Custom"
	PlanFamiliesAnnually       PlanType = "FamiliesAnnually"
	PlanTeamsMonthly           PlanType = "TeamsMonthly"
	PlanTeamsAnnually          PlanType = "TeamsAnnually"
	PlanEnterpriseMonthly      PlanType = "EnterpriseMonthly"
	PlanEnterpriseAnnually     PlanType = "EnterpriseAnnually"
)

// Organization represents a tenant. APIKey is the installation secret a self-hosted
// deployment of this organization shares with the cloud.
type Organization struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	PlanType       PlanType   `json:"plan_type"`
	Enabled        bool       `json:"enabled"`
	APIKey         string     `json:"-"`
	BillingEmail   string     `json:"billing_email"`
	Sponsored      bool       `json:"sponsored"`
	SponsoredUntil *time.Time `json:"sponsored_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BillingEmailAddress returns the address billing notices go to.
func (o *Organization) BillingEmailAddress() string {
	return o.BillingEmail
}

// OrganizationUserRole is the role of a user in an organization.
const (
	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleMember = "member"
)

// OrganizationUserStatus tracks invitation progress of a membership.
const (
	OrgUserStatusInvited   = "invited"
	OrgUserStatusAccepted  = "accepted"
	OrgUserStatusConfirmed = "confirmed"
	OrgUserStatusRevoked   = "revoked"
)

// OrganizationUser links a user to an organization with a role.
type OrganizationUser struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Confirmed reports whether the membership may act on behalf of the organization.
func (ou *OrganizationUser) Confirmed() bool {
	return ou != nil && ou.Status == OrgUserStatusConfirmed
}
