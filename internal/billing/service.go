// Package billing applies and strips sponsored plans on organizations and
// keeps an event trail of every change.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/internal/plans"
)

// SponsoredPeriod is how long one activation keeps an organization sponsored.
const SponsoredPeriod = 365 * 24 * time.Hour

var (
	ErrOrganizationDisabled = errors.New("billing: organization is disabled")
	ErrUnknownSponsorship   = errors.New("billing: sponsorship has no known plan")
)

// EventStore appends billing events.
type EventStore interface {
	Append(ctx context.Context, ev *models.BillingEvent) error
}

// Service is the billing collaborator of the sponsorship lifecycle.
type Service struct {
	events EventStore
	plans  *plans.Table
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a billing service. A nil table uses the embedded plans.
func NewService(events EventStore, table *plans.Table, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		table = plans.Default()
	}
	return &Service{events: events, plans: table, now: time.Now, logger: logger}
}

// WithClock returns a copy of s that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// ActivateSponsoredPlan marks org sponsored for one period. org is changed in
// memory only.
func (s *Service) ActivateSponsoredPlan(ctx context.Context, org *models.Organization, sp *models.Sponsorship) error {
	if org == nil || sp == nil {
		return errors.New("billing: organization and sponsorship required")
	}
	if !org.Enabled {
		return ErrOrganizationDisabled
	}
	if sp.PlanSponsorshipType == nil {
		return ErrUnknownSponsorship
	}
	rule, ok := s.plans.SponsoredPlan(*sp.PlanSponsorshipType)
	if !ok {
		return ErrUnknownSponsorship
	}

	until := s.now().UTC().Add(SponsoredPeriod)
	id := sp.ID
	ev := &models.BillingEvent{
		OrganizationID: org.ID,
		SponsorshipID:  &id,
		EventType:      models.BillingEventSponsoredPlanActivated,
		PlanType:       rule.SponsoredPlan,
	}
	if err := s.events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append billing event: %w", err)
	}

	org.Sponsored = true
	org.SponsoredUntil = &until
	org.PlanType = rule.SponsoredPlan
	s.logger.Info("Sponsored plan activated",
		zap.Stringer("organization_id", org.ID),
		zap.Stringer("sponsorship_id", sp.ID),
		zap.Time("sponsored_until", until))
	return nil
}

// DeactivateSponsoredPlan ends the sponsored period of org. sp may be nil when
// the organization carries a sponsored plan without a sponsorship row.
func (s *Service) DeactivateSponsoredPlan(ctx context.Context, org *models.Organization, sp *models.Sponsorship) error {
	if org == nil {
		return errors.New("billing: organization required")
	}
	ev := &models.BillingEvent{
		OrganizationID: org.ID,
		EventType:      models.BillingEventSponsoredPlanDeactivated,
		PlanType:       org.PlanType,
	}
	if sp != nil {
		id := sp.ID
		ev.SponsorshipID = &id
	}
	if err := s.events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append billing event: %w", err)
	}

	org.Sponsored = false
	org.SponsoredUntil = nil
	s.logger.Info("Sponsored plan deactivated", zap.Stringer("organization_id", org.ID))
	return nil
}
