package sponsorships

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/internal/plans"
)

const (
	// DefaultMaxRenewalsWithoutValidation is how many billing renewals may pass
	// without a live validation before a sponsorship lapses.
	DefaultMaxRenewalsWithoutValidation = 6

	defaultCompensationTimeout = 30 * time.Second
)

// OrganizationStore reads and writes the organizations a sponsorship links.
type OrganizationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Upsert(ctx context.Context, org *models.Organization) error
}

// Billing applies or strips the sponsored plan on an organization. It mutates
// org in memory; the caller persists it.
type Billing interface {
	ActivateSponsoredPlan(ctx context.Context, org *models.Organization, s *models.Sponsorship) error
	DeactivateSponsoredPlan(ctx context.Context, org *models.Organization, s *models.Sponsorship) error
}

// Notifier requests sponsorship emails.
type Notifier interface {
	SendOfferEmail(ctx context.Context, recipient, sponsorName, token string) error
	SendRevertedEmail(ctx context.Context, billingEmail, orgName string) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxRenewalsWithoutValidation sets the renewal count at which a
// sponsorship lapses.
func WithMaxRenewalsWithoutValidation(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRenewals = n
		}
	}
}

// WithCompensationTimeout bounds the billing rollback after a failed redemption.
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.compensationTimeout = d
		}
	}
}

// Service is the only component that changes a sponsorship's state.
type Service struct {
	repo     Repository
	orgs     OrganizationStore
	billing  Billing
	notifier Notifier
	plans    *plans.Table
	codec    *Codec
	logger   *zap.Logger

	now                 func() time.Time
	maxRenewals         int
	compensationTimeout time.Duration
}

// NewService creates the sponsorship lifecycle service.
func NewService(repo Repository, orgs OrganizationStore, billing Billing, notifier Notifier,
	table *plans.Table, codec *Codec, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		table = plans.Default()
	}
	s := &Service{
		repo:                repo,
		orgs:                orgs,
		billing:             billing,
		notifier:            notifier,
		plans:               table,
		codec:               codec,
		logger:              logger,
		now:                 time.Now,
		maxRenewals:         DefaultMaxRenewalsWithoutValidation,
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports the trust domain this service mints tokens in.
func (s *Service) Mode() Mode { return s.codec.Mode() }

// Plans exposes the eligibility table the service checks against.
func (s *Service) Plans() *plans.Table { return s.plans }

func collaborator(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCollaborator, err)
}

func transition(from, to models.SponsorshipState) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("illegal sponsorship transition %s -> %s", from, to)
	}
	return nil
}

// CanSponsor reports whether org may offer planType right now.
func (s *Service) CanSponsor(org *models.Organization, planType models.PlanSponsorshipType) error {
	if org == nil || !org.Enabled || !s.plans.CanSponsor(org.PlanType, planType) {
		return ErrCannotSponsor
	}
	return nil
}

// OfferSponsorship creates an Offered row for the member and emails a token to
// the recipient.
func (s *Service) OfferSponsorship(ctx context.Context, sponsoringOrg *models.Organization,
	sponsoringOrgUser *models.OrganizationUser, planType models.PlanSponsorshipType,
	recipientEmail, friendlyName string) (*models.Sponsorship, error) {
	recipientEmail = strings.TrimSpace(recipientEmail)
	if sponsoringOrg == nil || sponsoringOrgUser == nil || recipientEmail == "" ||
		sponsoringOrgUser.OrganizationID != sponsoringOrg.ID {
		return nil, ErrInvalidOffer
	}
	if _, ok := s.plans.SponsoredPlan(planType); !ok {
		return nil, ErrMissingSponsorType
	}
	if err := s.CanSponsor(sponsoringOrg, planType); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetBySponsoringOrgUserID(ctx, sponsoringOrgUser.ID)
	if err != nil {
		return nil, collaborator("offer sponsorship", err)
	}
	if existing != nil {
		return nil, ErrAlreadySponsoring
	}

	orgID, orgUserID := sponsoringOrg.ID, sponsoringOrgUser.ID
	pt := planType
	sp := &models.Sponsorship{
		ID:                           uuid.New(),
		SponsoringOrganizationID:     &orgID,
		SponsoringOrganizationUserID: &orgUserID,
		OfferedToEmail:               &recipientEmail,
		PlanSponsorshipType:          &pt,
		CloudSponsor:                 s.codec.Mode() == ModeCloud,
	}
	if name := strings.TrimSpace(friendlyName); name != "" {
		sp.FriendlyName = &name
	}
	if err := sp.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := transition(models.SponsorshipAvailable, sp.State()); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, sp); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrAlreadySponsoring
		}
		return nil, collaborator("offer sponsorship", err)
	}

	token, err := s.codec.Mint(sp.ID, planType, sponsoringOrg)
	if err != nil {
		// An offer nobody can redeem must not hold the member's slot.
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), sp); delErr != nil {
			s.logger.Error("Failed to discard undeliverable sponsorship offer",
				zap.Stringer("sponsorship_id", sp.ID), zap.Error(delErr))
		}
		return nil, collaborator("offer sponsorship", err)
	}
	s.notifyOffer(ctx, sponsoringOrg, sp, token)

	s.logger.Info("Sponsorship offered",
		zap.Stringer("sponsorship_id", sp.ID),
		zap.Stringer("sponsoring_org_id", orgID),
		zap.String("plan_sponsorship_type", string(planType)),
		zap.Bool("cloud_sponsor", sp.CloudSponsor))
	return sp, nil
}

// SendSponsorshipOffer mints a fresh token for an outstanding offer and
// requests the email again. The row is not changed.
func (s *Service) SendSponsorshipOffer(ctx context.Context, sponsoringOrg *models.Organization, sp *models.Sponsorship) error {
	if sp == nil || sp.OfferedToEmail == nil || sp.PlanSponsorshipType == nil {
		return ErrNoOutstandingOffer
	}
	if sponsoringOrg == nil || sp.SponsoringOrganizationID == nil || *sp.SponsoringOrganizationID != sponsoringOrg.ID {
		return ErrWrongSponsor
	}
	token, err := s.codec.Mint(sp.ID, *sp.PlanSponsorshipType, sponsoringOrg)
	if err != nil {
		return collaborator("resend sponsorship offer", err)
	}
	s.notifyOffer(ctx, sponsoringOrg, sp, token)
	return nil
}

func (s *Service) notifyOffer(ctx context.Context, sponsoringOrg *models.Organization, sp *models.Sponsorship, token string) {
	if err := s.notifier.SendOfferEmail(ctx, *sp.OfferedToEmail, sponsoringOrg.Name, token); err != nil {
		s.logger.Warn("Failed to send sponsorship offer email",
			zap.Stringer("sponsorship_id", sp.ID), zap.Error(err))
	}
}

// VerifyToken resolves a token to the row it was minted for. Any mismatch
// yields an error wrapping ErrInvalidToken.
func (s *Service) VerifyToken(ctx context.Context, token string, sponsoringOrg *models.Organization) (*models.Sponsorship, error) {
	claims, err := s.codec.Parse(token, sponsoringOrg)
	if err != nil {
		return nil, err
	}
	sp, err := s.repo.GetByID(ctx, claims.SponsorshipID)
	if err != nil {
		return nil, collaborator("verify sponsorship token", err)
	}
	if sp == nil {
		return nil, fmt.Errorf("%w: sponsorship %s does not exist", ErrInvalidToken, claims.SponsorshipID)
	}
	if sp.PlanSponsorshipType == nil || *sp.PlanSponsorshipType != claims.PlanSponsorshipType {
		return nil, fmt.Errorf("%w: plan sponsorship type changed", ErrInvalidToken)
	}
	if sponsoringOrg != nil && (sp.SponsoringOrganizationID == nil || *sp.SponsoringOrganizationID != sponsoringOrg.ID) {
		return nil, fmt.Errorf("%w: sponsoring organization mismatch", ErrInvalidToken)
	}
	return sp, nil
}

// ValidateRedemptionToken reports whether token names an offer that can still
// be redeemed. When recipientEmail is set the offer must be addressed to it.
// Only collaborator failures are returned as errors.
func (s *Service) ValidateRedemptionToken(ctx context.Context, token string, sponsoringOrg *models.Organization, recipientEmail string) (bool, error) {
	sp, err := s.VerifyToken(ctx, token, sponsoringOrg)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return false, nil
		}
		return false, err
	}
	if sp.State() != models.SponsorshipOffered {
		return false, nil
	}
	if recipientEmail != "" && !strings.EqualFold(*sp.OfferedToEmail, strings.TrimSpace(recipientEmail)) {
		return false, nil
	}
	return true, nil
}

// Redeem attaches sponsoredOrg to the offer named by token. Billing is
// activated first; the row and the organization are then committed together.
func (s *Service) Redeem(ctx context.Context, token string, sponsoringOrg, sponsoredOrg *models.Organization) (*models.Sponsorship, error) {
	if sponsoredOrg == nil {
		return nil, ErrMissingSponsoredOrg
	}
	sp, err := s.VerifyToken(ctx, token, sponsoringOrg)
	if err != nil {
		return nil, err
	}
	if sp.SponsoredOrganizationID != nil {
		return nil, ErrAlreadyRedeemed
	}
	planType := *sp.PlanSponsorshipType
	if err := s.CanSponsor(sponsoringOrg, planType); err != nil {
		return nil, err
	}
	if !s.plans.CanBeSponsored(sponsoredOrg.PlanType, planType) {
		return nil, ErrCannotBeSponsored
	}
	if !sponsoredOrg.Enabled {
		return nil, ErrSponsoredOrgDisabled
	}

	existing, err := s.repo.GetBySponsoredOrgID(ctx, sponsoredOrg.ID)
	if err != nil {
		return nil, collaborator("redeem sponsorship", err)
	}
	if existing != nil {
		return nil, ErrAlreadySponsored
	}

	redeemed := *sp
	orgID := sponsoredOrg.ID
	redeemed.SponsoredOrganizationID = &orgID
	redeemed.OfferedToEmail = nil
	redeemed.TimesRenewedWithoutValidation = 0
	redeemed.SponsorshipLapsedDate = nil
	if err := redeemed.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := transition(sp.State(), redeemed.State()); err != nil {
		return nil, err
	}

	org := *sponsoredOrg
	if err := s.billing.ActivateSponsoredPlan(ctx, &org, &redeemed); err != nil {
		return nil, collaborator("activate sponsored plan", err)
	}

	if err := s.repo.CommitRedemption(ctx, &redeemed, &org); err != nil {
		return nil, s.compensateRedemption(ctx, &org, &redeemed, err)
	}

	*sponsoredOrg = org
	s.logger.Info("Sponsorship redeemed",
		zap.Stringer("sponsorship_id", redeemed.ID),
		zap.Stringer("sponsored_org_id", orgID))
	return &redeemed, nil
}

// compensateRedemption undoes the billing activation after the commit failed.
// A lost race for the same organization keeps billing as is, since a committed
// row already names the organization.
func (s *Service) compensateRedemption(ctx context.Context, org *models.Organization, sp *models.Sponsorship, commitErr error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	if errors.Is(commitErr, ErrConflict) {
		winner, err := s.repo.GetBySponsoredOrgID(ctx, org.ID)
		if err == nil && winner != nil {
			return commitErr
		}
	}

	if err := s.billing.DeactivateSponsoredPlan(ctx, org, sp); err != nil {
		s.logger.Error("Sponsorship reconciliation required: billing active but redemption not stored",
			zap.Stringer("sponsorship_id", sp.ID),
			zap.Stringer("sponsored_org_id", org.ID),
			zap.NamedError("commit_error", commitErr),
			zap.Error(err))
		return fmt.Errorf("redeem sponsorship %s: %w: %w", sp.ID, ErrReconciliation, commitErr)
	}
	if errors.Is(commitErr, ErrConflict) {
		return commitErr
	}
	return collaborator("redeem sponsorship", commitErr)
}

// Validate re-checks the sponsorship of an organization and removes it when
// it is no longer eligible. Repeated calls converge on the same verdict.
func (s *Service) Validate(ctx context.Context, sponsoredOrgID uuid.UUID) (bool, error) {
	org, err := s.orgs.GetByID(ctx, sponsoredOrgID)
	if err != nil {
		return false, collaborator("validate sponsorship", err)
	}
	sp, err := s.repo.GetBySponsoredOrgID(ctx, sponsoredOrgID)
	if err != nil {
		return false, collaborator("validate sponsorship", err)
	}

	log := s.logger.With(zap.Stringer("sponsored_org_id", sponsoredOrgID))

	switch {
	case sp == nil && org == nil:
		return false, nil
	case sp == nil:
		if !org.Sponsored {
			return false, nil
		}
		log.Info("Removing sponsored plan without a sponsorship")
		return false, s.Remove(ctx, org, nil)
	case org == nil:
		log.Info("Removing sponsorship of a missing organization", zap.Stringer("sponsorship_id", sp.ID))
		return false, s.Remove(ctx, nil, sp)
	}

	if sp.SponsoringOrganizationID == nil || sp.SponsoringOrganizationUserID == nil || sp.PlanSponsorshipType == nil {
		log.Info("Removing sponsorship without sponsor linkage", zap.Stringer("sponsorship_id", sp.ID))
		return false, s.Remove(ctx, org, sp)
	}
	if _, ok := s.plans.SponsoredPlan(*sp.PlanSponsorshipType); !ok {
		log.Info("Removing sponsorship with unknown plan", zap.Stringer("sponsorship_id", sp.ID))
		return false, s.Remove(ctx, org, sp)
	}

	sponsoringOrg, err := s.orgs.GetByID(ctx, *sp.SponsoringOrganizationID)
	if err != nil {
		return false, collaborator("validate sponsorship", err)
	}
	if err := s.CanSponsor(sponsoringOrg, *sp.PlanSponsorshipType); err != nil {
		log.Info("Removing sponsorship of an ineligible sponsor", zap.Stringer("sponsorship_id", sp.ID))
		return false, s.Remove(ctx, org, sp)
	}

	if sp.SponsorshipLapsedDate != nil || sp.TimesRenewedWithoutValidation != 0 {
		if err := transition(sp.State(), models.SponsorshipActive); err != nil {
			return false, err
		}
		sp.SponsorshipLapsedDate = nil
		sp.TimesRenewedWithoutValidation = 0
		if err := s.repo.Upsert(ctx, sp); err != nil {
			return false, collaborator("validate sponsorship", err)
		}
	}
	return true, nil
}

// Remove reverses a sponsorship. Either argument may be nil. The row is
// deleted when it was created in the cloud or had already lapsed, and reset to
// Available otherwise. Only the caller that releases the row deactivates
// billing and sends the reverted email.
func (s *Service) Remove(ctx context.Context, sponsoredOrg *models.Organization, sp *models.Sponsorship) error {
	if sp != nil {
		released, err := s.release(ctx, sp)
		if err != nil {
			return err
		}
		if !released {
			s.logger.Info("Sponsorship already removed", zap.Stringer("sponsorship_id", sp.ID))
			return nil
		}
	}
	if sponsoredOrg == nil {
		return nil
	}

	if err := s.billing.DeactivateSponsoredPlan(ctx, sponsoredOrg, sp); err != nil {
		return collaborator("deactivate sponsored plan", err)
	}
	if err := s.orgs.Upsert(ctx, sponsoredOrg); err != nil {
		return collaborator("remove sponsorship", err)
	}
	if err := s.notifier.SendRevertedEmail(ctx, sponsoredOrg.BillingEmailAddress(), sponsoredOrg.Name); err != nil {
		s.logger.Warn("Failed to send sponsorship reverted email",
			zap.Stringer("org_id", sponsoredOrg.ID), zap.Error(err))
	}
	return nil
}

// release deletes or resets sp and reports whether this call did it.
func (s *Service) release(ctx context.Context, sp *models.Sponsorship) (bool, error) {
	from := sp.State()
	wasLapsed := sp.SponsorshipLapsedDate != nil
	claimed := sp.SponsoredOrganizationID

	reset := *sp
	reset.ResetToAvailable()
	del := reset.CloudSponsor || wasLapsed
	to := models.SponsorshipAvailable
	if del {
		to = models.SponsorshipDeleted
	}
	if err := transition(from, to); err != nil {
		return false, err
	}

	if claimed != nil {
		ok, err := s.repo.Release(ctx, &reset, *claimed, del)
		if err != nil {
			return false, collaborator("remove sponsorship", err)
		}
		if !ok {
			return false, nil
		}
	} else if del {
		if err := s.repo.Delete(ctx, &reset); err != nil {
			return false, collaborator("remove sponsorship", err)
		}
	} else if err := s.repo.Upsert(ctx, &reset); err != nil {
		return false, collaborator("remove sponsorship", err)
	}

	*sp = reset
	if del {
		s.logger.Info("Sponsorship deleted", zap.Stringer("sponsorship_id", sp.ID))
	} else {
		s.logger.Info("Sponsorship reset to available", zap.Stringer("sponsorship_id", sp.ID))
	}
	return true, nil
}

// Revoke ends a sponsorship from the sponsor side. An offer that was never
// redeemed is deleted outright.
func (s *Service) Revoke(ctx context.Context, sp *models.Sponsorship) error {
	if sp == nil {
		return ErrSponsorshipNotFound
	}
	if sp.SponsoredOrganizationID == nil {
		if err := transition(sp.State(), models.SponsorshipDeleted); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, sp); err != nil {
			return collaborator("revoke sponsorship", err)
		}
		s.logger.Info("Sponsorship offer revoked", zap.Stringer("sponsorship_id", sp.ID))
		return nil
	}
	org, err := s.orgs.GetByID(ctx, *sp.SponsoredOrganizationID)
	if err != nil {
		return collaborator("revoke sponsorship", err)
	}
	return s.Remove(ctx, org, sp)
}

// RecordRenewal books a billing renewal of a sponsored organization. A renewal
// without a live validation counts towards lapsing the sponsorship.
func (s *Service) RecordRenewal(ctx context.Context, sponsoredOrgID uuid.UUID, validated bool) (*models.Sponsorship, error) {
	sp, err := s.repo.GetBySponsoredOrgID(ctx, sponsoredOrgID)
	if err != nil {
		return nil, collaborator("record renewal", err)
	}
	if sp == nil {
		return nil, ErrSponsorshipNotFound
	}

	from := sp.State()
	if validated {
		sp.TimesRenewedWithoutValidation = 0
		sp.SponsorshipLapsedDate = nil
	} else {
		sp.TimesRenewedWithoutValidation++
		if sp.TimesRenewedWithoutValidation >= s.maxRenewals && sp.SponsorshipLapsedDate == nil {
			lapsed := s.now().UTC()
			sp.SponsorshipLapsedDate = &lapsed
		}
	}
	if err := transition(from, sp.State()); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, sp); err != nil {
		return nil, collaborator("record renewal", err)
	}
	if from != sp.State() {
		s.logger.Info("Sponsorship state changed on renewal",
			zap.Stringer("sponsorship_id", sp.ID),
			zap.String("from", string(from)),
			zap.String("to", string(sp.State())))
	}
	return sp, nil
}
