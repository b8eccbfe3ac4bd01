package sponsorships

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/middleware"
	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/response"
)

// OrganizationReader is what the handler needs to authorize callers.
type OrganizationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetOrganizationUser(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationUser, error)
	IsOwner(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
}

// Handler serves the /organization/sponsorship endpoints.
type Handler struct {
	svc    *Service
	repo   Repository
	orgs   OrganizationReader
	logger *zap.Logger
}

// NewHandler creates a sponsorship handler.
func NewHandler(svc *Service, repo Repository, orgs OrganizationReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, repo: repo, orgs: orgs, logger: logger}
}

// SponsorshipResponse is the API view of a sponsorship row.
type SponsorshipResponse struct {
	ID                            uuid.UUID               `json:"id"`
	State                         models.SponsorshipState `json:"state"`
	SponsoringOrganizationID      *uuid.UUID              `json:"sponsoring_organization_id,omitempty"`
	SponsoredOrganizationID       *uuid.UUID              `json:"sponsored_organization_id,omitempty"`
	OfferedToEmail                *string                 `json:"offered_to_email,omitempty"`
	FriendlyName                  *string                 `json:"friendly_name,omitempty"`
	PlanSponsorshipType           *string                 `json:"plan_sponsorship_type,omitempty"`
	CloudSponsor                  bool                    `json:"cloud_sponsor"`
	TimesRenewedWithoutValidation int                     `json:"times_renewed_without_validation"`
	SponsorshipLapsedDate         *time.Time              `json:"sponsorship_lapsed_date,omitempty"`
}

func toResponse(s *models.Sponsorship) SponsorshipResponse {
	r := SponsorshipResponse{
		ID:                            s.ID,
		State:                         s.State(),
		SponsoringOrganizationID:      s.SponsoringOrganizationID,
		SponsoredOrganizationID:       s.SponsoredOrganizationID,
		OfferedToEmail:                s.OfferedToEmail,
		FriendlyName:                  s.FriendlyName,
		CloudSponsor:                  s.CloudSponsor,
		TimesRenewedWithoutValidation: s.TimesRenewedWithoutValidation,
		SponsorshipLapsedDate:         s.SponsorshipLapsedDate,
	}
	if s.PlanSponsorshipType != nil {
		v := string(*s.PlanSponsorshipType)
		r.PlanSponsorshipType = &v
	}
	return r
}

// CreateSponsorshipRequest is the body for POST /:sponsoringOrgId/families-for-enterprise.
type CreateSponsorshipRequest struct {
	PlanSponsorshipType string `json:"plan_sponsorship_type" binding:"required"`
	SponsoredEmail      string `json:"sponsored_email" binding:"required,email"`
	FriendlyName        string `json:"friendly_name" binding:"max=256"`
}

// RedeemRequest is the body for POST /redeem.
type RedeemRequest struct {
	PlanSponsorshipType     string    `json:"plan_sponsorship_type" binding:"required"`
	SponsoredOrganizationID uuid.UUID `json:"sponsored_organization_id" binding:"required"`
}

// RenewalRequest is the body for POST /sponsored/:sponsoredOrgId/renewal.
type RenewalRequest struct {
	Validated bool `json:"validated"`
}

// CreateSponsorship handles POST /organization/sponsorship/:sponsoringOrgId/families-for-enterprise.
func (h *Handler) CreateSponsorship(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoringOrgId")
	if !ok {
		return
	}
	var body CreateSponsorshipRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "plan_sponsorship_type and a valid sponsored_email are required")
		return
	}
	planType, ok := models.ParsePlanSponsorshipType(body.PlanSponsorshipType)
	if !ok {
		h.fail(c, ErrMissingSponsorType)
		return
	}

	ctx := c.Request.Context()
	org, orgUser, ok := h.sponsoringMember(c, orgID)
	if !ok {
		return
	}
	sp, err := h.svc.OfferSponsorship(ctx, org, orgUser, planType, body.SponsoredEmail, body.FriendlyName)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toResponse(sp))
}

// ResendOffer handles POST /organization/sponsorship/:sponsoringOrgId/families-for-enterprise/resend.
func (h *Handler) ResendOffer(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoringOrgId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	org, orgUser, ok := h.sponsoringMember(c, orgID)
	if !ok {
		return
	}
	sp, err := h.repo.GetBySponsoringOrgUserID(ctx, orgUser.ID)
	if err != nil {
		h.fail(c, collaborator("load sponsorship", err))
		return
	}
	if err := h.svc.SendSponsorshipOffer(ctx, org, sp); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// ValidateToken handles POST /organization/sponsorship/validate-token?sponsorshipToken=.
// It reports whether the token is redeemable by the caller.
func (h *Handler) ValidateToken(c *gin.Context) {
	token := c.Query("sponsorshipToken")
	if token == "" {
		response.OK(c, gin.H{"valid": false})
		return
	}
	ctx := c.Request.Context()
	email := middleware.UserEmail(c)
	offer, err := h.repo.GetByOfferedToEmail(ctx, email)
	if err != nil {
		h.fail(c, collaborator("load sponsorship offer", err))
		return
	}
	if offer == nil || offer.SponsoringOrganizationID == nil {
		response.OK(c, gin.H{"valid": false})
		return
	}
	sponsoringOrg, err := h.orgs.GetByID(ctx, *offer.SponsoringOrganizationID)
	if err != nil {
		h.fail(c, collaborator("load sponsoring organization", err))
		return
	}
	valid, err := h.svc.ValidateRedemptionToken(ctx, token, sponsoringOrg, email)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"valid": valid})
}

// Redeem handles POST /organization/sponsorship/redeem?sponsorshipToken=.
func (h *Handler) Redeem(c *gin.Context) {
	token := c.Query("sponsorshipToken")
	var body RedeemRequest
	if err := c.ShouldBindJSON(&body); err != nil || token == "" {
		response.BadRequest(c, "sponsorshipToken, plan_sponsorship_type and sponsored_organization_id are required")
		return
	}
	planType, ok := models.ParsePlanSponsorshipType(body.PlanSponsorshipType)
	if !ok {
		h.fail(c, ErrMissingSponsorType)
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	email := middleware.UserEmail(c)

	owner, err := h.orgs.IsOwner(ctx, body.SponsoredOrganizationID, userID)
	if err != nil {
		h.fail(c, collaborator("check organization owner", err))
		return
	}
	if !owner {
		response.Forbidden(c, "Can only redeem sponsorship for an organization you own.")
		return
	}

	offer, err := h.repo.GetByOfferedToEmail(ctx, email)
	if err != nil {
		h.fail(c, collaborator("load sponsorship offer", err))
		return
	}
	if offer == nil || offer.SponsoringOrganizationID == nil || offer.PlanSponsorshipType == nil {
		h.fail(c, ErrNoOutstandingOffer)
		return
	}
	if *offer.PlanSponsorshipType != planType {
		h.fail(c, ErrInvalidToken)
		return
	}

	sponsoringOrg, err := h.orgs.GetByID(ctx, *offer.SponsoringOrganizationID)
	if err != nil {
		h.fail(c, collaborator("load sponsoring organization", err))
		return
	}
	valid, err := h.svc.ValidateRedemptionToken(ctx, token, sponsoringOrg, email)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !valid {
		h.fail(c, ErrInvalidToken)
		return
	}

	sponsoredOrg, err := h.orgs.GetByID(ctx, body.SponsoredOrganizationID)
	if err != nil {
		h.fail(c, collaborator("load sponsored organization", err))
		return
	}
	if sponsoredOrg == nil {
		response.NotFound(c, "organization not found")
		return
	}

	sp, err := h.svc.Redeem(ctx, token, sponsoringOrg, sponsoredOrg)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(sp))
}

// RevokeSponsorship handles DELETE /organization/sponsorship/:sponsoringOrgId
// and its POST alias. The caller revokes their own sponsorship.
func (h *Handler) RevokeSponsorship(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoringOrgId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orgUser, err := h.orgs.GetOrganizationUser(ctx, orgID, middleware.UserID(c))
	if err != nil {
		h.fail(c, collaborator("load organization user", err))
		return
	}
	if !orgUser.Confirmed() {
		response.Forbidden(c, "Only the sponsoring user can revoke a sponsorship.")
		return
	}
	sp, err := h.repo.GetBySponsoringOrgUserID(ctx, orgUser.ID)
	if err != nil {
		h.fail(c, collaborator("load sponsorship", err))
		return
	}
	if sp == nil {
		h.fail(c, ErrNotSponsoring)
		return
	}
	if err := h.svc.Revoke(ctx, sp); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveSponsorship handles DELETE /organization/sponsorship/sponsored/:sponsoredOrgId
// and its POST alias. The owner of the sponsored organization drops it.
func (h *Handler) RemoveSponsorship(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoredOrgId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	owner, err := h.orgs.IsOwner(ctx, orgID, middleware.UserID(c))
	if err != nil {
		h.fail(c, collaborator("check organization owner", err))
		return
	}
	if !owner {
		response.Forbidden(c, "Only the owner of an organization can remove sponsorship.")
		return
	}
	sp, err := h.repo.GetBySponsoredOrgID(ctx, orgID)
	if err != nil {
		h.fail(c, collaborator("load sponsorship", err))
		return
	}
	if sp == nil {
		h.fail(c, ErrSponsorshipNotFound)
		return
	}
	org, err := h.orgs.GetByID(ctx, orgID)
	if err != nil {
		h.fail(c, collaborator("load sponsored organization", err))
		return
	}
	if err := h.svc.Remove(ctx, org, sp); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// ValidateSponsorship handles POST /organization/sponsorship/sponsored/:sponsoredOrgId/validate (admin).
func (h *Handler) ValidateSponsorship(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoredOrgId")
	if !ok {
		return
	}
	valid, err := h.svc.Validate(c.Request.Context(), orgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"valid": valid})
}

// RecordRenewal handles POST /organization/sponsorship/sponsored/:sponsoredOrgId/renewal (admin).
func (h *Handler) RecordRenewal(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoredOrgId")
	if !ok {
		return
	}
	var body RenewalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sp, err := h.svc.RecordRenewal(c.Request.Context(), orgID, body.Validated)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(sp))
}

// GetSponsorship handles GET /organization/sponsorship/:sponsoringOrgId and
// returns the caller's own sponsorship in that organization.
func (h *Handler) GetSponsorship(c *gin.Context) {
	orgID, ok := pathID(c, "sponsoringOrgId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orgUser, err := h.orgs.GetOrganizationUser(ctx, orgID, middleware.UserID(c))
	if err != nil {
		h.fail(c, collaborator("load organization user", err))
		return
	}
	if orgUser == nil {
		response.Forbidden(c, "not a member of this organization")
		return
	}
	sp, err := h.repo.GetBySponsoringOrgUserID(ctx, orgUser.ID)
	if err != nil {
		h.fail(c, collaborator("load sponsorship", err))
		return
	}
	if sp == nil {
		h.fail(c, ErrNotSponsoring)
		return
	}
	response.OK(c, toResponse(sp))
}

func (h *Handler) sponsoringMember(c *gin.Context, orgID uuid.UUID) (*models.Organization, *models.OrganizationUser, bool) {
	ctx := c.Request.Context()
	org, err := h.orgs.GetByID(ctx, orgID)
	if err != nil {
		h.fail(c, collaborator("load sponsoring organization", err))
		return nil, nil, false
	}
	if org == nil {
		h.fail(c, ErrCannotSponsor)
		return nil, nil, false
	}
	orgUser, err := h.orgs.GetOrganizationUser(ctx, orgID, middleware.UserID(c))
	if err != nil {
		h.fail(c, collaborator("load organization user", err))
		return nil, nil, false
	}
	if !orgUser.Confirmed() {
		h.fail(c, ErrUnconfirmedSponsor)
		return nil, nil, false
	}
	return org, orgUser, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// fail maps a service error onto the response envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	var rejected *Error
	msg := "sponsorship request failed"
	if errors.As(err, &rejected) {
		msg = rejected.Message
	}

	switch {
	case errors.Is(err, ErrReconciliation):
		h.logger.Error("sponsorship needs reconciliation", zap.Error(err))
		response.Internal(c, "sponsorship could not be completed; support has been notified")
	case errors.Is(err, ErrValidation), errors.Is(err, ErrIneligible):
		response.BadRequest(c, msg)
	case errors.Is(err, ErrConflict):
		response.Conflict(c, msg)
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(c, "request timed out, try again")
	case errors.Is(err, ErrCollaborator):
		h.logger.Error("sponsorship collaborator failed", zap.Error(err))
		response.BadGateway(c, "a downstream service failed, try again")
	default:
		h.logger.Error("sponsorship request failed", zap.Error(err))
		response.Internal(c, msg)
	}
}
