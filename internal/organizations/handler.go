package organizations

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/middleware"
	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/response"
	"github.com/aura-platform/sponsorships/pkg/utils"
)

// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name         string `json:"name" binding:"required"`
	Slug         string `json:"slug" binding:"required"`
	PlanType     string `json:"plan_type"`
	BillingEmail string `json:"billing_email" binding:"required,email"`
}

// JoinOrganizationRequest is the body for POST /organizations/join.
type JoinOrganizationRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// CreateOrganization handles POST /organizations. Creates org and adds current user as confirmed owner.
func (h *Handler) CreateOrganization(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name, slug and billing_email required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 2–64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1–255 characters")
		return
	}
	planType := models.PlanFree
	if body.PlanType != "" {
		planType = models.PlanType(body.PlanType)
	}
	apiKey, err := utils.GenerateAPIKey()
	if err != nil {
		h.logger.Error("generate api key failed", zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}
	org := &models.Organization{
		Name:         body.Name,
		Slug:         body.Slug,
		PlanType:     planType,
		Enabled:      true,
		APIKey:       apiKey,
		BillingEmail: body.BillingEmail,
	}
	if err := h.repo.Create(c.Request.Context(), org); err != nil {
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique") {
			response.Conflict(c, "An organization with this slug already exists")
			return
		}
		h.logger.Error("create organization failed", zap.Error(err))
		response.Internal(c, "failed to create organization")
		return
	}
	if err := h.repo.AddUser(c.Request.Context(), org.ID, userID, models.OrgRoleOwner, models.OrgUserStatusConfirmed); err != nil {
		response.Internal(c, "failed to add you as owner")
		return
	}
	response.Created(c, org)
}

// JoinOrganization handles POST /organizations/join. Adds current user to org by slug as an
// accepted member awaiting confirmation by an owner.
func (h *Handler) JoinOrganization(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var body JoinOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))
	if slug == "" {
		response.BadRequest(c, "slug required")
		return
	}
	org, err := h.repo.GetBySlug(c.Request.Context(), slug)
	if err != nil || org == nil {
		response.NotFound(c, "Organization not found")
		return
	}
	if err := h.repo.AddUser(c.Request.Context(), org.ID, userID, models.OrgRoleMember, models.OrgUserStatusAccepted); err != nil {
		response.Internal(c, "failed to join organization")
		return
	}
	response.OK(c, org)
}

// ConfirmMember handles POST /organizations/:id/members/:userId/confirm (owners only).
func (h *Handler) ConfirmMember(c *gin.Context) {
	orgID, ok := h.requireOwner(c)
	if !ok {
		return
	}
	memberID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	ou, err := h.repo.GetOrganizationUser(c.Request.Context(), orgID, memberID)
	if err != nil || ou == nil {
		response.NotFound(c, "member not found")
		return
	}
	if err := h.repo.AddUser(c.Request.Context(), orgID, memberID, ou.Role, models.OrgUserStatusConfirmed); err != nil {
		response.Internal(c, "failed to confirm member")
		return
	}
	response.NoContent(c)
}

// ListMyOrganizations handles GET /organizations. Returns orgs the current user is a member of.
func (h *Handler) ListMyOrganizations(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	orgs, err := h.repo.ListOrganizationsForUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load organizations")
		return
	}
	response.OK(c, orgs)
}

// ListMembers handles GET /organizations/:id/members. Requires membership in the org.
func (h *Handler) ListMembers(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ou, err := h.repo.GetOrganizationUser(c.Request.Context(), orgID, userID)
	if err != nil || !ou.Confirmed() {
		response.Forbidden(c, "not authorized for this organization")
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, members)
}

// RotateAPIKey handles POST /organizations/:id/api-key. The new key is only returned once.
func (h *Handler) RotateAPIKey(c *gin.Context) {
	orgID, ok := h.requireOwner(c)
	if !ok {
		return
	}
	apiKey, err := utils.GenerateAPIKey()
	if err != nil {
		response.Internal(c, "failed to generate api key")
		return
	}
	if err := h.repo.UpdateAPIKey(c.Request.Context(), orgID, apiKey); err != nil {
		h.logger.Error("rotate api key failed", zap.Error(err), zap.String("organization_id", orgID.String()))
		response.Internal(c, "failed to rotate api key")
		return
	}
	// outstanding self-hosted sponsorship tokens stop verifying after rotation
	h.logger.Info("organization api key rotated", zap.String("organization_id", orgID.String()))
	response.OK(c, gin.H{"api_key": apiKey})
}

func (h *Handler) requireOwner(c *gin.Context) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	owner, err := h.repo.IsOwner(c.Request.Context(), orgID, userID)
	if err != nil || !owner {
		response.Forbidden(c, "only organization owners can do this")
		return uuid.Nil, false
	}
	return orgID, true
}
