package sponsorships_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-platform/sponsorships/internal/middleware"
	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/internal/sponsorships"
	"github.com/aura-platform/sponsorships/pkg/response"
)

type caller struct {
	ID    uuid.UUID
	Email string
	Role  string
}

func newRouter(e *env, who *caller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := sponsorships.NewHandler(e.svc, e.repo, e.orgs, nil)

	r := gin.New()
	g := r.Group("/organization/sponsorship")
	g.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, who.ID)
		c.Set(middleware.ContextUserEmail, who.Email)
		c.Set(middleware.ContextUserRole, who.Role)
		c.Next()
	})
	g.POST("/:sponsoringOrgId/families-for-enterprise", h.CreateSponsorship)
	g.POST("/:sponsoringOrgId/families-for-enterprise/resend", h.ResendOffer)
	g.POST("/validate-token", h.ValidateToken)
	g.POST("/redeem", h.Redeem)
	g.GET("/:sponsoringOrgId", h.GetSponsorship)
	g.DELETE("/:sponsoringOrgId", h.RevokeSponsorship)
	g.DELETE("/sponsored/:sponsoredOrgId", h.RemoveSponsorship)
	g.POST("/sponsored/:sponsoredOrgId/validate", middleware.RequireRole("admin"), h.ValidateSponsorship)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, response.Body) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Body
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHandlerOfferAndRedeem(t *testing.T) {
	e := newEnv(t, sponsorships.ModeCloud)
	sponsor := &caller{ID: e.member.UserID, Email: "sponsor@acme.example", Role: "user"}
	router := newRouter(e, sponsor)

	offerPath := "/organization/sponsorship/" + e.enterprise.ID.String() + "/families-for-enterprise"
	w, body := do(t, router, http.MethodPost, offerPath, sponsorships.CreateSponsorshipRequest{
		PlanSponsorshipType: "familiesforenterprise",
		SponsoredEmail:      "family@x.com",
		FriendlyName:        "Family",
	})
	require.Equal(t, http.StatusCreated, w.Code, body.Error)

	w, body = do(t, router, http.MethodPost, offerPath, sponsorships.CreateSponsorshipRequest{
		PlanSponsorshipType: "FamiliesForEnterprise",
		SponsoredEmail:      "other@x.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, sponsorships.ErrAlreadySponsoring.Message, body.Error)

	w, _ = do(t, router, http.MethodPost, offerPath+"/resend", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, e.notifier.offers, 2)

	w, _ = do(t, router, http.MethodGet, "/organization/sponsorship/"+e.enterprise.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// The recipient owns the families organization and redeems.
	recipientID := uuid.New()
	e.orgs.addMember(e.families.ID, recipientID, models.OrgRoleOwner, models.OrgUserStatusConfirmed)
	recipient := newRouter(e, &caller{ID: recipientID, Email: "family@x.com", Role: "user"})
	token := url.QueryEscape(e.notifier.lastToken(t))

	w, body = do(t, recipient, http.MethodPost, "/organization/sponsorship/validate-token?sponsorshipToken="+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"valid": true}, body.Data)

	e.billing.allowActivate().Once()
	w, body = do(t, recipient, http.MethodPost, "/organization/sponsorship/redeem?sponsorshipToken="+token,
		map[string]any{
			"plan_sponsorship_type":     "FamiliesForEnterprise",
			"sponsored_organization_id": e.families.ID,
		})
	require.Equal(t, http.StatusOK, w.Code, body.Error)
	data := body.Data.(map[string]any)
	assert.Equal(t, string(models.SponsorshipActive), data["state"])
	assert.Equal(t, e.families.ID.String(), data["sponsored_organization_id"])

	w, body = do(t, recipient, http.MethodPost, "/organization/sponsorship/redeem?sponsorshipToken="+token,
		map[string]any{
			"plan_sponsorship_type":     "FamiliesForEnterprise",
			"sponsored_organization_id": e.families.ID,
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, sponsorships.ErrNoOutstandingOffer.Message, body.Error)

	e.billing.allowDeactivate().Once()
	w, _ = do(t, recipient, http.MethodDelete, "/organization/sponsorship/sponsored/"+e.families.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, e.repo.all())
}

func TestHandlerRejections(t *testing.T) {
	e := newEnv(t, sponsorships.ModeCloud)

	t.Run("unconfirmed member cannot sponsor", func(t *testing.T) {
		invited := e.orgs.addMember(e.enterprise.ID, uuid.New(), models.OrgRoleMember, models.OrgUserStatusInvited)
		router := newRouter(e, &caller{ID: invited.UserID, Role: "user"})
		w, body := do(t, router, http.MethodPost,
			"/organization/sponsorship/"+e.enterprise.ID.String()+"/families-for-enterprise",
			sponsorships.CreateSponsorshipRequest{PlanSponsorshipType: "FamiliesForEnterprise", SponsoredEmail: "a@b.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, sponsorships.ErrUnconfirmedSponsor.Message, body.Error)
	})

	t.Run("bad organization id", func(t *testing.T) {
		router := newRouter(e, &caller{ID: e.member.UserID, Role: "user"})
		w, _ := do(t, router, http.MethodDelete, "/organization/sponsorship/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("revoke without sponsorship", func(t *testing.T) {
		router := newRouter(e, &caller{ID: e.member.UserID, Role: "user"})
		w, body := do(t, router, http.MethodDelete, "/organization/sponsorship/"+e.enterprise.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, sponsorships.ErrNotSponsoring.Message, body.Error)
	})

	t.Run("redeem requires ownership", func(t *testing.T) {
		router := newRouter(e, &caller{ID: uuid.New(), Email: "family@x.com", Role: "user"})
		w, _ := do(t, router, http.MethodPost, "/organization/sponsorship/redeem?sponsorshipToken=x",
			map[string]any{"plan_sponsorship_type": "FamiliesForEnterprise", "sponsored_organization_id": e.families.ID})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("validate is admin only", func(t *testing.T) {
		router := newRouter(e, &caller{ID: uuid.New(), Role: "user"})
		w, _ := do(t, router, http.MethodPost, "/organization/sponsorship/sponsored/"+e.families.ID.String()+"/validate", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		admin := newRouter(e, &caller{ID: uuid.New(), Role: "admin"})
		w, body := do(t, admin, http.MethodPost, "/organization/sponsorship/sponsored/"+e.families.ID.String()+"/validate", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{"valid": false}, body.Data)
	})
}

func TestHandlerRevokeOffer(t *testing.T) {
	e := newEnv(t, sponsorships.ModeCloud)
	e.offer(t)
	router := newRouter(e, &caller{ID: e.member.UserID, Role: "user"})

	w, _ := do(t, router, http.MethodDelete, "/organization/sponsorship/"+e.enterprise.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, e.repo.all())
}
