package sponsorships_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/internal/sponsorships"
	"github.com/aura-platform/sponsorships/pkg/protect"
)

// memRepo enforces the same uniqueness rules as the Postgres schema.
type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Sponsorship
	orgs *memOrgs

	commitErr error
}

func newMemRepo(orgs *memOrgs) *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]models.Sponsorship), orgs: orgs}
}

func (r *memRepo) find(match func(models.Sponsorship) bool) *models.Sponsorship {
	var found *models.Sponsorship
	for _, s := range r.rows {
		if match(s) && (found == nil || s.CreatedAt.After(found.CreatedAt)) {
			cp := s
			found = &cp
		}
	}
	return found
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Sponsorship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memRepo) GetBySponsoringOrgUserID(_ context.Context, id uuid.UUID) (*models.Sponsorship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(s models.Sponsorship) bool {
		return s.SponsoringOrganizationUserID != nil && *s.SponsoringOrganizationUserID == id
	}), nil
}

func (r *memRepo) GetBySponsoredOrgID(_ context.Context, id uuid.UUID) (*models.Sponsorship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(s models.Sponsorship) bool {
		return s.SponsoredOrganizationID != nil && *s.SponsoredOrganizationID == id
	}), nil
}

func (r *memRepo) GetByOfferedToEmail(_ context.Context, email string) (*models.Sponsorship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(s models.Sponsorship) bool {
		return s.OfferedToEmail != nil && *s.OfferedToEmail == email && s.SponsoredOrganizationID == nil
	}), nil
}

func (r *memRepo) conflicts(s *models.Sponsorship) bool {
	for id, other := range r.rows {
		if id == s.ID {
			continue
		}
		if s.SponsoringOrganizationUserID != nil && other.SponsoringOrganizationUserID != nil &&
			*s.SponsoringOrganizationUserID == *other.SponsoringOrganizationUserID {
			return true
		}
		if s.SponsoredOrganizationID != nil && other.SponsoredOrganizationID != nil &&
			*s.SponsoredOrganizationID == *other.SponsoredOrganizationID {
			return true
		}
	}
	return false
}

func (r *memRepo) Create(_ context.Context, s *models.Sponsorship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[s.ID]; exists || r.conflicts(s) {
		return fmt.Errorf("create sponsorship: %w", sponsorships.ErrAlreadySponsoring)
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	r.rows[s.ID] = *s
	return nil
}

func (r *memRepo) Upsert(_ context.Context, s *models.Sponsorship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts(s) {
		return sponsorships.ErrConflict
	}
	s.UpdatedAt = time.Now()
	r.rows[s.ID] = *s
	return nil
}

func (r *memRepo) Delete(_ context.Context, s *models.Sponsorship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, s.ID)
	return nil
}

func (r *memRepo) Release(_ context.Context, s *models.Sponsorship, sponsoredOrgID uuid.UUID, del bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[s.ID]
	if !ok || cur.SponsoredOrganizationID == nil || *cur.SponsoredOrganizationID != sponsoredOrgID {
		return false, nil
	}
	if del {
		delete(r.rows, s.ID)
		return true, nil
	}
	if r.conflicts(s) {
		return false, sponsorships.ErrConflict
	}
	s.UpdatedAt = time.Now()
	r.rows[s.ID] = *s
	return true, nil
}

// barrierRepo holds every GetBySponsoredOrgID caller until parties of them
// have read, so all of them act on the same snapshot.
type barrierRepo struct {
	*memRepo
	arrived sync.WaitGroup
}

func newBarrierRepo(r *memRepo, parties int) *barrierRepo {
	b := &barrierRepo{memRepo: r}
	b.arrived.Add(parties)
	return b
}

func (b *barrierRepo) GetBySponsoredOrgID(ctx context.Context, id uuid.UUID) (*models.Sponsorship, error) {
	sp, err := b.memRepo.GetBySponsoredOrgID(ctx, id)
	b.arrived.Done()
	b.arrived.Wait()
	return sp, err
}

func (r *memRepo) CommitRedemption(_ context.Context, s *models.Sponsorship, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	cur, ok := r.rows[s.ID]
	if !ok || cur.SponsoredOrganizationID != nil || cur.PlanSponsorshipType == nil ||
		s.PlanSponsorshipType == nil || *cur.PlanSponsorshipType != *s.PlanSponsorshipType {
		return fmt.Errorf("commit redemption: %w", sponsorships.ErrAlreadyRedeemed)
	}
	if r.conflicts(s) {
		return fmt.Errorf("commit redemption: %w", sponsorships.ErrAlreadySponsored)
	}
	r.rows[s.ID] = *s
	r.orgs.put(org)
	return nil
}

func (r *memRepo) ListSponsoredOrganizationIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	held := make(map[uuid.UUID]bool)
	for _, s := range r.rows {
		if s.SponsoredOrganizationID != nil {
			ids = append(ids, *s.SponsoredOrganizationID)
			held[*s.SponsoredOrganizationID] = true
		}
	}
	r.orgs.mu.Lock()
	defer r.orgs.mu.Unlock()
	for id, org := range r.orgs.orgs {
		if org.Sponsored && !held[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) put(s *models.Sponsorship) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = *s
}

func (r *memRepo) get(id uuid.UUID) (models.Sponsorship, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	return s, ok
}

func (r *memRepo) all() []models.Sponsorship {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]models.Sponsorship, 0, len(r.rows))
	for _, s := range r.rows {
		list = append(list, s)
	}
	return list
}

type memOrgs struct {
	mu      sync.Mutex
	orgs    map[uuid.UUID]models.Organization
	members map[[2]uuid.UUID]models.OrganizationUser
	upserts int
}

func newMemOrgs() *memOrgs {
	return &memOrgs{
		orgs:    make(map[uuid.UUID]models.Organization),
		members: make(map[[2]uuid.UUID]models.OrganizationUser),
	}
}

func (o *memOrgs) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	org, ok := o.orgs[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func (o *memOrgs) Upsert(_ context.Context, org *models.Organization) error {
	o.mu.Lock()
	o.upserts++
	o.mu.Unlock()
	o.put(org)
	return nil
}

func (o *memOrgs) GetOrganizationUser(_ context.Context, orgID, userID uuid.UUID) (*models.OrganizationUser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ou, ok := o.members[[2]uuid.UUID{orgID, userID}]
	if !ok {
		return nil, nil
	}
	return &ou, nil
}

func (o *memOrgs) IsOwner(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	ou, _ := o.GetOrganizationUser(ctx, orgID, userID)
	return ou.Confirmed() && ou.Role == models.OrgRoleOwner, nil
}

func (o *memOrgs) put(org *models.Organization) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orgs[org.ID] = *org
}

func (o *memOrgs) get(id uuid.UUID) models.Organization {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orgs[id]
}

func (o *memOrgs) addMember(orgID, userID uuid.UUID, role, status string) *models.OrganizationUser {
	o.mu.Lock()
	defer o.mu.Unlock()
	ou := models.OrganizationUser{ID: uuid.New(), OrganizationID: orgID, UserID: userID, Role: role, Status: status}
	o.members[[2]uuid.UUID{orgID, userID}] = ou
	return &ou
}

type mockBilling struct {
	mock.Mock
}

func (m *mockBilling) ActivateSponsoredPlan(ctx context.Context, org *models.Organization, s *models.Sponsorship) error {
	return m.Called(ctx, org, s).Error(0)
}

func (m *mockBilling) DeactivateSponsoredPlan(ctx context.Context, org *models.Organization, s *models.Sponsorship) error {
	return m.Called(ctx, org, s).Error(0)
}

func (m *mockBilling) allowActivate() *mock.Call {
	return m.On("ActivateSponsoredPlan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			org := args.Get(1).(*models.Organization)
			until := time.Now().AddDate(1, 0, 0)
			org.Sponsored = true
			org.SponsoredUntil = &until
		}).Return(nil)
}

func (m *mockBilling) allowDeactivate() *mock.Call {
	return m.On("DeactivateSponsoredPlan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if org, ok := args.Get(1).(*models.Organization); ok && org != nil {
				org.Sponsored = false
				org.SponsoredUntil = nil
			}
		}).Return(nil)
}

type sentOffer struct {
	Recipient, Sponsor, Token string
}

type recordingNotifier struct {
	mu       sync.Mutex
	offers   []sentOffer
	reverted []string
	err      error
}

func (n *recordingNotifier) SendOfferEmail(_ context.Context, recipient, sponsorName, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers = append(n.offers, sentOffer{recipient, sponsorName, token})
	return n.err
}

func (n *recordingNotifier) SendRevertedEmail(_ context.Context, billingEmail, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reverted = append(n.reverted, billingEmail)
	return n.err
}

func (n *recordingNotifier) lastToken(t *testing.T) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.offers, "no offer email sent")
	return n.offers[len(n.offers)-1].Token
}

func (n *recordingNotifier) revertedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reverted)
}

// env is a service wired to in-memory collaborators with an enterprise
// sponsor, one confirmed member and a families organization to sponsor.
type env struct {
	repo     *memRepo
	orgs     *memOrgs
	billing  *mockBilling
	notifier *recordingNotifier
	codec    *sponsorships.Codec
	svc      *sponsorships.Service

	enterprise *models.Organization
	families   *models.Organization
	member     *models.OrganizationUser
}

func newCodec(t *testing.T, mode sponsorships.Mode) *sponsorships.Codec {
	t.Helper()
	key, err := protect.GenerateKey()
	require.NoError(t, err)
	raw, err := protect.DecodeKey(key)
	require.NoError(t, err)
	protector, err := protect.NewDataProtector(raw, sponsorships.ProtectorPurpose)
	require.NoError(t, err)
	codec, err := sponsorships.NewCodec(mode, protector, protect.InstallationCipher{})
	require.NoError(t, err)
	return codec
}

func newOrg(name string, plan models.PlanType) *models.Organization {
	return &models.Organization{
		ID:           uuid.New(),
		Name:         name,
		Slug:         name,
		PlanType:     plan,
		Enabled:      true,
		APIKey:       "installation-key-" + name,
		BillingEmail: "billing@" + name + ".example",
	}
}

func newEnv(t *testing.T, mode sponsorships.Mode, opts ...sponsorships.Option) *env {
	t.Helper()
	orgs := newMemOrgs()
	e := &env{
		orgs:       orgs,
		repo:       newMemRepo(orgs),
		billing:    &mockBilling{},
		notifier:   &recordingNotifier{},
		codec:      newCodec(t, mode),
		enterprise: newOrg("acme", models.PlanEnterpriseAnnually),
		families:   newOrg("family", models.PlanFamiliesAnnually),
	}
	orgs.put(e.enterprise)
	orgs.put(e.families)
	e.member = orgs.addMember(e.enterprise.ID, uuid.New(), models.OrgRoleMember, models.OrgUserStatusConfirmed)
	e.svc = sponsorships.NewService(e.repo, orgs, e.billing, e.notifier, nil, e.codec, nil, opts...)
	return e
}

func (e *env) offer(t *testing.T) *models.Sponsorship {
	t.Helper()
	sp, err := e.svc.OfferSponsorship(context.Background(), e.enterprise, e.member,
		models.PlanSponsorshipFamiliesForEnterprise, "family@x.com", "Family")
	require.NoError(t, err)
	return sp
}

func (e *env) redeem(t *testing.T) *models.Sponsorship {
	t.Helper()
	e.offer(t)
	e.billing.allowActivate().Once()
	sp, err := e.svc.Redeem(context.Background(), e.notifier.lastToken(t), e.enterprise, e.families)
	require.NoError(t, err)
	return sp
}

// requireConsistent checks every stored row against the field invariants.
func (e *env) requireConsistent(t *testing.T) {
	t.Helper()
	for _, s := range e.repo.all() {
		require.NoError(t, s.CheckInvariants(), "sponsorship %s", s.ID)
		require.Equal(t, s.PlanSponsorshipType == nil, s.State() == models.SponsorshipAvailable)
	}
}
