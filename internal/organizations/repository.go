package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/database"
)

const orgColumns = `id, name, slug, plan_type, enabled, api_key, billing_email, sponsored, sponsored_until, created_at, updated_at`

// Repository handles organization and organization_user persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an organizations repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	var planType string
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &planType, &org.Enabled, &org.APIKey,
		&org.BillingEmail, &org.Sponsored, &org.SponsoredUntil, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	org.PlanType = models.PlanType(planType)
	return &org, nil
}

// Create creates an organization. APIKey must already be set.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (id, name, slug, plan_type, enabled, api_key, billing_email)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, q, org.Name, org.Slug, string(org.PlanType), org.Enabled, org.APIKey, org.BillingEmail).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
}

// GetByID returns an organization by ID, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return scanOrganization(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

// GetBySlug returns an organization by slug, or nil if it does not exist.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return scanOrganization(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
}

// Upsert writes every mutable organization field.
func (r *Repository) Upsert(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (id, name, slug, plan_type, enabled, api_key, billing_email, sponsored, sponsored_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			plan_type = EXCLUDED.plan_type,
			enabled = EXCLUDED.enabled,
			api_key = EXCLUDED.api_key,
			billing_email = EXCLUDED.billing_email,
			sponsored = EXCLUDED.sponsored,
			sponsored_until = EXCLUDED.sponsored_until,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, q, org.ID, org.Name, org.Slug, string(org.PlanType), org.Enabled, org.APIKey,
		org.BillingEmail, org.Sponsored, org.SponsoredUntil).Scan(&org.CreatedAt, &org.UpdatedAt)
}

// UpdateAPIKey replaces the installation API key.
func (r *Repository) UpdateAPIKey(ctx context.Context, id uuid.UUID, apiKey string) error {
	_, err := r.db.Exec(ctx, `UPDATE organizations SET api_key = $2, updated_at = NOW() WHERE id = $1`, id, apiKey)
	return err
}

// AddUser adds a user to an organization with a role and membership status.
func (r *Repository) AddUser(ctx context.Context, orgID, userID uuid.UUID, role, status string) error {
	const q = `INSERT INTO organization_users (id, organization_id, user_id, role, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role, status = EXCLUDED.status, updated_at = NOW()`
	_, err := r.db.Exec(ctx, q, orgID, userID, role, status)
	return err
}

// GetOrganizationUser returns the membership of userID in orgID, or nil.
func (r *Repository) GetOrganizationUser(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationUser, error) {
	const q = `SELECT id, organization_id, user_id, role, status, created_at, updated_at
		FROM organization_users WHERE organization_id = $1 AND user_id = $2`
	var ou models.OrganizationUser
	err := r.db.QueryRow(ctx, q, orgID, userID).
		Scan(&ou.ID, &ou.OrganizationID, &ou.UserID, &ou.Role, &ou.Status, &ou.CreatedAt, &ou.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ou, nil
}

// IsOwner reports whether userID is a confirmed owner of orgID.
func (r *Repository) IsOwner(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	ou, err := r.GetOrganizationUser(ctx, orgID, userID)
	if err != nil || ou == nil {
		return false, err
	}
	return ou.Confirmed() && ou.Role == models.OrgRoleOwner, nil
}

// ListOrganizationsForUser returns organizations the user is a member of.
func (r *Repository) ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	const q = `SELECT o.id, o.name, o.slug, o.plan_type, o.enabled, o.api_key, o.billing_email, o.sponsored,
			o.sponsored_until, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN organization_users ou ON ou.organization_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.name`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// Member represents an organization member with user details.
type Member struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	AddedAt  time.Time `json:"added_at"`
}

// ListMembers returns members of an organization.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	const q = `SELECT ou.id, ou.user_id, u.email, u.full_name, ou.role, ou.status, ou.created_at
		FROM organization_users ou
		INNER JOIN users u ON u.id = ou.user_id
		WHERE ou.organization_id = $1
		ORDER BY ou.created_at ASC`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.Status, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
