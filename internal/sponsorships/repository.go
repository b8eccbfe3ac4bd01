package sponsorships

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/internal/organizations"
	"github.com/aura-platform/sponsorships/pkg/database"
)

// Repository persists sponsorship rows. Lookups return nil, nil when no row
// matches.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sponsorship, error)
	GetBySponsoringOrgUserID(ctx context.Context, orgUserID uuid.UUID) (*models.Sponsorship, error)
	GetBySponsoredOrgID(ctx context.Context, orgID uuid.UUID) (*models.Sponsorship, error)
	GetByOfferedToEmail(ctx context.Context, email string) (*models.Sponsorship, error)
	// Create inserts a new row. A row already held by the same sponsoring
	// organization user yields ErrConflict.
	Create(ctx context.Context, s *models.Sponsorship) error
	// Upsert writes every field of s, keyed on its id.
	Upsert(ctx context.Context, s *models.Sponsorship) error
	// Delete removes s. Deleting a missing row is not an error.
	Delete(ctx context.Context, s *models.Sponsorship) error
	// Release detaches s from sponsoredOrgID, deleting the row when del is
	// set and writing the fields of s otherwise. It reports false when the
	// row no longer names sponsoredOrgID.
	Release(ctx context.Context, s *models.Sponsorship, sponsoredOrgID uuid.UUID, del bool) (bool, error)
	// CommitRedemption stores a redeemed row together with the sponsored
	// organization. It fails with ErrConflict if the row was redeemed
	// concurrently or another row already names the organization.
	CommitRedemption(ctx context.Context, s *models.Sponsorship, sponsoredOrg *models.Organization) error
	// ListSponsoredOrganizationIDs names every organization holding a sponsorship
	// row or still flagged sponsored without one, least recently touched first.
	ListSponsoredOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
}

const sponsorshipColumns = `id, sponsoring_organization_id, sponsoring_organization_user_id, sponsored_organization_id,
	offered_to_email, friendly_name, plan_sponsorship_type, cloud_sponsor, times_renewed_without_validation,
	sponsorship_lapsed_date, created_at, updated_at`

// PostgresRepository stores sponsorships in the organization_sponsorships table.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   database.Querier
}

// NewPostgresRepository creates a sponsorship repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

func scanSponsorship(row pgx.Row) (*models.Sponsorship, error) {
	var s models.Sponsorship
	var planType *string
	err := row.Scan(&s.ID, &s.SponsoringOrganizationID, &s.SponsoringOrganizationUserID, &s.SponsoredOrganizationID,
		&s.OfferedToEmail, &s.FriendlyName, &planType, &s.CloudSponsor, &s.TimesRenewedWithoutValidation,
		&s.SponsorshipLapsedDate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if planType != nil {
		pt := models.PlanSponsorshipType(*planType)
		s.PlanSponsorshipType = &pt
	}
	return &s, nil
}

func planTypeArg(s *models.Sponsorship) *string {
	if s.PlanSponsorshipType == nil {
		return nil
	}
	v := string(*s.PlanSponsorshipType)
	return &v
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sponsorship, error) {
	return scanSponsorship(r.db.QueryRow(ctx,
		`SELECT `+sponsorshipColumns+` FROM organization_sponsorships WHERE id = $1`, id))
}

func (r *PostgresRepository) GetBySponsoringOrgUserID(ctx context.Context, orgUserID uuid.UUID) (*models.Sponsorship, error) {
	return scanSponsorship(r.db.QueryRow(ctx,
		`SELECT `+sponsorshipColumns+` FROM organization_sponsorships WHERE sponsoring_organization_user_id = $1`, orgUserID))
}

func (r *PostgresRepository) GetBySponsoredOrgID(ctx context.Context, orgID uuid.UUID) (*models.Sponsorship, error) {
	return scanSponsorship(r.db.QueryRow(ctx,
		`SELECT `+sponsorshipColumns+` FROM organization_sponsorships WHERE sponsored_organization_id = $1`, orgID))
}

// GetByOfferedToEmail returns the most recent outstanding offer to email,
// compared case-insensitively.
func (r *PostgresRepository) GetByOfferedToEmail(ctx context.Context, email string) (*models.Sponsorship, error) {
	const q = `SELECT ` + sponsorshipColumns + ` FROM organization_sponsorships
		WHERE lower(offered_to_email) = $1 AND sponsored_organization_id IS NULL
		ORDER BY created_at DESC
		LIMIT 1`
	return scanSponsorship(r.db.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Sponsorship) error {
	const q = `INSERT INTO organization_sponsorships (id, sponsoring_organization_id, sponsoring_organization_user_id,
			sponsored_organization_id, offered_to_email, friendly_name, plan_sponsorship_type, cloud_sponsor,
			times_renewed_without_validation, sponsorship_lapsed_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, q, s.ID, s.SponsoringOrganizationID, s.SponsoringOrganizationUserID,
		s.SponsoredOrganizationID, s.OfferedToEmail, s.FriendlyName, planTypeArg(s), s.CloudSponsor,
		s.TimesRenewedWithoutValidation, s.SponsorshipLapsedDate).Scan(&s.CreatedAt, &s.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("create sponsorship: %w", ErrAlreadySponsoring)
	}
	if err != nil {
		return fmt.Errorf("create sponsorship: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Sponsorship) error {
	if err := upsertSponsorship(ctx, r.db, s); err != nil {
		return fmt.Errorf("upsert sponsorship: %w", err)
	}
	return nil
}

func upsertSponsorship(ctx context.Context, db database.Querier, s *models.Sponsorship) error {
	const q = `INSERT INTO organization_sponsorships (id, sponsoring_organization_id, sponsoring_organization_user_id,
			sponsored_organization_id, offered_to_email, friendly_name, plan_sponsorship_type, cloud_sponsor,
			times_renewed_without_validation, sponsorship_lapsed_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			sponsoring_organization_id = EXCLUDED.sponsoring_organization_id,
			sponsoring_organization_user_id = EXCLUDED.sponsoring_organization_user_id,
			sponsored_organization_id = EXCLUDED.sponsored_organization_id,
			offered_to_email = EXCLUDED.offered_to_email,
			friendly_name = EXCLUDED.friendly_name,
			plan_sponsorship_type = EXCLUDED.plan_sponsorship_type,
			cloud_sponsor = EXCLUDED.cloud_sponsor,
			times_renewed_without_validation = EXCLUDED.times_renewed_without_validation,
			sponsorship_lapsed_date = EXCLUDED.sponsorship_lapsed_date,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	err := db.QueryRow(ctx, q, s.ID, s.SponsoringOrganizationID, s.SponsoringOrganizationUserID,
		s.SponsoredOrganizationID, s.OfferedToEmail, s.FriendlyName, planTypeArg(s), s.CloudSponsor,
		s.TimesRenewedWithoutValidation, s.SponsorshipLapsedDate).Scan(&s.CreatedAt, &s.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepository) Delete(ctx context.Context, s *models.Sponsorship) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM organization_sponsorships WHERE id = $1`, s.ID); err != nil {
		return fmt.Errorf("delete sponsorship: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Release(ctx context.Context, s *models.Sponsorship, sponsoredOrgID uuid.UUID, del bool) (bool, error) {
	if del {
		tag, err := r.db.Exec(ctx, `DELETE FROM organization_sponsorships
			WHERE id = $1 AND sponsored_organization_id = $2`, s.ID, sponsoredOrgID)
		if err != nil {
			return false, fmt.Errorf("release sponsorship: %w", err)
		}
		return tag.RowsAffected() == 1, nil
	}

	const q = `UPDATE organization_sponsorships SET
			sponsored_organization_id = $3,
			offered_to_email = $4,
			friendly_name = $5,
			plan_sponsorship_type = $6,
			times_renewed_without_validation = $7,
			sponsorship_lapsed_date = $8,
			updated_at = NOW()
		WHERE id = $1 AND sponsored_organization_id = $2`
	tag, err := r.db.Exec(ctx, q, s.ID, sponsoredOrgID, s.SponsoredOrganizationID, s.OfferedToEmail,
		s.FriendlyName, planTypeArg(s), s.TimesRenewedWithoutValidation, s.SponsorshipLapsedDate)
	if err != nil {
		return false, fmt.Errorf("release sponsorship: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) CommitRedemption(ctx context.Context, s *models.Sponsorship, sponsoredOrg *models.Organization) error {
	const q = `UPDATE organization_sponsorships SET
			sponsored_organization_id = $2,
			offered_to_email = NULL,
			friendly_name = $3,
			times_renewed_without_validation = $4,
			sponsorship_lapsed_date = $5,
			updated_at = NOW()
		WHERE id = $1 AND sponsored_organization_id IS NULL AND plan_sponsorship_type = $6`

	err := database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, s.ID, s.SponsoredOrganizationID, s.FriendlyName,
			s.TimesRenewedWithoutValidation, s.SponsorshipLapsedDate, planTypeArg(s))
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadySponsored
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyRedeemed
		}
		return organizations.NewRepository(tx).Upsert(ctx, sponsoredOrg)
	})
	if err != nil {
		return fmt.Errorf("commit redemption: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSponsoredOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	const q = `SELECT id FROM (
			SELECT sponsored_organization_id AS id, updated_at FROM organization_sponsorships
			WHERE sponsored_organization_id IS NOT NULL
			UNION ALL
			SELECT o.id, o.updated_at FROM organizations o
			WHERE o.sponsored AND NOT EXISTS (
				SELECT 1 FROM organization_sponsorships s WHERE s.sponsored_organization_id = o.id)
		) sponsored
		ORDER BY updated_at ASC`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
