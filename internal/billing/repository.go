package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/database"
)

// Repository handles billing_events persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates a billing events repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// Append inserts ev and fills in its ID and timestamp.
func (r *Repository) Append(ctx context.Context, ev *models.BillingEvent) error {
	const q = `INSERT INTO billing_events (organization_id, sponsorship_id, event_type, plan_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, q, ev.OrganizationID, ev.SponsorshipID, ev.EventType, string(ev.PlanType)).
		Scan(&ev.ID, &ev.CreatedAt)
}

// ListByOrganization returns an organization's events, newest first.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.BillingEvent, error) {
	const q = `SELECT id, organization_id, sponsorship_id, event_type, plan_type, created_at
		FROM billing_events
		WHERE organization_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.BillingEvent
	for rows.Next() {
		var ev models.BillingEvent
		var planType string
		if err := rows.Scan(&ev.ID, &ev.OrganizationID, &ev.SponsorshipID, &ev.EventType, &planType, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.PlanType = models.PlanType(planType)
		list = append(list, &ev)
	}
	return list, rows.Err()
}
