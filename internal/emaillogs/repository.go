package emaillogs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/database"
)

const emailLogColumns = `id, email_type, recipient_email, subject, status, attempts, sent_at, error_message, created_at`

// Repository handles email_logs persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an email logs repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

func scanEmailLog(row pgx.Row) (*models.EmailLog, error) {
	var el models.EmailLog
	var subject, errMsg *string
	if err := row.Scan(&el.ID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.Attempts, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
		return nil, err
	}
	if subject != nil {
		el.Subject = *subject
	}
	if errMsg != nil {
		el.ErrorMessage = *errMsg
	}
	return &el, nil
}

// Create inserts a pending log entry and fills in its ID.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	if el.Status == "" {
		el.Status = models.EmailLogStatusPending
	}
	return r.db.QueryRow(ctx, q, el.EmailType, el.RecipientEmail, el.Subject, el.Status).Scan(&el.ID, &el.CreatedAt)
}

// Get returns one log entry, or nil if it does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.EmailLog, error) {
	el, err := scanEmailLog(r.db.QueryRow(ctx, `SELECT `+emailLogColumns+` FROM email_logs WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	return el, err
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	const q = `UPDATE email_logs SET status = $2, attempts = $3, sent_at = $4, error_message = NULL WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id, models.EmailLogStatusSent, attempts, at)
	return err
}

// MarkFailed records a failed delivery attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, reason string) error {
	const q = `UPDATE email_logs SET status = $2, attempts = $3, error_message = $4 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id, models.EmailLogStatusFailed, attempts, reason)
	return err
}

// ListByRecipient returns the logs sent to email, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, email string, limit int) ([]*models.EmailLog, error) {
	const q = `SELECT ` + emailLogColumns + `
		FROM email_logs
		WHERE lower(recipient_email) = lower($1)
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, q, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		el, err := scanEmailLog(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, el)
	}
	return list, rows.Err()
}
