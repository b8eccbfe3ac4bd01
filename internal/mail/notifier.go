// Package mail renders sponsorship emails and hands them to the worker queue.
package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/pkg/queue"
)

// OfferPath is the web vault route that accepts a sponsorship token.
const OfferPath = "/sponsored/families-for-enterprise"

// LogStore records queued emails.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// JobQueue accepts email jobs.
type JobQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Notifier queues sponsorship emails for delivery by the worker.
type Notifier struct {
	logs        LogStore
	jobs        JobQueue
	webVaultURL string
	logger      *zap.Logger
}

// NewNotifier creates a queue-backed notifier.
func NewNotifier(logs LogStore, jobs JobQueue, webVaultURL string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		logs:        logs,
		jobs:        jobs,
		webVaultURL: strings.TrimRight(webVaultURL, "/"),
		logger:      logger,
	}
}

// OfferLink builds the URL a recipient follows to redeem token.
func (n *Notifier) OfferLink(token string) string {
	return n.webVaultURL + OfferPath + "?" + url.Values{"token": {token}}.Encode()
}

// SendOfferEmail queues the offer email carrying token.
func (n *Notifier) SendOfferEmail(ctx context.Context, recipient, sponsorName, token string) error {
	return n.queue(ctx, models.EmailTypeSponsorshipOffer, recipient, map[string]string{
		KeySponsorName: sponsorName,
		KeyOfferLink:   n.OfferLink(token),
	})
}

// SendRevertedEmail queues the notice that a sponsorship ended.
func (n *Notifier) SendRevertedEmail(ctx context.Context, billingEmail, orgName string) error {
	return n.queue(ctx, models.EmailTypeSponsorshipReverted, billingEmail, map[string]string{
		KeyOrgName: orgName,
	})
}

func (n *Notifier) queue(ctx context.Context, emailType, recipient string, data map[string]string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("%s email: no recipient", emailType)
	}
	subject, err := Subject(emailType)
	if err != nil {
		return err
	}
	el := &models.EmailLog{
		EmailType:      emailType,
		RecipientEmail: recipient,
		Subject:        subject,
		Status:         models.EmailLogStatusPending,
	}
	if err := n.logs.Create(ctx, el); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}
	err = n.jobs.EnqueueEmail(ctx, queue.EmailPayload{
		EmailLogID:     el.ID,
		EmailType:      emailType,
		RecipientEmail: recipient,
		Subject:        subject,
		Data:           data,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s email: %w", emailType, err)
	}
	n.logger.Debug("email queued", zap.String("email_type", emailType), zap.Stringer("email_log_id", el.ID))
	return nil
}
