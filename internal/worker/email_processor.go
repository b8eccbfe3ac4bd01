package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/mail"
	"github.com/aura-platform/sponsorships/pkg/queue"
)

const dequeueTimeout = 5 * time.Second

// JobSource hands out jobs and takes failed ones back.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// EmailLogStore records delivery outcomes.
type EmailLogStore interface {
	MarkSent(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, reason string) error
}

// EmailProcessor renders and delivers queued sponsorship emails.
type EmailProcessor struct {
	jobs    JobSource
	logs    EmailLogStore
	sender  mail.Sender
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(jobs JobSource, logs EmailLogStore, sender mail.Sender, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		jobs:    jobs,
		logs:    logs,
		sender:  sender,
		logger:  logger,
		backoff: queue.RetryBackoff,
		now:     time.Now,
	}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	msg, err := mail.Render(payload.EmailType, payload.Data)
	if err != nil {
		return err
	}
	if payload.Subject != "" {
		msg.Subject = payload.Subject
	}
	if err := p.sender.Send(ctx, payload.RecipientEmail, msg); err != nil {
		return fmt.Errorf("send %s email: %w", payload.EmailType, err)
	}
	if payload.EmailLogID != uuid.Nil {
		if err := p.logs.MarkSent(ctx, payload.EmailLogID, job.Attempt+1, p.now().UTC()); err != nil {
			p.logger.Warn("mark email sent failed", zap.Error(err), zap.Stringer("email_log_id", payload.EmailLogID))
		}
	}
	p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

// Run dequeues and processes email jobs until ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			p.logger.Info("email worker stopping")
			return nil
		}

		job, err := p.jobs.Dequeue(ctx, dequeueTimeout, queue.QueueEmails)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.fail(ctx, job, err)
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) fail(ctx context.Context, job *queue.Job, err error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	dead, reErr := p.jobs.Retry(ctx, job)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
	}

	var payload queue.EmailPayload
	if job.Decode(&payload) != nil || payload.EmailLogID == uuid.Nil {
		return
	}
	if !dead && reErr == nil {
		return
	}
	if err := p.logs.MarkFailed(ctx, payload.EmailLogID, job.Attempt, err.Error()); err != nil {
		p.logger.Warn("mark email failed failed", zap.Error(err), zap.Stringer("email_log_id", payload.EmailLogID))
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
