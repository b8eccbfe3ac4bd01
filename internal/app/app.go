// Package app builds the dependency graph shared by the server, the worker and
// the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-platform/sponsorships/config"
	"github.com/aura-platform/sponsorships/internal/billing"
	"github.com/aura-platform/sponsorships/internal/emaillogs"
	"github.com/aura-platform/sponsorships/internal/mail"
	"github.com/aura-platform/sponsorships/internal/organizations"
	"github.com/aura-platform/sponsorships/internal/plans"
	"github.com/aura-platform/sponsorships/internal/sponsorships"
	"github.com/aura-platform/sponsorships/pkg/database"
	"github.com/aura-platform/sponsorships/pkg/protect"
	"github.com/aura-platform/sponsorships/pkg/queue"
	"github.com/aura-platform/sponsorships/pkg/redis"
)

// App holds the long-lived resources of a process.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Queue  *queue.Queue

	Organizations *organizations.Repository
	Sponsorships  *sponsorships.PostgresRepository
	EmailLogs     *emaillogs.Repository
	Billing       *billing.Service
	Service       *sponsorships.Service
}

// NewLogger returns the production zap logger with ISO8601 timestamps.
func NewLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewCodec builds the token codec for the configured trust domain.
func NewCodec(cfg config.SponsorshipConfig) (*sponsorships.Codec, error) {
	var protector sponsorships.Protector
	if cfg.ProtectorKey != "" {
		key, err := protect.DecodeKey(cfg.ProtectorKey)
		if err != nil {
			return nil, fmt.Errorf("protector key: %w", err)
		}
		p, err := protect.NewDataProtector(key, sponsorships.ProtectorPurpose)
		if err != nil {
			return nil, err
		}
		protector = p
	}
	mode := sponsorships.ModeCloud
	if cfg.SelfHosted {
		mode = sponsorships.ModeSelfHosted
	}
	return sponsorships.NewCodec(mode, protector, protect.InstallationCipher{})
}

// New connects to Postgres and Redis, applies migrations and wires the
// sponsorship service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	codec, err := NewCodec(cfg.Sponsorship)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	a := &App{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Redis:         rdb,
		Queue:         queue.NewQueue(rdb.Client, logger),
		Organizations: organizations.NewRepository(pool),
		Sponsorships:  sponsorships.NewPostgresRepository(pool),
		EmailLogs:     emaillogs.NewRepository(pool),
	}
	table := plans.Default()
	a.Billing = billing.NewService(billing.NewRepository(pool), table, logger.Named("billing"))
	notifier := mail.NewNotifier(a.EmailLogs, a.Queue, cfg.Sponsorship.WebVaultURL, logger.Named("mail"))
	a.Service = sponsorships.NewService(a.Sponsorships, a.Organizations, a.Billing, notifier, table, codec,
		logger.Named("sponsorships"),
		sponsorships.WithMaxRenewalsWithoutValidation(cfg.Sponsorship.MaxRenewalsWithoutValidation))
	return a, nil
}

// Sender returns the configured mail sender.
func (a *App) Sender() (mail.Sender, error) {
	if a.Config.Email.SendGridAPIKey == "" {
		a.Logger.Warn("SENDGRID_API_KEY not set, emails will only be logged")
		return mail.NewLogSender(a.Logger.Named("mail")), nil
	}
	return mail.NewSendGridSender(a.Config.Email.SendGridAPIKey, a.Config.Email.FromAddress, a.Config.Email.FromName, a.Logger.Named("mail"))
}

// Close releases the process resources.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
