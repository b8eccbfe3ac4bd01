package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/internal/sponsorships"
	"github.com/aura-platform/sponsorships/pkg/redis"
)

const sweepLockKey = "sponsorships:validation-sweep"

// SponsoredLister lists the organizations that currently hold a sponsorship.
type SponsoredLister interface {
	ListSponsoredOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Validator re-checks one sponsored organization.
type Validator interface {
	Validate(ctx context.Context, sponsoredOrgID uuid.UUID) (bool, error)
}

// Locker grants a single holder a key for ttl.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// SweepResult summarizes one validation sweep.
type SweepResult struct {
	Checked int
	Valid   int
	Removed int
	Failed  int
}

// ValidationSweeper periodically validates every sponsored organization.
type ValidationSweeper struct {
	lister      SponsoredLister
	validator   Validator
	locker      Locker
	interval    time.Duration
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewValidationSweeper creates a sweeper. locker may be nil when only one
// worker runs.
func NewValidationSweeper(lister SponsoredLister, validator Validator, locker Locker,
	interval, callTimeout time.Duration, logger *zap.Logger) *ValidationSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &ValidationSweeper{
		lister:      lister,
		validator:   validator,
		locker:      locker,
		interval:    interval,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Sweep validates every sponsored organization once.
func (s *ValidationSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, sweepLockKey, s.interval)
		if err != nil {
			return res, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lock failed", zap.Error(err))
			}
		}()
	}

	ids, err := s.lister.ListSponsoredOrganizationIDs(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		valid, err := s.validateOne(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			level := zap.WarnLevel
			if errors.Is(err, sponsorships.ErrReconciliation) {
				level = zap.ErrorLevel
			}
			s.logger.Check(level, "validate sponsorship failed").Write(zap.Stringer("sponsored_org_id", id), zap.Error(err))
		case valid:
			res.Valid++
		default:
			res.Removed++
		}
	}
	return res, nil
}

func (s *ValidationSweeper) validateOne(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.validator.Validate(ctx, id)
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *ValidationSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("validation sweeper stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *ValidationSweeper) runOnce(ctx context.Context) {
	start := time.Now()
	res, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, redis.ErrLockHeld):
		s.logger.Debug("validation sweep skipped, lock held elsewhere")
	case err != nil && ctx.Err() == nil:
		s.logger.Error("validation sweep failed", zap.Error(err))
	default:
		s.logger.Info("validation sweep finished",
			zap.Int("checked", res.Checked),
			zap.Int("valid", res.Valid),
			zap.Int("removed", res.Removed),
			zap.Int("failed", res.Failed),
			zap.Duration("took", time.Since(start)))
	}
}
