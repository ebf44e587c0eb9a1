// Package scheduler runs the periodic subscription expiry sweep. Expiry is
// already evaluated lazily on every entitlement read; the sweep only keeps
// stored statuses honest for reporting and list views.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/quotagate/internal/clock"
	"github.com/smallbiznis/quotagate/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger and clock")

const expirySweepLockKey = "quotagate:scheduler:expiry_sweep"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Locker *ratelimit.Locker `optional:"true"`
	Config Config            `optional:"true"`
}

type Scheduler struct {
	db     *gorm.DB
	log    *zap.Logger
	cfg    Config
	clock  clock.Clock
	locker *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:     p.DB,
		log:    p.Log.Named("scheduler"),
		cfg:    p.Config.withDefaults(),
		clock:  p.Clock,
		locker: p.Locker,
	}, nil
}

// RunForever sweeps on the configured interval until ctx is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce expires stale subscription rows. With multiple replicas the redis
// lock keeps a single sweeper active per interval; without redis every
// replica sweeps, which is safe because the update is idempotent.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, expirySweepLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("sweep lock unavailable, proceeding unlocked", zap.Error(err))
		} else if !ok {
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(ctx, expirySweepLockKey, token); err != nil {
					s.log.Warn("sweep lock release failed", zap.Error(err))
				}
			}()
		}
	}

	now := s.clock.Now().UTC()
	res := s.db.WithContext(ctx).Exec(`
		UPDATE subscriptions
		SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status IN (?, ?)
			  AND expires_at IS NOT NULL
			  AND expires_at <= ?
			LIMIT ?
		)
	`,
		subscriptiondomain.SubscriptionStatusExpired,
		now,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusTrialing,
		now,
		s.cfg.BatchSize,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("expired subscriptions", zap.Int64("count", res.RowsAffected))
	}
	return nil
}
