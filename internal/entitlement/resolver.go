// Package entitlement combines subscription status and the credit balance
// into a point-in-time view of what a user may invoke.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/quotagate/internal/clock"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrUnavailable signals that a backing store could not be reached. Callers
// must treat this as "metered with zero credits", never as access granted.
var ErrUnavailable = errors.New("entitlement_unavailable")

// ErrInvalidUser rejects empty user identifiers.
var ErrInvalidUser = errors.New("invalid_user")

// Snapshot is an advisory view of a user's entitlement. The subscription
// and ledger reads are not transactional with each other; the ledger's
// charge is the authoritative decision.
type Snapshot struct {
	UserID             string    `json:"user_id"`
	SubscriptionActive bool      `json:"subscription_active"`
	CreditsRemaining   int64     `json:"credits_remaining"`
	CheckedAt          time.Time `json:"checked_at"`
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	SubSvc subscriptiondomain.Service
	Ledger ledgerdomain.Service
	Cache  *SnapshotCache `optional:"true"`
}

// Resolver produces entitlement snapshots. It is read-only.
type Resolver struct {
	log    *zap.Logger
	clock  clock.Clock
	subSvc subscriptiondomain.Service
	ledger ledgerdomain.Service
	cache  *SnapshotCache
}

func NewResolver(p Params) *Resolver {
	return &Resolver{
		log:    p.Log.Named("entitlement.resolver"),
		clock:  p.Clock,
		subSvc: p.SubSvc,
		ledger: p.Ledger,
		cache:  p.Cache,
	}
}

// Resolve reads subscription status and balance as of call time.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Snapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Snapshot{}, ErrInvalidUser
	}

	now := r.clock.Now()

	active, err := r.subSvc.ActiveForUser(ctx, userID, now)
	if err != nil {
		r.log.Warn("subscription store unreachable", zap.String("user_id", userID), zap.Error(err))
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	snapshot := Snapshot{
		UserID:             userID,
		SubscriptionActive: active,
		CheckedAt:          now,
	}
	if active {
		// CreditsRemaining is meaningless on the unmetered path; the
		// balance is intentionally not read.
		return snapshot, nil
	}

	balance, err := r.ledger.Balance(ctx, userID)
	if err != nil {
		r.log.Warn("ledger store unreachable", zap.String("user_id", userID), zap.Error(err))
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	snapshot.CreditsRemaining = balance

	return snapshot, nil
}

// ResolveCached serves UI-facing reads through the snapshot cache. Gated
// invocations must use Resolve; cached values are advisory only.
func (r *Resolver) ResolveCached(ctx context.Context, userID string) (Snapshot, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, userID); ok {
			return cached, nil
		}
	}

	snapshot, err := r.Resolve(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if r.cache != nil {
		r.cache.Set(ctx, snapshot)
	}
	return snapshot, nil
}

// Invalidate drops the user's cached snapshot. Called after every gated
// invocation settles so clients re-read the authoritative state.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, userID)
	}
}
