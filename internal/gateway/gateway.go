// Package gateway decides, for each gated invocation, whether the user may
// proceed and settles the credit charge after the operation completes.
package gateway

import (
	"context"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/quotagate/internal/classify"
	"github.com/smallbiznis/quotagate/internal/entitlement"
	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	"github.com/smallbiznis/quotagate/internal/observability/metrics"
)

// Operation is the work a gated call performs against the upstream service.
// It runs without any lock or reservation held.
type Operation[T any] func(ctx context.Context) (T, error)

// Decision outcomes recorded on the gateway metric.
const (
	decisionDelivered       = "delivered"
	decisionQuotaExceeded   = "quota_exceeded"
	decisionFeatureDisabled = "feature_disabled"
	decisionOperationFailed = "operation_failed"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Features featuredomain.Service
	Resolver *entitlement.Resolver
	Ledger   ledgerdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

// Gateway gates invocations behind the feature registry, the entitlement
// resolver and the usage ledger.
type Gateway struct {
	log      *zap.Logger
	features featuredomain.Service
	resolver *entitlement.Resolver
	ledger   ledgerdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) *Gateway {
	return &Gateway{
		log:      p.Log.Named("gateway"),
		features: p.Features,
		resolver: p.Resolver,
		ledger:   p.Ledger,
		metrics:  p.Metrics,
	}
}

// Invoke runs op for userID under featureKey's gate.
//
// Order of checks: disabled feature first, then entitlement, then the
// operation, then the charge. The pre-flight balance read is advisory; the
// ledger's atomic decrement is the only authoritative admission. A user on
// an active subscription is never charged. When the operation fails, no
// credit is consumed and a failed_not_charged record is appended. When the
// charge itself loses the race for the last credit, the result is discarded
// and the caller sees quota_exceeded.
func Invoke[T any](ctx context.Context, g *Gateway, userID, featureKey string, op Operation[T]) (T, error) {
	var zero T

	userID = strings.TrimSpace(userID)
	featureKey = strings.TrimSpace(strings.ToLower(featureKey))
	if userID == "" {
		return zero, entitlement.ErrInvalidUser
	}
	if featureKey == "" {
		return zero, featuredomain.ErrInvalidKey
	}

	log := g.log.With(zap.String("user_id", userID), zap.String("feature_key", featureKey))

	if !g.features.IsEnabled(ctx, featureKey) {
		g.recordDecision(ctx, featureKey, decisionFeatureDisabled)
		return zero, classify.New(classify.KindFeatureDisabled, nil)
	}

	snapshot, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		// Unreachable stores fail closed: treat as metered with nothing left.
		log.Warn("entitlement unavailable, denying", zap.Error(err))
		snapshot = entitlement.Snapshot{UserID: userID}
	}

	metered := !snapshot.SubscriptionActive
	if metered && snapshot.CreditsRemaining <= 0 {
		// Advisory short-circuit; a concurrent grant may land after this
		// read, which the next attempt will observe.
		g.recordDecision(ctx, featureKey, decisionQuotaExceeded)
		return zero, classify.New(classify.KindQuotaExceeded, err)
	}

	result, opErr := op(ctx)
	if opErr != nil {
		classified := classify.Classify(opErr)
		if metered {
			if recErr := g.ledger.RecordFailure(ctx, userID, featureKey, string(classified.Kind)); recErr != nil {
				log.Error("failed to record failed invocation", zap.Error(recErr))
			}
		}
		log.Info("operation failed",
			zap.String("kind", string(classified.Kind)),
			zap.Error(opErr),
		)
		g.recordDecision(ctx, featureKey, decisionOperationFailed)
		return zero, classified
	}

	if !metered {
		g.recordDecision(ctx, featureKey, decisionDelivered)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		// Caller is gone; do not charge for a result nobody receives.
		g.recordDecision(ctx, featureKey, decisionOperationFailed)
		return zero, classify.Classify(err)
	}

	charged, err := g.ledger.TryCharge(ctx, userID, featureKey)
	if err != nil {
		log.Error("charge failed after successful operation", zap.Error(err))
		g.recordDecision(ctx, featureKey, decisionOperationFailed)
		return zero, classify.Classify(err)
	}
	if !charged {
		// Lost the race for the last credit. The result was produced but is
		// withheld; the user keeps the credit they no longer have.
		g.recordDecision(ctx, featureKey, decisionQuotaExceeded)
		return zero, classify.New(classify.KindQuotaExceeded, nil)
	}

	// The ledger service records the charge counter; the gateway only owns
	// the decision metric.
	g.recordDecision(ctx, featureKey, decisionDelivered)
	return result, nil
}

func (g *Gateway) recordDecision(ctx context.Context, featureKey, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordGatewayDecision(ctx, featureKey, outcome)
	}
}

var Module = fx.Module("gateway",
	fx.Provide(New),
)
