package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/quotagate/internal/config"
)

// GenerateLimiter throttles gated generation calls per user. It protects
// the upstream from burst abuse; credit accounting stays with the ledger.
type GenerateLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
	rate   float64
	burst  int
}

type GenerateLimiterParams struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func NewGenerateLimiter(p GenerateLimiterParams) *GenerateLimiter {
	if p.Redis == nil {
		return nil
	}
	rate := p.Cfg.RateLimit.GenerateRate
	if rate <= 0 {
		rate = 1
	}
	burst := p.Cfg.RateLimit.GenerateBurst
	if burst <= 0 {
		burst = 10
	}
	return &GenerateLimiter{
		bucket: NewTokenBucket(p.Redis),
		log:    p.Log.Named("ratelimit.generate"),
		rate:   rate,
		burst:  burst,
	}
}

// Allow reports whether the user may start another generation now. Limiter
// outages fail open: throttling is protective, not billing-critical.
func (l *GenerateLimiter) Allow(ctx context.Context, userID string) (*Result, error) {
	if l == nil || l.bucket == nil {
		return &Result{Allowed: true}, nil
	}

	res, err := l.bucket.Allow(ctx, "quotagate:ratelimit:generate:"+userID, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing", zap.String("user_id", userID), zap.Error(err))
		return &Result{Allowed: true}, nil
	}
	if res.RetryAfter > 0 && res.RetryAfter < time.Second {
		res.RetryAfter = time.Second
	}
	return res, nil
}
