package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/quotagate/internal/clock"
)

func setupSnapshotCache(t *testing.T) *SnapshotCache {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSnapshotCache(client, zap.NewNop())
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	snapshotCache := setupSnapshotCache(t)
	ctx := context.Background()

	snapshot := Snapshot{
		UserID:           "user-1",
		CreditsRemaining: 12,
		CheckedAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	snapshotCache.Set(ctx, snapshot)

	cached, ok := snapshotCache.Get(ctx, "user-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if cached.CreditsRemaining != 12 || cached.UserID != "user-1" {
		t.Fatalf("unexpected cached snapshot: %+v", cached)
	}
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	snapshotCache := setupSnapshotCache(t)
	ctx := context.Background()

	snapshotCache.Set(ctx, Snapshot{UserID: "user-1", CreditsRemaining: 3})
	snapshotCache.Invalidate(ctx, "user-1")

	if _, ok := snapshotCache.Get(ctx, "user-1"); ok {
		t.Fatal("expected cache miss after invalidation")
	}
}

func TestResolveCachedServesStaleUntilInvalidated(t *testing.T) {
	snapshotCache := setupSnapshotCache(t)
	ledger := &ledgerStub{balance: 5}
	resolver := NewResolver(Params{
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		SubSvc: &subscriptionStub{},
		Ledger: ledger,
		Cache:  snapshotCache,
	})
	ctx := context.Background()

	first, err := resolver.ResolveCached(ctx, "user-1")
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if first.CreditsRemaining != 5 {
		t.Fatalf("expected 5 credits, got %d", first.CreditsRemaining)
	}

	// The balance moved underneath; the cached snapshot is knowingly stale.
	ledger.balance = 4
	second, err := resolver.ResolveCached(ctx, "user-1")
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if second.CreditsRemaining != 5 {
		t.Fatalf("expected stale cached value 5, got %d", second.CreditsRemaining)
	}

	resolver.Invalidate(ctx, "user-1")
	third, err := resolver.ResolveCached(ctx, "user-1")
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if third.CreditsRemaining != 4 {
		t.Fatalf("expected fresh value 4 after invalidation, got %d", third.CreditsRemaining)
	}
}
