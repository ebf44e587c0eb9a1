package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/quotagate/internal/cache"
	"github.com/smallbiznis/quotagate/internal/feature/domain"
	"github.com/smallbiznis/quotagate/internal/feature/repository"
)

func setupFeatureService(t *testing.T) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&domain.Feature{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Registry: cache.NewRegistryCache(),
	})
}

func TestIsEnabledUnknownKeyIsDisabled(t *testing.T) {
	svc := setupFeatureService(t)

	if svc.IsEnabled(context.Background(), "no_such_feature") {
		t.Fatal("unknown feature key must resolve disabled")
	}
}

func TestCreateNormalizesKeyAndDefaultsEnabled(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, domain.CreateRequest{
		Key:    "  Docker_Generation ",
		Domain: "generation",
		Name:   "Dockerfile Generation",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Key != "docker_generation" {
		t.Fatalf("expected lowercased key, got %q", resp.Key)
	}
	if !resp.Enabled {
		t.Fatal("expected feature enabled by default")
	}

	if !svc.IsEnabled(ctx, "docker_generation") {
		t.Fatal("expected created feature to gate enabled")
	}
}

func TestCreateComingSoonForcesDisabled(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	soon := "Launching next quarter."
	enabled := true
	resp, err := svc.Create(ctx, domain.CreateRequest{
		Key:        "cost_report",
		Domain:     "insights",
		Name:       "Cost Report",
		Enabled:    &enabled,
		ComingSoon: &soon,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Enabled {
		t.Fatal("coming-soon feature must not be enabled")
	}
	if svc.IsEnabled(ctx, "cost_report") {
		t.Fatal("coming-soon feature must not gate enabled")
	}
}

func TestMixedCaseKeyFindsStoredFeature(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{
		Key:    "docker_generation",
		Domain: "generation",
		Name:   "Dockerfile Generation",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Describe(ctx, " Docker_Generation "); err != nil {
		t.Fatalf("describe mixed-case key: %v", err)
	}

	disabled := false
	if _, err := svc.Update(ctx, domain.UpdateRequest{Key: "Docker_Generation", Enabled: &disabled}); err != nil {
		t.Fatalf("update mixed-case key: %v", err)
	}
	if svc.IsEnabled(ctx, "docker_generation") {
		t.Fatal("expected the stored feature to be disabled")
	}

	if _, err := svc.Archive(ctx, "DOCKER_GENERATION"); err != nil {
		t.Fatalf("archive mixed-case key: %v", err)
	}
}

func TestCreateDuplicateKey(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	req := domain.CreateRequest{Key: "ai_assistance", Domain: "assistant", Name: "AI Assistance"}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, req); err != domain.ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUpdateTogglesGateImmediately(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{
		Key:    "ci_pipeline",
		Domain: "generation",
		Name:   "CI Pipeline Generation",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Warm the registry cache, then flip the flag. The update must
	// invalidate the cached entry, not serve the stale one.
	if !svc.IsEnabled(ctx, "ci_pipeline") {
		t.Fatal("expected feature enabled")
	}

	disabled := false
	if _, err := svc.Update(ctx, domain.UpdateRequest{Key: "ci_pipeline", Enabled: &disabled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if svc.IsEnabled(ctx, "ci_pipeline") {
		t.Fatal("expected disabled feature to gate closed immediately")
	}
}

func TestArchiveDisables(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{
		Key:    "compose_generation",
		Domain: "generation",
		Name:   "Compose File Generation",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.Archive(ctx, "compose_generation")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if resp.Enabled {
		t.Fatal("archived feature must be disabled")
	}
	if svc.IsEnabled(ctx, "compose_generation") {
		t.Fatal("archived feature must gate closed")
	}
}

func TestListFiltersByDomainAndEnabled(t *testing.T) {
	svc := setupFeatureService(t)
	ctx := context.Background()

	for _, seedReq := range []domain.CreateRequest{
		{Key: "docker_generation", Domain: "generation", Name: "Dockerfile Generation"},
		{Key: "ci_pipeline", Domain: "generation", Name: "CI Pipeline Generation"},
		{Key: "ai_assistance", Domain: "assistant", Name: "AI Assistance"},
	} {
		if _, err := svc.Create(ctx, seedReq); err != nil {
			t.Fatalf("create %s: %v", seedReq.Key, err)
		}
	}
	if _, err := svc.Archive(ctx, "ci_pipeline"); err != nil {
		t.Fatalf("archive: %v", err)
	}

	enabled := true
	items, err := svc.List(ctx, domain.ListRequest{Domain: "generation", Enabled: &enabled})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Key != "docker_generation" {
		t.Fatalf("expected only docker_generation, got %+v", items)
	}
}
