package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/quotagate/internal/cache"
	"github.com/smallbiznis/quotagate/internal/clock"
	"github.com/smallbiznis/quotagate/internal/config"
	"github.com/smallbiznis/quotagate/internal/entitlement"
	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
	featurerepository "github.com/smallbiznis/quotagate/internal/feature/repository"
	featureservice "github.com/smallbiznis/quotagate/internal/feature/service"
	"github.com/smallbiznis/quotagate/internal/gateway"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/quotagate/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/quotagate/internal/ledger/service"
	"github.com/smallbiznis/quotagate/internal/observability"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/quotagate/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/quotagate/internal/subscription/service"
	"github.com/smallbiznis/quotagate/internal/upstream"
)

// upstreamStub stands in for the generation backend. Tests swap the handler
// to exercise each failure mode.
type upstreamStub struct {
	mu      sync.Mutex
	handler http.HandlerFunc
}

func (u *upstreamStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	handler := u.handler
	u.mu.Unlock()
	if handler == nil {
		_ = json.NewEncoder(w).Encode(upstream.GenerateResponse{Content: "generated output", Model: "gen-1"})
		return
	}
	handler(w, r)
}

func (u *upstreamStub) respond(handler http.HandlerFunc) {
	u.mu.Lock()
	u.handler = handler
	u.mu.Unlock()
}

type testHarness struct {
	server   *Server
	upstream *upstreamStub
	features featuredomain.Service
	ledger   ledgerdomain.Service
}

func newHarness(t *testing.T, upstreamConfigured bool) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(
		&featuredomain.Feature{},
		&subscriptiondomain.Subscription{},
		&ledgerdomain.CreditBalance{},
		&ledgerdomain.UsageRecord{},
		&ledgerdomain.CreditGrant{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	featureSvc := featureservice.New(featureservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     featurerepository.Provide(),
		Registry: cache.NewRegistryCache(),
	})
	subscriptionSvc := subscriptionservice.New(subscriptionservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  subscriptionrepository.Provide(),
	})
	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  ledgerrepository.Provide(),
	})
	resolver := entitlement.NewResolver(entitlement.Params{
		Log:    log,
		Clock:  fake,
		SubSvc: subscriptionSvc,
		Ledger: ledgerSvc,
	})

	stub := &upstreamStub{}
	backend := httptest.NewServer(stub)
	t.Cleanup(backend.Close)

	upstreamCfg := config.UpstreamConfig{TimeoutSeconds: 5}
	if upstreamConfigured {
		upstreamCfg.BaseURL = backend.URL
		upstreamCfg.APIKey = "test-key"
	}
	client := upstream.NewClient(upstream.ClientParams{
		Cfg: config.Config{Upstream: upstreamCfg},
		Log: log,
	})

	gw := gateway.New(gateway.Params{
		Log:      log,
		Features: featureSvc,
		Resolver: resolver,
		Ledger:   ledgerSvc,
	})

	srv := NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{}),
		Cfg:             config.Config{},
		Log:             log,
		FeatureSvc:      featureSvc,
		SubscriptionSvc: subscriptionSvc,
		LedgerSvc:       ledgerSvc,
		Resolver:        resolver,
		Gateway:         gw,
		UpstreamClient:  client,
	})

	return &testHarness{
		server:   srv,
		upstream: stub,
		features: featureSvc,
		ledger:   ledgerSvc,
	}
}

func (h *testHarness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUser, userID)
	}

	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) createFeature(t *testing.T, key string, enabled bool) {
	t.Helper()
	_, err := h.features.Create(context.Background(), featuredomain.CreateRequest{
		Key:     key,
		Domain:  "generation",
		Name:    key,
		Enabled: &enabled,
	})
	if err != nil {
		t.Fatalf("create feature %s: %v", key, err)
	}
}

func (h *testHarness) grantCredits(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := h.ledger.Grant(context.Background(), ledgerdomain.GrantRequest{
		UserID: userID,
		Amount: amount,
		Source: "test",
	})
	if err != nil {
		t.Fatalf("grant credits: %v", err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestGenerateRequiresUser(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "", gin.H{"prompt": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateUnknownFeatureIsForbidden(t *testing.T) {
	h := newHarness(t, true)
	h.grantCredits(t, "user-1", 5)

	rec := h.do(t, http.MethodPost, "/v1/generate/no_such_feature", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload := decodeError(t, rec); payload.Type != "feature_disabled" {
		t.Fatalf("unexpected error type %q", payload.Type)
	}
}

func TestGenerateDisabledFeatureOutranksCredits(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", false)
	h.grantCredits(t, "user-1", 5)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateWithoutCreditsIsPaymentRequired(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", true)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeError(t, rec)
	if payload.Type != "quota_exceeded" || payload.RemediationHint == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGenerateChargesOnSuccess(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", true)
	h.grantCredits(t, "user-1", 1)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "containerize it"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data upstream.GenerateResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Data.Content != "generated output" {
		t.Fatalf("unexpected content %q", resp.Data.Content)
	}

	balance, err := h.ledger.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 after charge, got %d", balance)
	}

	// The only credit is spent; the next attempt is denied.
	rec = h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "again"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 on drained balance, got %d", rec.Code)
	}
}

func TestGenerateValidatesPrompt(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", true)
	h.grantCredits(t, "user-1", 1)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateUpstreamNotConfigured(t *testing.T) {
	h := newHarness(t, false)
	h.createFeature(t, "docker_generation", true)
	h.grantCredits(t, "user-1", 2)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeError(t, rec)
	if payload.Type != "service_not_configured" || payload.RemediationHint == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// The failure must not have consumed a credit.
	balance, err := h.ledger.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 2 {
		t.Fatalf("expected balance 2, got %d", balance)
	}
}

func TestGenerateUpstreamOutageIsRetryable(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", true)
	h.grantCredits(t, "user-1", 1)
	h.upstream.respond(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("temporarily unavailable"))
	})

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
}

func TestGetEntitlements(t *testing.T) {
	h := newHarness(t, true)
	h.grantCredits(t, "user-1", 7)

	rec := h.do(t, http.MethodGet, "/v1/entitlements", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data entitlement.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Data.CreditsRemaining != 7 || resp.Data.SubscriptionActive {
		t.Fatalf("unexpected snapshot: %+v", resp.Data)
	}
}

func TestSubscriberGeneratesWithoutCredits(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", true)

	rec := h.do(t, http.MethodPost, "/admin/subscriptions", "", gin.H{"user_id": "user-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating subscription, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for subscriber, got %d: %s", rec.Code, rec.Body.String())
	}

	balance, err := h.ledger.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("subscriber balance must stay untouched, got %d", balance)
	}
}

func TestAdminGrantFlow(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/admin/credits/grants", "", gin.H{
		"user_id": "user-1",
		"amount":  25,
		"source":  "purchase",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/admin/users/user-1/balance", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Balance int64 `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Data.Balance != 25 {
		t.Fatalf("expected balance 25, got %d", resp.Data.Balance)
	}
}

func TestAdminGrantValidation(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/admin/credits/grants", "", gin.H{
		"user_id": "user-1",
		"amount":  -5,
		"source":  "purchase",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListUsageAfterCharge(t *testing.T) {
	h := newHarness(t, true)
	h.createFeature(t, "docker_generation", true)
	h.grantCredits(t, "user-1", 2)

	rec := h.do(t, http.MethodPost, "/v1/generate/docker_generation", "user-1", gin.H{"prompt": "x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/v1/usage", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			UsageRecords []ledgerdomain.UsageRecordResponse `json:"usage_records"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp.Data.UsageRecords) != 1 {
		t.Fatalf("expected one usage record, got %d", len(resp.Data.UsageRecords))
	}
	if resp.Data.UsageRecords[0].Outcome != ledgerdomain.UsageOutcomeCharged {
		t.Fatalf("unexpected outcome %q", resp.Data.UsageRecords[0].Outcome)
	}
}

func TestFeatureAdminLifecycle(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/admin/features", "", gin.H{
		"key":    "Compose_Generation",
		"domain": "generation",
		"name":   "Compose Generation",
	})
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("expected created, got %d: %s", rec.Code, rec.Body.String())
	}

	enabled := false
	rec = h.do(t, http.MethodPatch, "/admin/features/compose_generation", "", gin.H{"enabled": &enabled})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	h.grantCredits(t, "user-1", 1)
	recGen := h.do(t, http.MethodPost, "/v1/generate/compose_generation", "user-1", gin.H{"prompt": "x"})
	if recGen.Code != http.StatusForbidden {
		t.Fatalf("disable must gate immediately, got %d: %s", recGen.Code, recGen.Body.String())
	}
}
