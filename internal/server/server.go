package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/quotagate/internal/config"
	"github.com/smallbiznis/quotagate/internal/entitlement"
	"github.com/smallbiznis/quotagate/internal/feature"
	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
	"github.com/smallbiznis/quotagate/internal/gateway"
	"github.com/smallbiznis/quotagate/internal/ledger"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	"github.com/smallbiznis/quotagate/internal/observability"
	obsmiddleware "github.com/smallbiznis/quotagate/internal/observability/logger"
	"github.com/smallbiznis/quotagate/internal/ratelimit"
	"github.com/smallbiznis/quotagate/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
	"github.com/smallbiznis/quotagate/internal/upstream"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	feature.Module,
	subscription.Module,
	ledger.Module,
	entitlement.Module,
	upstream.Module,
	gateway.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	featureSvc      featuredomain.Service
	subscriptionSvc subscriptiondomain.Service
	ledgerSvc       ledgerdomain.Service
	resolver        *entitlement.Resolver
	gateway         *gateway.Gateway
	upstreamClient  *upstream.Client
	generateLimiter *ratelimit.GenerateLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	FeatureSvc      featuredomain.Service
	SubscriptionSvc subscriptiondomain.Service
	LedgerSvc       ledgerdomain.Service
	Resolver        *entitlement.Resolver
	Gateway         *gateway.Gateway
	UpstreamClient  *upstream.Client
	GenerateLimiter *ratelimit.GenerateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		featureSvc:      p.FeatureSvc,
		subscriptionSvc: p.SubscriptionSvc,
		ledgerSvc:       p.LedgerSvc,
		resolver:        p.Resolver,
		gateway:         p.Gateway,
		upstreamClient:  p.UpstreamClient,
		generateLimiter: p.GenerateLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.UserRequired())

	v1.POST("/generate/:feature", s.GenerateRateLimit(), s.Generate)
	v1.GET("/entitlements", s.GetEntitlements)
	v1.GET("/usage", s.ListUsage)
	v1.GET("/features", s.ListFeatures)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	// -------- Features --------
	admin.GET("/features", s.AdminListFeatures)
	admin.POST("/features", s.CreateFeature)
	admin.PATCH("/features/:key", s.UpdateFeature)
	admin.POST("/features/:key/archive", s.ArchiveFeature)

	// -------- Credits --------
	admin.POST("/credits/grants", s.GrantCredits)
	admin.GET("/users/:id/balance", s.GetUserBalance)
	admin.GET("/users/:id/usage", s.AdminListUsage)
	admin.POST("/users/:id/refunds", s.RefundCredit)

	// -------- Subscriptions --------
	admin.GET("/users/:id/subscriptions", s.ListUserSubscriptions)
	admin.POST("/subscriptions", s.CreateSubscription)
	admin.POST("/subscriptions/:id/cancel", s.CancelSubscription)
}
