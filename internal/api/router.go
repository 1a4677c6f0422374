package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/accounts"
	"github.com/mwhitfield/ledgerline/internal/app"
	iauth "github.com/mwhitfield/ledgerline/internal/auth"
	"github.com/mwhitfield/ledgerline/internal/features"
	"github.com/mwhitfield/ledgerline/internal/handlers"
	"github.com/mwhitfield/ledgerline/internal/middleware"
	"github.com/mwhitfield/ledgerline/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all API
// routes. The flag service is injected rather than built here so background
// jobs and the admin invalidation endpoints act on the same caches.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, flags *features.FlagService, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if flags == nil {
		return nil, fmt.Errorf("flag service must be provided")
	}

	// Feature plumbing. One provider feeds the API gate, the service guard
	// and the repository gate so a requirement edit surfaces at every layer.
	store, err := features.NewGormStore(db)
	if err != nil {
		return nil, err
	}
	provider, err := features.NewStoreProvider(store, cfg.Features.ProviderOptions()...)
	if err != nil {
		return nil, err
	}
	gate, err := features.NewAPIGate(provider, flags, cfg.Features.APIGateOptions()...)
	if err != nil {
		return nil, err
	}
	guard, err := features.NewServiceGuard(provider, flags, cfg.Features.ServiceGuardOptions()...)
	if err != nil {
		return nil, err
	}

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}

	registry := accounts.NewDefaultRegistry()
	extensions, err := accounts.DefaultExtensions([]byte(cfg.Accounts.EncryptionKey))
	if err != nil {
		return nil, err
	}
	repo, err := accounts.NewGatedRepository(db, registry, provider, flags,
		accounts.WithRepository(accounts.WithExtensions(extensions)),
		accounts.WithGuard(cfg.Features.RepositoryGuardOptions()...))
	if err != nil {
		return nil, err
	}

	accountSvc, err := services.NewAccountService(repo, registry, flags, auditSvc)
	if err != nil {
		return nil, err
	}
	gatedAccounts, err := services.NewGatedAccountService(accountSvc, guard)
	if err != nil {
		return nil, err
	}

	billSvc, err := services.NewBillService(db, flags, auditSvc)
	if err != nil {
		return nil, err
	}
	gatedBills, err := services.NewGatedBillService(billSvc, guard)
	if err != nil {
		return nil, err
	}

	incomeSvc, err := services.NewIncomeService(db, auditSvc)
	if err != nil {
		return nil, err
	}
	paymentSvc, err := services.NewPaymentService(db)
	if err != nil {
		return nil, err
	}
	userSvc, err := services.NewUserService(db, auditSvc,
		services.WithLockoutPolicy(cfg.Auth.Local.LockoutThreshold, cfg.Auth.Local.LockoutDuration))
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	if cfg.Server.RateLimit.Enabled {
		if rateStore != nil {
			r.Use(middleware.RateLimitWithStore(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
		} else {
			r.Use(middleware.RateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
		}
	}

	registerHealthRoutes(r, cfg, db)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Protected routes. The feature gate runs after authentication so
	// unauthenticated probes cannot map out which features are enabled.
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))
	api.Use(middleware.FeatureGate(gate))

	registerAuthRoutes(r, api, handlers.NewAuthHandler(userSvc, jwt))

	admin := api.Group("")
	admin.Use(middleware.RequireAdmin())

	registerAccountRoutes(api, handlers.NewAccountHandler(gatedAccounts))
	registerBillRoutes(api, handlers.NewBillHandler(gatedBills))
	registerIncomeRoutes(api, handlers.NewIncomeHandler(incomeSvc))
	registerPaymentRoutes(api, handlers.NewPaymentHandler(paymentSvc))
	registerUserRoutes(api, admin, handlers.NewUserHandler(userSvc))

	auditHandler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return nil, err
	}
	registerAuditRoutes(admin, auditHandler)

	featureHandler := handlers.NewFeatureHandler(flags, store, provider, gate,
		services.NewFlagAuditSink(auditSvc), gatedAccounts, gatedBills, repo)
	registerFeatureRoutes(admin, featureHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
