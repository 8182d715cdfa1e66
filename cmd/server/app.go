package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/tenantcore/internal/api"
	"github.com/kiranshivaraju/tenantcore/internal/api/handler"
	mw "github.com/kiranshivaraju/tenantcore/internal/api/middleware"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
	"github.com/kiranshivaraju/tenantcore/internal/billing"
	"github.com/kiranshivaraju/tenantcore/internal/cache"
	"github.com/kiranshivaraju/tenantcore/internal/config"
	"github.com/kiranshivaraju/tenantcore/internal/renewal"
	"github.com/kiranshivaraju/tenantcore/internal/service"
	"github.com/kiranshivaraju/tenantcore/internal/store"
)

// app holds the long-lived components shared by every command.
type app struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	redis *cache.RedisCache

	store    store.Store
	cache    cache.Cache
	gateway  billing.PaymentGateway
	notifier billing.Notifier

	tokens  *auth.TokenIssuer
	keyAuth *auth.APIKeyAuthenticator

	subs     *service.SubscriptionService
	tenants  *service.TenantService
	plans    *service.PlanService
	users    *service.UserService
	checkout *service.CheckoutService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	a := &app{
		cfg:      cfg,
		pool:     pool,
		redis:    redisCache,
		store:    store.NewPostgresStore(pool),
		cache:    redisCache,
		gateway:  newGateway(cfg.Billing),
		notifier: billing.NewEmailNotifier(cfg.Email.From, billing.NewLogMailer(slog.Default())),
		tokens:   auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
	}
	a.keyAuth = auth.NewAPIKeyAuthenticator(a.store)

	a.subs = service.NewSubscriptionService(a.store)
	a.tenants = service.NewTenantService(a.store, a.subs, a.notifier, cfg.Server.IsProduction())
	a.plans = service.NewPlanService(a.store, a.cache)
	a.users = service.NewUserService(a.store)
	a.checkout = service.NewCheckoutService(a.store, a.gateway, cfg.Billing.Currency)

	return a, nil
}

func newGateway(cfg config.BillingConfig) billing.PaymentGateway {
	if cfg.Provider == "stripe" {
		slog.Info("payment gateway initialized", "provider", "stripe")
		return billing.NewStripeGateway(cfg.StripeAPIKey)
	}
	slog.Warn("payment gateway initialized with fake provider; no real charges are made")
	return billing.NewFakeGateway()
}

// prepareDatabase applies migrations, seeds the default plan catalogue and
// the bootstrap super-admin.
func (a *app) prepareDatabase(ctx context.Context) error {
	if err := store.RunMigrations(a.cfg.Database.URL, a.cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	seeded, err := store.SeedPlans(ctx, a.store)
	if err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	if seeded > 0 {
		slog.Info("default plans seeded", "count", seeded)
	}

	if a.cfg.Bootstrap.AdminEmail != "" {
		created, err := a.users.EnsureSuperAdmin(ctx, a.cfg.Bootstrap.AdminEmail, a.cfg.Bootstrap.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap super-admin: %w", err)
		}
		if created {
			slog.Info("bootstrap super-admin created", "email", a.cfg.Bootstrap.AdminEmail)
		}
	}
	return nil
}

func (a *app) sweeper() *renewal.Sweeper {
	return renewal.NewSweeper(a.subs, a.store, a.gateway, a.notifier, renewal.Config{
		Interval:       a.cfg.Renewal.Interval,
		ExpiringWithin: a.cfg.Renewal.ExpiringWithin,
		Currency:       a.cfg.Billing.Currency,
	})
}

func (a *app) dependencies() api.Dependencies {
	cookie := handler.SessionCookie{Name: a.cfg.Auth.CookieName, Secure: a.cfg.Server.IsProduction()}
	idp := auth.NewIdentityProvider(a.store, a.tokens)
	chain := auth.Chain{
		auth.NewSessionAuthenticator(a.tokens, a.cfg.Auth.CookieName).WithAccountCheck(a.store),
		a.keyAuth,
	}

	return api.Dependencies{
		Auth:      mw.NewAuth(chain),
		RateLimit: mw.NewRateLimit(a.cache),

		HealthHandler: healthHandler(a.store, a.cache),

		Login:  handler.NewLoginHandler(idp, cookie),
		Logout: handler.NewLogoutHandler(cookie),
		Me:     handler.NewMeHandler(),

		RegisterTenant:    handler.NewRegisterTenantHandler(a.tenants),
		ProvisionTenant:   handler.NewProvisionTenantHandler(a.tenants),
		ListTenants:       handler.NewListTenantsHandler(a.tenants),
		GetTenant:         handler.NewGetTenantHandler(a.tenants),
		GetTenantByDomain: handler.NewGetTenantByDomainHandler(a.tenants),
		UpdateTenant:      handler.NewUpdateTenantHandler(a.tenants),
		ActivateTenant:    handler.NewSetTenantActiveHandler(a.tenants, true),
		DeactivateTenant:  handler.NewSetTenantActiveHandler(a.tenants, false),
		DeleteTenant:      handler.NewDeleteTenantHandler(a.tenants),
		RegenerateAPIKey:  handler.NewRegenerateAPIKeyHandler(a.tenants),
		RevokeAPIKey:      handler.NewRevokeAPIKeyHandler(a.tenants),

		ListActivePlans: handler.NewListActivePlansHandler(a.plans),
		ListPlans:       handler.NewListPlansHandler(a.plans),
		GetPlan:         handler.NewGetPlanHandler(a.plans),
		CreatePlan:      handler.NewCreatePlanHandler(a.plans),
		UpdatePlan:      handler.NewUpdatePlanHandler(a.plans),
		DeactivatePlan:  handler.NewDeactivatePlanHandler(a.plans),

		CurrentSubscription:  handler.NewCurrentSubscriptionHandler(a.subs),
		GetSubscription:      handler.NewGetSubscriptionHandler(a.subs),
		TenantSubscriptions:  handler.NewTenantSubscriptionsHandler(a.subs),
		UpgradeSubscription:  handler.NewUpgradeSubscriptionHandler(a.subs),
		CancelSubscription:   handler.NewCancelSubscriptionHandler(a.subs),
		ExpiredSubscriptions: handler.NewExpiredSubscriptionsHandler(a.subs),
		Checkout:             handler.NewCheckoutHandler(a.checkout),

		ListUsers:  handler.NewListUsersHandler(a.users),
		CreateUser: handler.NewCreateUserHandler(a.users),
		GetUser:    handler.NewGetUserHandler(a.users),
		DeleteUser: handler.NewDeleteUserHandler(a.users),
	}
}

// Close waits for in-flight API key bookkeeping, then releases the cache and
// the database pool.
func (a *app) Close() {
	a.keyAuth.Wait()
	if err := a.redis.Close(); err != nil {
		slog.Warn("close redis", "error", err)
	}
	a.pool.Close()
}
