package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/tenantcore/internal/api/middleware"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	Login  http.HandlerFunc
	Logout http.HandlerFunc
	Me     http.HandlerFunc

	RegisterTenant    http.HandlerFunc
	ProvisionTenant   http.HandlerFunc
	ListTenants       http.HandlerFunc
	GetTenant         http.HandlerFunc
	GetTenantByDomain http.HandlerFunc
	UpdateTenant      http.HandlerFunc
	ActivateTenant    http.HandlerFunc
	DeactivateTenant  http.HandlerFunc
	DeleteTenant      http.HandlerFunc
	RegenerateAPIKey  http.HandlerFunc
	RevokeAPIKey      http.HandlerFunc

	ListActivePlans http.HandlerFunc
	ListPlans       http.HandlerFunc
	GetPlan         http.HandlerFunc
	CreatePlan      http.HandlerFunc
	UpdatePlan      http.HandlerFunc
	DeactivatePlan  http.HandlerFunc

	CurrentSubscription  http.HandlerFunc
	GetSubscription      http.HandlerFunc
	TenantSubscriptions  http.HandlerFunc
	UpgradeSubscription  http.HandlerFunc
	CancelSubscription   http.HandlerFunc
	ExpiredSubscriptions http.HandlerFunc
	Checkout             http.HandlerFunc

	ListUsers  http.HandlerFunc
	CreateUser http.HandlerFunc
	GetUser    http.HandlerFunc
	DeleteUser http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Metrics)
	r.Use(mw.Recovery)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		// Public routes. A presented credential is still validated.
		r.Post("/auth/login", orNotImplemented(deps.Login))
		r.Post("/auth/logout", orNotImplemented(deps.Logout))
		r.Post("/tenants/register", orNotImplemented(deps.RegisterTenant))
		r.Get("/tenants/domain/{domain}", orNotImplemented(deps.GetTenantByDomain))
		r.Get("/plans/active", orNotImplemented(deps.ListActivePlans))

		// Any authenticated caller
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth)

			r.Get("/auth/me", orNotImplemented(deps.Me))
			r.Get("/tenants/{id}", orNotImplemented(deps.GetTenant))
			r.Get("/plans/{id}", orNotImplemented(deps.GetPlan))
			r.Get("/subscriptions/{id}", orNotImplemented(deps.GetSubscription))
			r.Get("/subscriptions/tenant/{tenantID}", orNotImplemented(deps.TenantSubscriptions))

			r.With(mw.RequireTenant).Get("/subscriptions/current", orNotImplemented(deps.CurrentSubscription))
		})

		// Tenant admins and super-admins
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireTenantAdmin)

			r.Post("/tenants/{id}/api-key/regenerate", orNotImplemented(deps.RegenerateAPIKey))
			r.Post("/tenants/{id}/api-key/revoke", orNotImplemented(deps.RevokeAPIKey))

			r.Post("/subscriptions/upgrade", orNotImplemented(deps.UpgradeSubscription))
			r.Post("/subscriptions/checkout", orNotImplemented(deps.Checkout))
			r.Post("/subscriptions/{id}/cancel", orNotImplemented(deps.CancelSubscription))

			r.Get("/users", orNotImplemented(deps.ListUsers))
			r.Post("/users", orNotImplemented(deps.CreateUser))
			r.Get("/users/{id}", orNotImplemented(deps.GetUser))
			r.Delete("/users/{id}", orNotImplemented(deps.DeleteUser))
		})

		// Super-admin routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireSuperAdmin)

			r.Get("/tenants", orNotImplemented(deps.ListTenants))
			r.Post("/tenants", orNotImplemented(deps.ProvisionTenant))
			r.Put("/tenants/{id}", orNotImplemented(deps.UpdateTenant))
			r.Delete("/tenants/{id}", orNotImplemented(deps.DeleteTenant))
			r.Post("/tenants/{id}/activate", orNotImplemented(deps.ActivateTenant))
			r.Post("/tenants/{id}/deactivate", orNotImplemented(deps.DeactivateTenant))

			r.Get("/plans", orNotImplemented(deps.ListPlans))
			r.Post("/plans", orNotImplemented(deps.CreatePlan))
			r.Put("/plans/{id}", orNotImplemented(deps.UpdatePlan))
			r.Post("/plans/{id}/deactivate", orNotImplemented(deps.DeactivatePlan))

			r.Get("/subscriptions/expired", orNotImplemented(deps.ExpiredSubscriptions))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
