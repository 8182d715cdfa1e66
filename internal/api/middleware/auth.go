package middleware

import (
	"net/http"

	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
	"github.com/kiranshivaraju/tenantcore/internal/metrics"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// Auth resolves the request principal and guards routes by role.
type Auth struct {
	authenticator auth.Authenticator
}

// NewAuth creates a new Auth middleware around the credential strategies.
func NewAuth(a auth.Authenticator) *Auth {
	return &Auth{authenticator: a}
}

// Authenticate runs the authenticator and attaches the principal to the
// request context. A rejected credential ends the request with 401; a request
// without any credential continues anonymously.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := a.authenticator.Authenticate(r)

		switch res.Outcome {
		case auth.Success:
			metrics.AuthResultsTotal.WithLabelValues(string(res.Principal.Method), res.Outcome.String()).Inc()
			r = r.WithContext(tenancy.WithPrincipal(r.Context(), res.Principal))
		case auth.Failure:
			metrics.AuthResultsTotal.WithLabelValues(string(credentialMethod(r)), res.Outcome.String()).Inc()
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Authentication failed: "+res.Reason, nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// credentialMethod guesses which strategy judged a rejected request. The
// session strategy runs first, so a bearer token takes precedence.
func credentialMethod(r *http.Request) tenancy.Method {
	if r.Header.Get("Authorization") == "" && r.Header.Get(auth.APIKeyHeader) != "" {
		return tenancy.MethodAPIKey
	}
	return tenancy.MethodSession
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenancy.PrincipalFrom(r.Context()); !ok {
			unauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSuperAdmin admits platform administrators only.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenancy.PrincipalFrom(r.Context()); !ok {
			unauthenticated(w)
			return
		}
		if !tenancy.IsSuperAdmin(r.Context()) {
			forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTenantAdmin admits super-admins and TenantAdmins. Whether the admin
// may act on a particular tenant is decided by the service.
func RequireTenantAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := tenancy.PrincipalFrom(r.Context())
		if !ok {
			unauthenticated(w)
			return
		}
		if !tenancy.IsSuperAdmin(r.Context()) && !p.HasRole(models.RoleTenantAdmin) {
			forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTenant admits callers that carry a tenant claim.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenancy.PrincipalFrom(r.Context()); !ok {
			unauthenticated(w)
			return
		}
		if _, ok := tenancy.CurrentTenantID(r.Context()); !ok {
			response.Error(w, http.StatusBadRequest, "TENANT_REQUIRED", "This endpoint requires a tenant context", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthenticated(w http.ResponseWriter) {
	response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Authentication required", nil)
}

func forbidden(w http.ResponseWriter) {
	response.Error(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
}
