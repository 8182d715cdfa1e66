package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
)

// GetPrincipal returns the authenticated principal of r.
func GetPrincipal(r *http.Request) (*tenancy.Principal, bool) {
	return tenancy.PrincipalFrom(r.Context())
}

// GetTenantID returns the caller's tenant, if the principal carries one.
func GetTenantID(r *http.Request) (uuid.UUID, bool) {
	return tenancy.CurrentTenantID(r.Context())
}
