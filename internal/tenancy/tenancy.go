// Package tenancy carries the authenticated principal through a request
// context and answers which tenant, if any, the caller is scoped to.
package tenancy

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// Method names how a principal authenticated.
type Method string

const (
	MethodSession Method = "Session"
	MethodAPIKey  Method = "ApiKey"
)

// Principal is the identity resolved from a request credential. TenantID is
// the raw tenant claim; an empty claim marks a platform-level identity.
type Principal struct {
	Subject          string   `json:"sub"`
	Name             string   `json:"name,omitempty"`
	Email            string   `json:"email,omitempty"`
	TenantID         string   `json:"tenant_id,omitempty"`
	TenantName       string   `json:"tenant_name,omitempty"`
	TenantDomain     string   `json:"tenant_domain,omitempty"`
	Roles            []string `json:"roles,omitempty"`
	Method           Method   `json:"auth_method"`
	RateLimitPerHour int      `json:"-"`
}

func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

type contextKey string

const (
	principalKey contextKey = "principal"
	systemKey    contextKey = "system_scope"
)

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached to ctx. Anonymous requests have
// none.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// WithSystemScope marks ctx as an internal operation that may see every
// tenant's rows. It is never derived from a request credential.
func WithSystemScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemKey, true)
}

func IsSystem(ctx context.Context) bool {
	v, _ := ctx.Value(systemKey).(bool)
	return v
}

// CurrentTenantID returns the caller's tenant when a tenant claim is present
// and parses as a UUID.
func CurrentTenantID(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.TenantID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(p.TenantID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// IsSuperAdmin is false for anonymous callers. An authenticated caller is a
// super-admin when it holds the SuperAdmin role or carries no tenant claim.
func IsSuperAdmin(ctx context.Context) bool {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return false
	}
	return p.HasRole(models.RoleSuperAdmin) || p.TenantID == ""
}

// IsTenantAdmin reports whether the caller administers tenantID, either as a
// super-admin or as a TenantAdmin of that tenant.
func IsTenantAdmin(ctx context.Context, tenantID uuid.UUID) bool {
	if IsSuperAdmin(ctx) {
		return true
	}
	p, _ := PrincipalFrom(ctx)
	current, ok := CurrentTenantID(ctx)
	return ok && current == tenantID && p.HasRole(models.RoleTenantAdmin)
}

// Scope is the isolation input the store applies to tenant-scoped queries.
type Scope struct {
	TenantID   uuid.UUID
	HasTenant  bool
	SuperAdmin bool
	System     bool
}

// Unrestricted reports whether the scope sees every tenant.
func (s Scope) Unrestricted() bool {
	return s.SuperAdmin || s.System
}

// ScopeFrom resolves the isolation scope of ctx.
func ScopeFrom(ctx context.Context) Scope {
	id, ok := CurrentTenantID(ctx)
	return Scope{
		TenantID:   id,
		HasTenant:  ok,
		SuperAdmin: IsSuperAdmin(ctx),
		System:     IsSystem(ctx),
	}
}
