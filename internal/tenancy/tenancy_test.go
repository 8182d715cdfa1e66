package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestIsSuperAdmin(t *testing.T) {
	tenantID := uuid.New().String()

	tests := []struct {
		name      string
		principal *Principal
		want      bool
	}{
		{"anonymous", nil, false},
		{"super-admin role", &Principal{Subject: "u1", Roles: []string{models.RoleSuperAdmin}, TenantID: tenantID}, true},
		{"no tenant claim", &Principal{Subject: "u2", Roles: []string{models.RoleTenantUser}}, true},
		{"tenant user", &Principal{Subject: "u3", Roles: []string{models.RoleTenantUser}, TenantID: tenantID}, false},
		{"api key principal", &Principal{Subject: tenantID, TenantID: tenantID, Method: MethodAPIKey}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.principal != nil {
				ctx = WithPrincipal(ctx, tt.principal)
			}
			assert.Equal(t, tt.want, IsSuperAdmin(ctx))
		})
	}
}

func TestCurrentTenantID(t *testing.T) {
	id := uuid.New()

	got, ok := CurrentTenantID(WithPrincipal(context.Background(), &Principal{TenantID: id.String()}))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = CurrentTenantID(WithPrincipal(context.Background(), &Principal{TenantID: "not-a-uuid"}))
	assert.False(t, ok)

	_, ok = CurrentTenantID(context.Background())
	assert.False(t, ok)
}

func TestPrincipalFrom_NilPrincipal(t *testing.T) {
	ctx := WithPrincipal(context.Background(), nil)
	_, ok := PrincipalFrom(ctx)
	assert.False(t, ok)
	assert.False(t, IsSuperAdmin(ctx))
}

func TestIsTenantAdmin(t *testing.T) {
	own := uuid.New()
	other := uuid.New()
	admin := WithPrincipal(context.Background(), &Principal{
		TenantID: own.String(),
		Roles:    []string{models.RoleTenantAdmin},
	})
	user := WithPrincipal(context.Background(), &Principal{
		TenantID: own.String(),
		Roles:    []string{models.RoleTenantUser},
	})
	super := WithPrincipal(context.Background(), &Principal{Roles: []string{models.RoleSuperAdmin}})

	assert.True(t, IsTenantAdmin(admin, own))
	assert.False(t, IsTenantAdmin(admin, other))
	assert.False(t, IsTenantAdmin(user, own))
	assert.True(t, IsTenantAdmin(super, other))
	assert.False(t, IsTenantAdmin(context.Background(), own))
}

func TestScopeFrom(t *testing.T) {
	id := uuid.New()

	s := ScopeFrom(WithPrincipal(context.Background(), &Principal{TenantID: id.String()}))
	assert.Equal(t, Scope{TenantID: id, HasTenant: true}, s)
	assert.False(t, s.Unrestricted())

	s = ScopeFrom(context.Background())
	assert.False(t, s.HasTenant)
	assert.False(t, s.Unrestricted())

	s = ScopeFrom(WithSystemScope(context.Background()))
	assert.True(t, s.System)
	assert.True(t, s.Unrestricted())
}
