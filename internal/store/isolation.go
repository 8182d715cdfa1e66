package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
)

// Filter is the tenant isolation predicate for one caller scope. A row is
// visible when it is not soft-deleted and either the caller is unrestricted
// or the row belongs to the caller's tenant. A restricted caller without a
// tenant sees nothing.
type Filter struct {
	scope tenancy.Scope
}

// FilterFor resolves the filter for the caller in ctx.
func FilterFor(ctx context.Context) Filter {
	return Filter{scope: tenancy.ScopeFrom(ctx)}
}

// SQL renders the predicate against the columns of alias, appending its
// bind values to args. Placeholders are numbered from len(args).
func (f Filter) SQL(alias string, args []any) (string, []any) {
	deleted := column(alias, "deleted_at") + " IS NULL"
	switch {
	case f.scope.Unrestricted():
		return deleted, args
	case f.scope.HasTenant:
		args = append(args, f.scope.TenantID)
		return fmt.Sprintf("%s AND %s = $%d", deleted, column(alias, "tenant_id"), len(args)), args
	}
	return "FALSE", args
}

// Allows applies the same predicate to an in-memory row.
func (f Filter) Allows(tenantID *uuid.UUID, deletedAt *time.Time) bool {
	if deletedAt != nil {
		return false
	}
	if f.scope.Unrestricted() {
		return true
	}
	return f.scope.HasTenant && tenantID != nil && *tenantID == f.scope.TenantID
}

func notDeleted(alias string) string {
	return column(alias, "deleted_at") + " IS NULL"
}

func column(alias, name string) string {
	if alias == "" {
		return name
	}
	return alias + "." + name
}
