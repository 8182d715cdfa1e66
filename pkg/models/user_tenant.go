package models

import "github.com/google/uuid"

// UserTenant links a user to a tenant with a role inside that tenant.
type UserTenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	TenantID  uuid.UUID `db:"tenant_id"  json:"tenant_id"`
	Role      string    `db:"role"       json:"role"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	IsDefault bool      `db:"is_default" json:"is_default"`
	Audit
}
