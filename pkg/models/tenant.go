package models

import "github.com/google/uuid"

// Tenant represents an organization. Users, memberships and subscriptions all
// belong to a tenant.
type Tenant struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	Name           string    `db:"name"            json:"name"`
	Domain         string    `db:"domain"          json:"domain"`
	IsActive       bool      `db:"is_active"       json:"is_active"`
	BillingEmail   string    `db:"billing_email"   json:"billing_email,omitempty"`
	BillingAddress string    `db:"billing_address" json:"billing_address,omitempty"`
	APIKey
	Audit
}
