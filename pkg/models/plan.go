package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Plan is a subscription plan. Prices are integer cents.
type Plan struct {
	ID                   uuid.UUID `db:"id"                     json:"id"`
	Name                 string    `db:"name"                   json:"name"`
	Description          string    `db:"description"            json:"description"`
	PricePerMonthCents   int64     `db:"price_per_month_cents"  json:"price_per_month_cents"`
	MaxUsers             int       `db:"max_users"              json:"max_users"`
	MaxStorageGB         int       `db:"max_storage_gb"         json:"max_storage_gb"`
	HasAPIAccess         bool      `db:"has_api_access"         json:"has_api_access"`
	HasAdvancedReporting bool      `db:"has_advanced_reporting" json:"has_advanced_reporting"`
	IsActive             bool      `db:"is_active"              json:"is_active"`
	Audit
}

// PriceString renders the monthly price as a decimal amount, e.g. "29.99".
func (p *Plan) PriceString() string {
	return fmt.Sprintf("%d.%02d", p.PricePerMonthCents/100, p.PricePerMonthCents%100)
}
