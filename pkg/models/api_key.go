package models

import "time"

// DefaultRateLimitPerHour applies to newly provisioned tenants.
const DefaultRateLimitPerHour = 1000

// APIKey is the credential state a tenant carries for machine clients.
// Only the SHA-256 hash and the public prefix are stored; the plaintext key is
// returned once, at generation time.
type APIKey struct {
	Hash             string     `db:"api_key_hash"            json:"-"`
	Prefix           string     `db:"api_key_prefix"          json:"api_key_prefix,omitempty"`
	CreatedAt        *time.Time `db:"api_key_created_at"      json:"api_key_created_at,omitempty"`
	LastUsedAt       *time.Time `db:"api_key_last_used_at"    json:"api_key_last_used_at,omitempty"`
	ExpiresAt        *time.Time `db:"api_key_expires_at"      json:"api_key_expires_at,omitempty"`
	Revoked          bool       `db:"api_key_revoked"         json:"api_key_revoked"`
	RateLimitPerHour int        `db:"api_rate_limit_per_hour" json:"api_rate_limit_per_hour"`
}

// Expired reports whether an expiry is set and has passed.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
