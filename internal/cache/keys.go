package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RateLimitKey names the API-key request counter of tenantID for the hourly
// window containing at.
func RateLimitKey(tenantID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("ratelimit:apikey:%s:%d", tenantID, at.UTC().Truncate(time.Hour).Unix())
}

// ActivePlansKey holds the JSON-encoded list of plans open for selection.
func ActivePlansKey() string {
	return "plans:active"
}
