package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/cache"
	"github.com/kiranshivaraju/tenantcore/internal/metrics"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
)

// RateLimit enforces each tenant's hourly API-key request allowance with a
// fixed window counter in Redis.
type RateLimit struct {
	cache cache.Cache
	now   func() time.Time
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache) *RateLimit {
	return &RateLimit{cache: c, now: time.Now}
}

// Limit counts requests made with an API key. Session requests and tenants
// with a zero allowance are not limited.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := tenancy.PrincipalFrom(r.Context())
		if !ok || p.Method != tenancy.MethodAPIKey || p.RateLimitPerHour <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, ok := tenancy.CurrentTenantID(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now().UTC()
		reset := now.Truncate(time.Hour).Add(time.Hour)

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(tenantID, now), time.Hour)
		if err != nil {
			// Fail open.
			slog.Warn("rate limit check failed", "tenant_id", tenantID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		limit := p.RateLimitPerHour
		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(limit) {
			metrics.RateLimitedTotal.Inc()
			slog.Warn("rate limit exceeded", "tenant_id", tenantID, "limit", limit)
			w.Header().Set("Retry-After", strconv.Itoa(int(reset.Sub(now).Seconds())+1))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
