package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/apikey"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

const (
	APIKeyHeader = "X-API-Key"

	touchTimeout = 5 * time.Second
)

// TenantKeyStore is the slice of the store the API-key strategy needs.
type TenantKeyStore interface {
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, error)
	TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// APIKeyAuthenticator authenticates machine clients by the X-API-Key header.
type APIKeyAuthenticator struct {
	store    TenantKeyStore
	now      func() time.Time
	inflight sync.WaitGroup
}

func NewAPIKeyAuthenticator(s TenantKeyStore) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{store: s, now: time.Now}
}

func (a *APIKeyAuthenticator) Authenticate(r *http.Request) Result {
	key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if key == "" {
		return noOpinion()
	}

	if !apikey.IsValidFormat(key) {
		slog.Warn("api key rejected", "reason", "invalid format", "key", apikey.Redact(key),
			"remote_addr", r.RemoteAddr)
		return failure("invalid format")
	}

	hash, err := apikey.Hash(key)
	if err != nil {
		return failure("invalid format")
	}

	tenant, err := a.store.GetTenantByAPIKeyHash(r.Context(), hash)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("api key rejected", "reason", "invalid key", "key", apikey.Redact(key),
			"remote_addr", r.RemoteAddr)
		return failure("invalid key")
	}
	if err != nil {
		slog.Error("api key lookup failed", "error", err)
		return failure("authentication error")
	}

	if tenant.Revoked {
		slog.Warn("api key rejected", "reason", "revoked", "tenant_id", tenant.ID)
		return failure("revoked")
	}
	now := a.now()
	if tenant.APIKey.Expired(now) {
		slog.Warn("api key rejected", "reason", "expired", "tenant_id", tenant.ID)
		return failure("expired")
	}

	a.touch(tenant.ID, now)

	return success(&tenancy.Principal{
		Subject:          tenant.ID.String(),
		Name:             tenant.Name,
		TenantID:         tenant.ID.String(),
		TenantName:       tenant.Name,
		TenantDomain:     tenant.Domain,
		Method:           tenancy.MethodAPIKey,
		RateLimitPerHour: tenant.RateLimitPerHour,
	})
}

// touch records key use without holding up the request. It runs on its own
// context so a finished request cannot cancel it, and never fails the caller.
func (a *APIKeyAuthenticator) touch(tenantID uuid.UUID, at time.Time) {
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic updating api key last used", "tenant_id", tenantID, "panic", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(tenancy.WithSystemScope(context.Background()), touchTimeout)
		defer cancel()
		if err := a.store.TouchAPIKeyLastUsed(ctx, tenantID, at); err != nil {
			slog.Warn("update api key last used failed", "tenant_id", tenantID, "error", err)
		}
	}()
}

// Wait blocks until pending last-used updates finish.
func (a *APIKeyAuthenticator) Wait() {
	a.inflight.Wait()
}
