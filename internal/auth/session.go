package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

const accountCheckTimeout = 3 * time.Second

// SessionAccounts is the slice of the store used to confirm that a session's
// user and tenant still exist and are enabled.
type SessionAccounts interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// SessionAuthenticator accepts a session token from the Authorization header
// or the session cookie.
type SessionAuthenticator struct {
	tokens     *TokenIssuer
	cookieName string
	accounts   SessionAccounts
}

func NewSessionAuthenticator(tokens *TokenIssuer, cookieName string) *SessionAuthenticator {
	return &SessionAuthenticator{tokens: tokens, cookieName: cookieName}
}

// WithAccountCheck makes every session re-verify its user and tenant, so a
// deleted user or a deactivated tenant loses access before the token expires.
func (a *SessionAuthenticator) WithAccountCheck(accounts SessionAccounts) *SessionAuthenticator {
	a.accounts = accounts
	return a
}

func (a *SessionAuthenticator) Authenticate(r *http.Request) Result {
	raw := extractBearerToken(r)
	if raw == "" && a.cookieName != "" {
		if c, err := r.Cookie(a.cookieName); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return noOpinion()
	}

	p, err := a.tokens.Parse(raw)
	if err != nil {
		slog.Debug("session token rejected", "error", err, "path", r.URL.Path)
		return failure("invalid token")
	}
	if a.accounts != nil {
		if reason := a.checkAccount(r.Context(), p); reason != "" {
			slog.Warn("session rejected", "subject", p.Subject, "tenant_id", p.TenantID, "reason", reason)
			return failure(reason)
		}
	}
	return success(p)
}

func (a *SessionAuthenticator) checkAccount(ctx context.Context, p *tenancy.Principal) string {
	ctx, cancel := context.WithTimeout(tenancy.WithSystemScope(ctx), accountCheckTimeout)
	defer cancel()

	userID, err := uuid.Parse(p.Subject)
	if err != nil {
		return "invalid token"
	}
	if _, err := a.accounts.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "account disabled"
		}
		slog.Error("session account lookup failed", "error", err)
		return "authentication error"
	}

	if p.TenantID == "" {
		return ""
	}
	tenantID, err := uuid.Parse(p.TenantID)
	if err != nil {
		return "invalid token"
	}
	t, err := a.accounts.GetTenant(ctx, tenantID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "tenant inactive"
	case err != nil:
		slog.Error("session tenant lookup failed", "error", err)
		return "authentication error"
	case !t.IsActive:
		return "tenant inactive"
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
