package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/apikey"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/store/mock"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- Mock Store ---

type mockKeyStore struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	err     error
	touched []uuid.UUID
	touchFn func()
}

func (m *mockKeyStore) GetTenantByAPIKeyHash(_ context.Context, hash string) (*models.Tenant, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tenants[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (m *mockKeyStore) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID, _ time.Time) error {
	if !tenancy.IsSystem(ctx) {
		return errors.New("touch outside system scope")
	}
	if m.touchFn != nil {
		m.touchFn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, id)
	return nil
}

func (m *mockKeyStore) touchedIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.touched...)
}

func newTenantWithKey(t *testing.T) (*models.Tenant, string) {
	t.Helper()
	key, hash, prefix, err := apikey.Generate(true)
	require.NoError(t, err)
	return &models.Tenant{
		ID:       uuid.New(),
		Name:     "Acme",
		Domain:   "acme",
		IsActive: true,
		APIKey:   models.APIKey{Hash: hash, Prefix: prefix, RateLimitPerHour: 500},
	}, key
}

func requestWithKey(key string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/tenants", nil)
	if key != "" {
		r.Header.Set(auth.APIKeyHeader, key)
	}
	return r
}

// --- API key strategy ---

func TestAPIKey_NoHeader(t *testing.T) {
	a := auth.NewAPIKeyAuthenticator(&mockKeyStore{})
	res := a.Authenticate(requestWithKey(""))
	assert.Equal(t, auth.NoOpinion, res.Outcome)
}

func TestAPIKey_InvalidFormat(t *testing.T) {
	a := auth.NewAPIKeyAuthenticator(&mockKeyStore{})
	res := a.Authenticate(requestWithKey("tc_live_short"))
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "invalid format", res.Reason)
}

func TestAPIKey_UnknownKey(t *testing.T) {
	_, key := newTenantWithKey(t)
	a := auth.NewAPIKeyAuthenticator(&mockKeyStore{tenants: map[string]*models.Tenant{}})

	res := a.Authenticate(requestWithKey(key))
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "invalid key", res.Reason)
}

func TestAPIKey_Revoked(t *testing.T) {
	tenant, key := newTenantWithKey(t)
	tenant.Revoked = true
	ms := &mockKeyStore{tenants: map[string]*models.Tenant{tenant.Hash: tenant}}
	a := auth.NewAPIKeyAuthenticator(ms)

	res := a.Authenticate(requestWithKey(key))
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "revoked", res.Reason)
	assert.Nil(t, res.Principal)

	a.Wait()
	assert.Empty(t, ms.touchedIDs())
}

func TestAPIKey_Expired(t *testing.T) {
	tenant, key := newTenantWithKey(t)
	past := time.Now().Add(-time.Minute)
	tenant.ExpiresAt = &past
	a := auth.NewAPIKeyAuthenticator(&mockKeyStore{tenants: map[string]*models.Tenant{tenant.Hash: tenant}})

	res := a.Authenticate(requestWithKey(key))
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "expired", res.Reason)
}

func TestAPIKey_StoreError(t *testing.T) {
	_, key := newTenantWithKey(t)
	a := auth.NewAPIKeyAuthenticator(&mockKeyStore{err: errors.New("connection refused")})

	res := a.Authenticate(requestWithKey(key))
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "authentication error", res.Reason)
}

func TestAPIKey_Success(t *testing.T) {
	tenant, key := newTenantWithKey(t)
	future := time.Now().Add(time.Hour)
	tenant.ExpiresAt = &future
	ms := &mockKeyStore{tenants: map[string]*models.Tenant{tenant.Hash: tenant}}
	a := auth.NewAPIKeyAuthenticator(ms)

	res := a.Authenticate(requestWithKey(key))
	require.Equal(t, auth.Success, res.Outcome)

	p := res.Principal
	assert.Equal(t, tenant.ID.String(), p.Subject)
	assert.Equal(t, tenant.ID.String(), p.TenantID)
	assert.Equal(t, "Acme", p.TenantName)
	assert.Equal(t, "acme", p.TenantDomain)
	assert.Equal(t, tenancy.MethodAPIKey, p.Method)
	assert.Equal(t, 500, p.RateLimitPerHour)

	a.Wait()
	assert.Equal(t, []uuid.UUID{tenant.ID}, ms.touchedIDs())
}

func TestAPIKey_TouchPanicDoesNotEscape(t *testing.T) {
	tenant, key := newTenantWithKey(t)
	ms := &mockKeyStore{
		tenants: map[string]*models.Tenant{tenant.Hash: tenant},
		touchFn: func() { panic("boom") },
	}
	a := auth.NewAPIKeyAuthenticator(ms)

	res := a.Authenticate(requestWithKey(key))
	assert.Equal(t, auth.Success, res.Outcome)
	a.Wait()
}

// --- Session strategy ---

func TestSession_BearerToken(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour)
	tenantID := uuid.New()
	token, expires, err := issuer.Issue(&tenancy.Principal{
		Subject:  "user-1",
		Name:     "Ada Lovelace",
		TenantID: tenantID.String(),
		Roles:    []string{models.RoleTenantAdmin},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	res := auth.NewSessionAuthenticator(issuer, "tc_session").Authenticate(r)
	require.Equal(t, auth.Success, res.Outcome)
	assert.Equal(t, "user-1", res.Principal.Subject)
	assert.Equal(t, tenantID.String(), res.Principal.TenantID)
	assert.Equal(t, []string{models.RoleTenantAdmin}, res.Principal.Roles)
	assert.Equal(t, tenancy.MethodSession, res.Principal.Method)
}

func TestSession_Cookie(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour)
	token, _, err := issuer.Issue(&tenancy.Principal{Subject: "admin", Roles: []string{models.RoleSuperAdmin}})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "tc_session", Value: token})

	res := auth.NewSessionAuthenticator(issuer, "tc_session").Authenticate(r)
	require.Equal(t, auth.Success, res.Outcome)
	assert.Empty(t, res.Principal.TenantID)
}

func TestSession_NoCredential(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour)
	res := auth.NewSessionAuthenticator(issuer, "tc_session").Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, auth.NoOpinion, res.Outcome)
}

func TestSession_InvalidTokens(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour)
	otherKey := auth.NewTokenIssuer("ffffffffffffffffffffffffffffffff", "tenantcore", time.Hour)
	otherIssuer := auth.NewTokenIssuer(testSecret, "someone-else", time.Hour)
	expired := auth.NewTokenIssuer(testSecret, "tenantcore", -time.Minute)

	p := &tenancy.Principal{Subject: "user-1"}
	wrongKey, _, err := otherKey.Issue(p)
	require.NoError(t, err)
	wrongIss, _, err := otherIssuer.Issue(p)
	require.NoError(t, err)
	stale, _, err := expired.Issue(p)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.jwt",
		"wrong key":    wrongKey,
		"wrong issuer": wrongIss,
		"expired":      stale,
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			res := auth.NewSessionAuthenticator(issuer, "tc_session").Authenticate(r)
			assert.Equal(t, auth.Failure, res.Outcome)
			assert.Equal(t, "invalid token", res.Reason)
		})
	}
}

func TestSession_AccountCheck(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour)
	st := mock.NewStore()
	ctx := context.Background()

	tn := &models.Tenant{ID: uuid.New(), Name: "Acme", Domain: "acme", IsActive: true,
		APIKey: models.APIKey{Hash: uuid.NewString()}}
	require.NoError(t, st.CreateTenant(ctx, tn))
	user := &models.User{ID: uuid.New(), TenantID: &tn.ID, FirstName: "Ada", LastName: "L",
		Email: "ada@acme.io", Roles: []string{models.RoleTenantAdmin}}
	require.NoError(t, st.CreateUser(tenancy.WithSystemScope(ctx), user))

	token, _, err := issuer.Issue(auth.PrincipalForUser(user))
	require.NoError(t, err)
	stranger, _, err := issuer.Issue(&tenancy.Principal{Subject: uuid.NewString(), TenantID: tn.ID.String()})
	require.NoError(t, err)

	authenticate := func(token string) auth.Result {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		return auth.NewSessionAuthenticator(issuer, "tc_session").WithAccountCheck(st).Authenticate(r)
	}

	assert.Equal(t, auth.Success, authenticate(token).Outcome)

	res := authenticate(stranger)
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "account disabled", res.Reason)

	require.NoError(t, st.SetTenantActive(ctx, tn.ID, false))
	res = authenticate(token)
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "tenant inactive", res.Reason)

	st.Fail("GetUser", errors.New("database down"))
	res = authenticate(token)
	assert.Equal(t, auth.Failure, res.Outcome)
	assert.Equal(t, "authentication error", res.Reason)
}

// --- Chain ---

type fixedAuthenticator struct {
	res   auth.Result
	calls int
}

func (f *fixedAuthenticator) Authenticate(*http.Request) auth.Result {
	f.calls++
	return f.res
}

func TestChain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p := &tenancy.Principal{Subject: "x"}

	t.Run("all no opinion is anonymous", func(t *testing.T) {
		c := auth.Chain{&fixedAuthenticator{}, &fixedAuthenticator{}}
		assert.Equal(t, auth.NoOpinion, c.Authenticate(r).Outcome)
	})

	t.Run("falls through to second", func(t *testing.T) {
		second := &fixedAuthenticator{res: auth.Result{Outcome: auth.Success, Principal: p}}
		c := auth.Chain{&fixedAuthenticator{}, second}
		res := c.Authenticate(r)
		assert.Equal(t, auth.Success, res.Outcome)
		assert.Same(t, p, res.Principal)
	})

	t.Run("failure is final", func(t *testing.T) {
		second := &fixedAuthenticator{res: auth.Result{Outcome: auth.Success, Principal: p}}
		c := auth.Chain{&fixedAuthenticator{res: auth.Result{Outcome: auth.Failure, Reason: "invalid token"}}, second}
		res := c.Authenticate(r)
		assert.Equal(t, auth.Failure, res.Outcome)
		assert.Zero(t, second.calls)
	})
}

// --- Identity provider ---

type mockUsers struct {
	users map[string]*models.User
	err   error
}

func (m *mockUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if !tenancy.IsSystem(ctx) {
		return nil, errors.New("login lookup outside system scope")
	}
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func TestIdentityProvider_Login(t *testing.T) {
	hash, err := auth.HashPassword("S3cure-pass")
	require.NoError(t, err)
	tenantID := uuid.New()
	user := &models.User{ID: uuid.New(), TenantID: &tenantID, FirstName: "Ada", LastName: "Lovelace",
		Email: "ada@acme.test", PasswordHash: hash, Roles: []string{models.RoleTenantAdmin}}

	issuer := auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour)
	idp := auth.NewIdentityProvider(&mockUsers{users: map[string]*models.User{"ada@acme.test": user}}, issuer)

	session, err := idp.Login(context.Background(), "ada@acme.test", "S3cure-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), session.Principal.Subject)
	assert.Equal(t, tenantID.String(), session.Principal.TenantID)
	assert.Equal(t, "Ada Lovelace", session.Principal.Name)

	parsed, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Principal.Subject, parsed.Subject)

	_, err = idp.Login(context.Background(), "ada@acme.test", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	_, err = idp.Login(context.Background(), "nobody@acme.test", "S3cure-pass")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)

	_, err = idp.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
}

func TestIdentityProvider_StoreError(t *testing.T) {
	idp := auth.NewIdentityProvider(&mockUsers{err: errors.New("db down")},
		auth.NewTokenIssuer(testSecret, "tenantcore", time.Hour))

	_, err := idp.Login(context.Background(), "ada@acme.test", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredential)
}
