package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tenantcore/internal/api/middleware"
	"github.com/kiranshivaraju/tenantcore/internal/apikey"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
	cachemock "github.com/kiranshivaraju/tenantcore/internal/cache/mock"
	"github.com/kiranshivaraju/tenantcore/internal/store/mock"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type stubAuthenticator auth.Result

func (s stubAuthenticator) Authenticate(_ *http.Request) auth.Result {
	return auth.Result(s)
}

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func withPrincipal(req *http.Request, p *tenancy.Principal) *http.Request {
	return req.WithContext(tenancy.WithPrincipal(req.Context(), p))
}

func tenantAdmin(tenantID uuid.UUID) *tenancy.Principal {
	return &tenancy.Principal{
		Subject:  uuid.NewString(),
		TenantID: tenantID.String(),
		Roles:    []string{models.RoleTenantAdmin},
		Method:   tenancy.MethodSession,
	}
}

func apiKeyPrincipal(tenantID uuid.UUID, limit int) *tenancy.Principal {
	return &tenancy.Principal{
		Subject:          tenantID.String(),
		TenantID:         tenantID.String(),
		Method:           tenancy.MethodAPIKey,
		RateLimitPerHour: limit,
	}
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_NoCredential_ContinuesAnonymously(t *testing.T) {
	a := mw.NewAuth(stubAuthenticator{Outcome: auth.NoOpinion})

	var anonymous bool
	handler := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := mw.GetPrincipal(r)
		anonymous = !ok
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, anonymous)
}

func TestAuth_Failure_Returns401(t *testing.T) {
	a := mw.NewAuth(stubAuthenticator{Outcome: auth.Failure, Reason: "revoked"})
	handler := a.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(auth.APIKeyHeader, "tc_whatever")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := errBody(t, w)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
	assert.Contains(t, body["message"], "revoked")
}

func TestAuth_Success_SetsPrincipal(t *testing.T) {
	tenantID := uuid.New()
	a := mw.NewAuth(stubAuthenticator{Outcome: auth.Success, Principal: apiKeyPrincipal(tenantID, 100)})

	var gotTenantID uuid.UUID
	var gotOK bool
	handler := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenantID, gotOK = mw.GetTenantID(r)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, tenantID, gotTenantID)
}

func TestAuth_APIKeyChain(t *testing.T) {
	st := mock.NewStore()
	key, hash, prefix, err := apikey.Generate(false)
	require.NoError(t, err)
	tn := &models.Tenant{
		ID:       uuid.New(),
		Name:     "Acme",
		Domain:   "acme",
		IsActive: true,
		APIKey:   models.APIKey{Hash: hash, Prefix: prefix, RateLimitPerHour: 10},
	}
	require.NoError(t, st.CreateTenant(context.Background(), tn))

	keys := auth.NewAPIKeyAuthenticator(st)
	tokens := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", "tenantcore", 0)
	a := mw.NewAuth(auth.Chain{auth.NewSessionAuthenticator(tokens, "tc_session"), keys})

	var got *tenancy.Principal
	handler := a.Authenticate(mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = mw.GetPrincipal(r)
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(auth.APIKeyHeader, key)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	keys.Wait()

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, tenancy.MethodAPIKey, got.Method)
	assert.Equal(t, tn.ID.String(), got.TenantID)
	assert.Equal(t, 10, got.RateLimitPerHour)

	require.NoError(t, st.RevokeTenantAPIKey(context.Background(), tn.ID))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, errBody(t, w)["message"], "revoked")
}

func TestRequireAuth(t *testing.T) {
	handler := mw.RequireAuth(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest("GET", "/test", nil), tenantAdmin(uuid.New())))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSuperAdmin(t *testing.T) {
	handler := mw.RequireSuperAdmin(okHandler())
	tenantID := uuid.New()

	tests := []struct {
		name      string
		principal *tenancy.Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"tenant admin", tenantAdmin(tenantID), http.StatusForbidden},
		{"api key", apiKeyPrincipal(tenantID, 0), http.StatusForbidden},
		{"super admin", &tenancy.Principal{Subject: "root", Roles: []string{models.RoleSuperAdmin}, Method: tenancy.MethodSession}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.principal != nil {
				req = withPrincipal(req, tt.principal)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireTenantAdmin(t *testing.T) {
	handler := mw.RequireTenantAdmin(okHandler())
	tenantID := uuid.New()
	user := &tenancy.Principal{
		Subject:  uuid.NewString(),
		TenantID: tenantID.String(),
		Roles:    []string{models.RoleTenantUser},
		Method:   tenancy.MethodSession,
	}

	tests := []struct {
		name      string
		principal *tenancy.Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"tenant user", user, http.StatusForbidden},
		{"api key", apiKeyPrincipal(tenantID, 0), http.StatusForbidden},
		{"tenant admin", tenantAdmin(tenantID), http.StatusOK},
		{"super admin", &tenancy.Principal{Subject: "root", Roles: []string{models.RoleSuperAdmin}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.principal != nil {
				req = withPrincipal(req, tt.principal)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireTenant(t *testing.T) {
	handler := mw.RequireTenant(okHandler())

	root := &tenancy.Principal{Subject: "root", Roles: []string{models.RoleSuperAdmin}}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest("GET", "/test", nil), root))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TENANT_REQUIRED", errBody(t, w)["code"])

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest("GET", "/test", nil), tenantAdmin(uuid.New())))
	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	rl := mw.NewRateLimit(cachemock.NewCache())
	handler := rl.Limit(okHandler())

	req := withPrincipal(httptest.NewRequest("GET", "/test", nil), apiKeyPrincipal(uuid.New(), 60))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	rl := mw.NewRateLimit(cachemock.NewCache())
	handler := rl.Limit(okHandler())
	req := withPrincipal(httptest.NewRequest("GET", "/test", nil), apiKeyPrincipal(uuid.New(), 2))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.True(t, retry > 0 && retry <= 3601)
}

func TestRateLimit_CountsPerTenant(t *testing.T) {
	rl := mw.NewRateLimit(cachemock.NewCache())
	handler := rl.Limit(okHandler())

	a := withPrincipal(httptest.NewRequest("GET", "/test", nil), apiKeyPrincipal(uuid.New(), 1))
	b := withPrincipal(httptest.NewRequest("GET", "/test", nil), apiKeyPrincipal(uuid.New(), 1))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, a)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, b)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, a)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_PassThrough(t *testing.T) {
	rl := mw.NewRateLimit(cachemock.NewCache())
	handler := rl.Limit(okHandler())

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"anonymous", httptest.NewRequest("GET", "/test", nil)},
		{"session", withPrincipal(httptest.NewRequest("GET", "/test", nil), tenantAdmin(uuid.New()))},
		{"unlimited key", withPrincipal(httptest.NewRequest("GET", "/test", nil), apiKeyPrincipal(uuid.New(), 0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, tt.req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	c := cachemock.NewCache()
	c.Err = errors.New("redis down")
	handler := mw.NewRateLimit(c).Limit(okHandler())

	req := withPrincipal(httptest.NewRequest("GET", "/test", nil), apiKeyPrincipal(uuid.New(), 1))
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging and Metrics Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetrics_PassesResponseThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(mw.Metrics)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/items/42", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
