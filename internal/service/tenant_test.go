package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/apikey"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/store/mock"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTenantService() (*TenantService, *mock.Store, *recordingNotifier) {
	st := mock.NewStore()
	n := &recordingNotifier{}
	return NewTenantService(st, NewSubscriptionService(st), n, false), st, n
}

func validProvision(planID uuid.UUID) ProvisionRequest {
	return ProvisionRequest{
		Name:           "Acme Corp",
		Domain:         "acme",
		BillingEmail:   "billing@acme.io",
		AdminFirstName: "Ada",
		AdminLastName:  "Lovelace",
		AdminEmail:     "Ada@Acme.io",
		AdminPassword:  "Secret123",
		PlanID:         planID,
	}
}

func TestProvision_CreatesTenantAdminAndTrial(t *testing.T) {
	svc, st, notifier := newTenantService()
	plan := seedPlan(t, st, "Basic", 2999, true)

	res, err := svc.Provision(context.Background(), validProvision(plan.ID))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.APIKey, apikey.TestPrefix))
	assert.True(t, apikey.Validate(res.APIKey, res.Tenant.Hash))
	assert.Equal(t, apikey.TestPrefix, res.Tenant.Prefix)
	assert.Equal(t, models.DefaultRateLimitPerHour, res.Tenant.RateLimitPerHour)
	assert.Equal(t, "acme", res.Tenant.Domain)
	assert.Equal(t, 1, res.Tenant.UserCount)

	sys := tenancy.WithSystemScope(context.Background())
	stored, err := st.GetTenantByAPIKeyHash(sys, res.Tenant.Hash)
	require.NoError(t, err)
	assert.Equal(t, res.Tenant.ID, stored.ID)

	admin, err := st.GetUserByEmail(sys, "ada@acme.io")
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleTenantAdmin}, admin.Roles)
	require.NotNil(t, admin.TenantID)
	assert.Equal(t, res.Tenant.ID, *admin.TenantID)
	assert.NotEqual(t, "Secret123", admin.PasswordHash)

	ms, err := st.ListMemberships(sys, admin.ID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.True(t, ms[0].IsDefault)
	assert.Equal(t, models.RoleTenantAdmin, ms[0].Role)

	require.NotNil(t, res.Subscription)
	assert.Equal(t, models.StatusTrial, res.Subscription.Status)
	assert.False(t, res.Subscription.AutoRenew)
	assert.Equal(t, TrialPeriod, res.Subscription.EndDate.Sub(res.Subscription.StartDate))

	require.Len(t, notifier.welcomes, 1)
	assert.Equal(t, "ada@acme.io", notifier.welcomes[0].To)
	assert.Equal(t, apikey.TestPrefix, notifier.welcomes[0].APIKeyPrefix)
}

func TestProvision_ProductionKeys(t *testing.T) {
	st := mock.NewStore()
	svc := NewTenantService(st, NewSubscriptionService(st), &recordingNotifier{}, true)

	res, err := svc.Provision(context.Background(), validProvision(uuid.Nil))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.APIKey, apikey.LivePrefix))
	assert.Nil(t, res.Subscription)
}

func TestProvision_DomainFromName(t *testing.T) {
	svc, _, _ := newTenantService()
	req := validProvision(uuid.Nil)
	req.Domain = ""
	req.Name = "Globex Industries"

	res, err := svc.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "globex-industries", res.Tenant.Domain)
}

func TestProvision_Validation(t *testing.T) {
	svc, st, notifier := newTenantService()

	_, err := svc.Provision(context.Background(), ProvisionRequest{AdminPassword: "short"})
	assertValidation(t, err, "name", "domain", "billing_email", "admin_first_name", "admin_last_name",
		"admin_email", "admin_password")

	tenants, total, err := st.ListTenants(context.Background(), store.TenantFilter{})
	require.NoError(t, err)
	assert.Empty(t, tenants)
	assert.Zero(t, total)
	assert.Empty(t, notifier.welcomes)
}

func TestProvision_DuplicateDomain(t *testing.T) {
	svc, st, _ := newTenantService()
	seedTenant(t, st, "acme")

	_, err := svc.Provision(context.Background(), validProvision(uuid.Nil))
	assertConflict(t, err, "domain")
}

func TestProvision_DuplicateAdminEmail(t *testing.T) {
	svc, _, _ := newTenantService()
	_, err := svc.Provision(context.Background(), validProvision(uuid.Nil))
	require.NoError(t, err)

	req := validProvision(uuid.Nil)
	req.Domain = "acme-two"
	_, err = svc.Provision(context.Background(), req)
	assertConflict(t, err, "admin_email")
}

func TestProvision_RollsBackOnFailure(t *testing.T) {
	svc, st, notifier := newTenantService()
	st.Fail("CreateMembership", errors.New("connection reset"))

	_, err := svc.Provision(context.Background(), validProvision(uuid.Nil))
	require.Error(t, err)

	sys := tenancy.WithSystemScope(context.Background())
	_, err = st.GetTenantByDomain(sys, "acme")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetUserByEmail(sys, "ada@acme.io")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, notifier.welcomes)
}

func TestProvision_InactivePlanRollsBack(t *testing.T) {
	svc, st, _ := newTenantService()
	plan := seedPlan(t, st, "Legacy", 999, false)

	_, err := svc.Provision(context.Background(), validProvision(plan.ID))
	assertValidation(t, err, "plan_id")

	_, err = st.GetTenantByDomain(context.Background(), "acme")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTenantService()

	_, err := svc.Register(context.Background(), RegisterRequest{
		TenantName: "Acme", Domain: "acme", FirstName: "Ada", LastName: "L",
		Email: "ada@acme.io", Password: "Secret123", ConfirmPassword: "Secret124",
	})
	assertValidation(t, err, "confirm_password")

	_, err = svc.Register(context.Background(), RegisterRequest{
		TenantName: "Acme", Domain: "acme", FirstName: "Ada", LastName: "L",
		Email: "ada@acme.io", Password: "weakpassword", ConfirmPassword: "weakpassword",
	})
	assertValidation(t, err, "password")

	res, err := svc.Register(context.Background(), RegisterRequest{
		TenantName: "Acme", Domain: "acme", FirstName: "Ada", LastName: "L",
		Email: "ada@acme.io", Password: "Secret123", ConfirmPassword: "Secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@acme.io", res.Tenant.BillingEmail)
}

func TestTenantGet_IsolatedToOwnTenant(t *testing.T) {
	svc, st, _ := newTenantService()
	plan := seedPlan(t, st, "Basic", 2999, true)
	a := seedTenant(t, st, "tenant-a")
	b := seedTenant(t, st, "tenant-b")
	seedSubscription(t, st, a.ID, plan.ID, models.StatusActive, svc.now().AddDate(0, 0, 10))

	detail, err := svc.Get(apiKeyCtx(a.ID), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, detail.ID)
	require.NotNil(t, detail.CurrentSubscription)
	assert.Equal(t, "Basic", detail.CurrentSubscription.Plan.Name)

	_, err = svc.Get(apiKeyCtx(a.ID), b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	detail, err = svc.Get(superAdminCtx(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.CurrentSubscription)
}

func TestTenantGetByDomain(t *testing.T) {
	svc, st, _ := newTenantService()
	seedTenant(t, st, "acme")

	tn, err := svc.GetByDomain(context.Background(), " ACME ")
	require.NoError(t, err)
	assert.Equal(t, "acme", tn.Domain)

	_, err = svc.GetByDomain(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantUpdate(t *testing.T) {
	svc, st, _ := newTenantService()
	a := seedTenant(t, st, "acme")
	seedTenant(t, st, "taken")
	ctx := superAdminCtx()

	limit := 50
	detail, err := svc.Update(ctx, a.ID, UpdateTenantRequest{
		Name: "Acme Two", Domain: "acme-two", BillingEmail: "b@acme.io", RateLimitPerHour: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-two", detail.Domain)
	assert.Equal(t, 50, detail.RateLimitPerHour)

	_, err = svc.Update(ctx, a.ID, UpdateTenantRequest{Name: "Acme", Domain: "taken", BillingEmail: "b@acme.io"})
	assertConflict(t, err, "domain")

	neg := -1
	_, err = svc.Update(ctx, a.ID, UpdateTenantRequest{Name: "Acme", Domain: "acme", BillingEmail: "b@acme.io", RateLimitPerHour: &neg})
	assertValidation(t, err, "api_rate_limit_per_hour")

	_, err = svc.Update(ctx, uuid.New(), UpdateTenantRequest{Name: "X", Domain: "x", BillingEmail: "b@acme.io"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenantDeactivateStopsKeyLookup(t *testing.T) {
	svc, st, _ := newTenantService()
	a := seedTenant(t, st, "acme")
	ctx := superAdminCtx()

	require.NoError(t, svc.Deactivate(ctx, a.ID))
	_, err := st.GetTenantByAPIKeyHash(ctx, a.Hash)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.Activate(ctx, a.ID))
	_, err = st.GetTenantByAPIKeyHash(ctx, a.Hash)
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.Activate(ctx, uuid.New()), ErrNotFound)
}

func TestTenantDelete(t *testing.T) {
	svc, st, _ := newTenantService()
	res, err := svc.Provision(context.Background(), validProvision(uuid.Nil))
	require.NoError(t, err)
	empty := seedTenant(t, st, "empty")
	ctx := superAdminCtx()

	assert.ErrorIs(t, svc.Delete(ctx, res.Tenant.ID), ErrConflict)
	require.NoError(t, svc.Delete(ctx, empty.ID))
	assert.ErrorIs(t, svc.Delete(ctx, empty.ID), ErrNotFound)
}

func TestRegenerateAPIKey(t *testing.T) {
	svc, st, _ := newTenantService()
	res, err := svc.Provision(context.Background(), validProvision(uuid.Nil))
	require.NoError(t, err)
	id := res.Tenant.ID
	oldHash := res.Tenant.Hash

	require.NoError(t, svc.RevokeAPIKey(tenantCtx(id, models.RoleTenantAdmin), id))

	key, err := svc.RegenerateAPIKey(tenantCtx(id, models.RoleTenantAdmin), id)
	require.NoError(t, err)
	assert.NotEqual(t, res.APIKey, key.APIKey)

	sys := tenancy.WithSystemScope(context.Background())
	_, err = st.GetTenantByAPIKeyHash(sys, oldHash)
	assert.ErrorIs(t, err, store.ErrNotFound)

	newHash, err := apikey.Hash(key.APIKey)
	require.NoError(t, err)
	stored, err := st.GetTenantByAPIKeyHash(sys, newHash)
	require.NoError(t, err)
	assert.False(t, stored.Revoked)
	assert.Nil(t, stored.LastUsedAt)
	assert.Equal(t, models.DefaultRateLimitPerHour, stored.RateLimitPerHour)
}

func TestAPIKeyAdminOnly(t *testing.T) {
	svc, st, _ := newTenantService()
	a := seedTenant(t, st, "tenant-a")
	b := seedTenant(t, st, "tenant-b")

	_, err := svc.RegenerateAPIKey(tenantCtx(a.ID, models.RoleTenantUser), a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.RegenerateAPIKey(tenantCtx(b.ID, models.RoleTenantAdmin), a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.RevokeAPIKey(apiKeyCtx(a.ID), a.ID), ErrForbidden)

	require.NoError(t, svc.RevokeAPIKey(superAdminCtx(), a.ID))
	stored, err := st.GetTenant(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)
}

func TestTenantList(t *testing.T) {
	svc, st, _ := newTenantService()
	for _, d := range []string{"a", "b", "c"} {
		seedTenant(t, st, d)
	}

	page, total, err := svc.List(superAdminCtx(), store.TenantFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}
