package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/kiranshivaraju/tenantcore/internal/apikey"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
	"github.com/kiranshivaraju/tenantcore/internal/billing"
	"github.com/kiranshivaraju/tenantcore/internal/metrics"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// ProvisionRequest creates a tenant together with its first admin.
type ProvisionRequest struct {
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	BillingEmail   string    `json:"billing_email"`
	BillingAddress string    `json:"billing_address"`
	AdminFirstName string    `json:"admin_first_name"`
	AdminLastName  string    `json:"admin_last_name"`
	AdminEmail     string    `json:"admin_email"`
	AdminPassword  string    `json:"admin_password"`
	PlanID         uuid.UUID `json:"plan_id"`
}

// RegisterRequest is the self-service signup form. The signer becomes the
// tenant admin and billing contact.
type RegisterRequest struct {
	TenantName      string    `json:"tenant_name"`
	Domain          string    `json:"domain"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	Password        string    `json:"password"`
	ConfirmPassword string    `json:"confirm_password"`
	PlanID          uuid.UUID `json:"plan_id"`
}

// UpdateTenantRequest replaces the editable tenant fields.
type UpdateTenantRequest struct {
	Name             string `json:"name"`
	Domain           string `json:"domain"`
	BillingEmail     string `json:"billing_email"`
	BillingAddress   string `json:"billing_address"`
	RateLimitPerHour *int   `json:"api_rate_limit_per_hour"`
}

// TenantDetail is a tenant with its current subscription and head count.
type TenantDetail struct {
	*models.Tenant
	CurrentSubscription *models.Subscription `json:"current_subscription,omitempty"`
	UserCount           int                  `json:"user_count"`
}

// ProvisionResult carries the plaintext API key. It is never retrievable
// again.
type ProvisionResult struct {
	Tenant       *TenantDetail        `json:"tenant"`
	Admin        *models.User         `json:"admin"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	APIKey       string               `json:"api_key"`
}

// APIKeyResult is returned when a key is minted.
type APIKeyResult struct {
	APIKey    string    `json:"api_key"`
	Prefix    string    `json:"api_key_prefix"`
	CreatedAt time.Time `json:"api_key_created_at"`
}

// TenantService manages tenants and their API keys.
type TenantService struct {
	store      store.Store
	subs       *SubscriptionService
	notifier   billing.Notifier
	production bool
	now        func() time.Time
}

// NewTenantService creates a TenantService. production selects live API keys.
func NewTenantService(st store.Store, subs *SubscriptionService, notifier billing.Notifier, production bool) *TenantService {
	return &TenantService{store: st, subs: subs, notifier: notifier, production: production, now: time.Now}
}

// normalizeDomain turns free text into a domain slug, falling back to the
// tenant name when no domain was given.
func normalizeDomain(domain, name string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = name
	}
	return slug.Make(domain)
}

func (r *ProvisionRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Domain = normalizeDomain(r.Domain, r.Name)
	r.BillingEmail = strings.TrimSpace(r.BillingEmail)
	r.BillingAddress = strings.TrimSpace(r.BillingAddress)
	r.AdminFirstName = strings.TrimSpace(r.AdminFirstName)
	r.AdminLastName = strings.TrimSpace(r.AdminLastName)
	r.AdminEmail = strings.ToLower(strings.TrimSpace(r.AdminEmail))
}

func (r *ProvisionRequest) validate(v *validator) {
	v.required(r.Name, "name")
	v.maxLen(r.Name, maxTenantNameLen, "name")
	v.domain(r.Domain, "domain")
	v.email(r.BillingEmail, "billing_email")
	v.required(r.AdminFirstName, "admin_first_name")
	v.maxLen(r.AdminFirstName, maxPersonNameLen, "admin_first_name")
	v.required(r.AdminLastName, "admin_last_name")
	v.maxLen(r.AdminLastName, maxPersonNameLen, "admin_last_name")
	v.email(r.AdminEmail, "admin_email")
	v.password(r.AdminPassword, "admin_password")
}

// Register provisions a tenant from the public signup form.
func (s *TenantService) Register(ctx context.Context, req RegisterRequest) (*ProvisionResult, error) {
	var v validator
	v.strongPassword(req.Password, "password")
	v.check(req.ConfirmPassword == req.Password, "confirm_password", "does not match password")
	if err := v.err(); err != nil {
		return nil, err
	}
	return s.Provision(ctx, ProvisionRequest{
		Name:           req.TenantName,
		Domain:         req.Domain,
		BillingEmail:   req.Email,
		AdminFirstName: req.FirstName,
		AdminLastName:  req.LastName,
		AdminEmail:     req.Email,
		AdminPassword:  req.Password,
		PlanID:         req.PlanID,
	})
}

// Provision mints the tenant's API key, inserts the tenant, its TenantAdmin
// user and default membership, and an optional trial, all in one
// transaction. The welcome email is sent after commit.
func (s *TenantService) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	req.normalize()
	var v validator
	req.validate(&v)
	if err := v.err(); err != nil {
		metrics.ProvisioningTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	res, err := s.provision(ctx, req)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrConflict) {
			outcome = "conflict"
		}
		metrics.ProvisioningTotal.WithLabelValues(outcome).Inc()
		return nil, err
	}
	metrics.ProvisioningTotal.WithLabelValues("success").Inc()

	slog.InfoContext(ctx, "tenant provisioned",
		"tenant_id", res.Tenant.ID, "domain", res.Tenant.Domain, "api_key_prefix", res.Tenant.Prefix)

	err = s.notifier.Welcome(ctx, billing.WelcomeNotice{
		To:           res.Admin.Email,
		Name:         res.Admin.FullName(),
		TenantName:   res.Tenant.Name,
		Domain:       res.Tenant.Domain,
		APIKeyPrefix: res.Tenant.Prefix,
	})
	if err != nil {
		slog.WarnContext(ctx, "welcome email failed", "tenant_id", res.Tenant.ID, "error", err)
	}
	return res, nil
}

func (s *TenantService) provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	sysCtx := tenancy.WithSystemScope(ctx)

	if _, err := s.store.GetTenantByDomain(sysCtx, req.Domain); err == nil {
		return nil, conflict("domain", "is already taken")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check domain: %w", err)
	}
	if _, err := s.store.GetUserByEmail(sysCtx, req.AdminEmail); err == nil {
		return nil, conflict("admin_email", "is already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check admin email: %w", err)
	}

	plaintext, hash, prefix, err := apikey.Generate(s.production)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	passwordHash, err := auth.HashPassword(req.AdminPassword)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tenant := &models.Tenant{
		ID:             uuid.New(),
		Name:           req.Name,
		Domain:         req.Domain,
		IsActive:       true,
		BillingEmail:   req.BillingEmail,
		BillingAddress: req.BillingAddress,
		APIKey: models.APIKey{
			Hash:             hash,
			Prefix:           prefix,
			CreatedAt:        &now,
			RateLimitPerHour: models.DefaultRateLimitPerHour,
		},
	}
	admin := &models.User{
		ID:           uuid.New(),
		TenantID:     &tenant.ID,
		FirstName:    req.AdminFirstName,
		LastName:     req.AdminLastName,
		Email:        req.AdminEmail,
		PasswordHash: passwordHash,
		Roles:        []string{models.RoleTenantAdmin},
	}
	membership := &models.UserTenant{
		ID:        uuid.New(),
		UserID:    admin.ID,
		TenantID:  tenant.ID,
		Role:      models.RoleTenantAdmin,
		IsActive:  true,
		IsDefault: true,
	}

	var trial *models.Subscription
	err = s.store.InTx(sysCtx, func(tx store.Store) error {
		if err := tx.CreateTenant(sysCtx, tenant); err != nil {
			return translate(err, "tenant")
		}
		if err := tx.CreateUser(sysCtx, admin); err != nil {
			return translate(err, "user")
		}
		if err := tx.CreateMembership(sysCtx, membership); err != nil {
			return translate(err, "membership")
		}
		if req.PlanID != uuid.Nil {
			sub, err := s.subs.createTrial(sysCtx, tx, tenant.ID, req.PlanID)
			if err != nil {
				return err
			}
			trial = sub
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ProvisionResult{
		Tenant:       &TenantDetail{Tenant: tenant, CurrentSubscription: trial, UserCount: 1},
		Admin:        admin,
		Subscription: trial,
		APIKey:       plaintext,
	}, nil
}

// canSee reports whether the caller may read tenant id. Only super-admins see
// other tenants.
func canSee(ctx context.Context, id uuid.UUID) bool {
	if tenancy.IsSuperAdmin(ctx) || tenancy.IsSystem(ctx) {
		return true
	}
	current, ok := tenancy.CurrentTenantID(ctx)
	return ok && current == id
}

// Get returns tenant id with its current subscription and user count. A
// caller outside the tenant gets ErrNotFound.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*TenantDetail, error) {
	if !canSee(ctx, id) {
		return nil, fmt.Errorf("tenant: %w", ErrNotFound)
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, translate(err, "tenant")
	}
	return s.detail(ctx, t)
}

// GetByDomain looks a tenant up by its public domain slug.
func (s *TenantService) GetByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	t, err := s.store.GetTenantByDomain(ctx, strings.ToLower(strings.TrimSpace(domain)))
	if err != nil {
		return nil, translate(err, "tenant")
	}
	return t, nil
}

func (s *TenantService) detail(ctx context.Context, t *models.Tenant) (*TenantDetail, error) {
	d := &TenantDetail{Tenant: t}

	sub, err := s.store.GetCurrentSubscription(ctx, t.ID)
	switch {
	case err == nil:
		d.CurrentSubscription = sub
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load current subscription: %w", err)
	}

	d.UserCount, err = s.store.CountUsers(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return d, nil
}

// List returns one page of tenants and the total count.
func (s *TenantService) List(ctx context.Context, filter store.TenantFilter) ([]*models.Tenant, int, error) {
	tenants, total, err := s.store.ListTenants(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, total, nil
}

func (s *TenantService) Update(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*TenantDetail, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, translate(err, "tenant")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Domain = normalizeDomain(req.Domain, req.Name)
	var v validator
	v.required(req.Name, "name")
	v.maxLen(req.Name, maxTenantNameLen, "name")
	v.domain(req.Domain, "domain")
	v.email(strings.TrimSpace(req.BillingEmail), "billing_email")
	if req.RateLimitPerHour != nil {
		v.check(*req.RateLimitPerHour >= 0, "api_rate_limit_per_hour", "must not be negative")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	t.Name = req.Name
	t.Domain = req.Domain
	t.BillingEmail = strings.TrimSpace(req.BillingEmail)
	t.BillingAddress = strings.TrimSpace(req.BillingAddress)
	if req.RateLimitPerHour != nil {
		t.RateLimitPerHour = *req.RateLimitPerHour
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, conflict("domain", "is already taken")
		}
		return nil, translate(err, "tenant")
	}
	return s.detail(ctx, t)
}

func (s *TenantService) Activate(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, true)
}

// Deactivate disables the tenant. Its API key stops authenticating at once.
func (s *TenantService) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, false)
}

func (s *TenantService) setActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.store.SetTenantActive(ctx, id, active); err != nil {
		return translate(err, "tenant")
	}
	slog.InfoContext(ctx, "tenant active flag changed", "tenant_id", id, "active", active)
	return nil
}

// Delete removes the tenant permanently. It fails with ErrConflict while the
// tenant still has users.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteTenant(ctx, id); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return fmt.Errorf("tenant still has users: %w", ErrConflict)
		}
		return translate(err, "tenant")
	}
	slog.InfoContext(ctx, "tenant deleted", "tenant_id", id)
	return nil
}

// RegenerateAPIKey replaces the tenant's key and clears any revocation. The
// old key stops working immediately.
func (s *TenantService) RegenerateAPIKey(ctx context.Context, id uuid.UUID) (*APIKeyResult, error) {
	if !tenancy.IsTenantAdmin(ctx, id) {
		return nil, fmt.Errorf("regenerate api key: %w", ErrForbidden)
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, translate(err, "tenant")
	}

	plaintext, hash, prefix, err := apikey.Generate(s.production)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	now := s.now().UTC()
	key := models.APIKey{
		Hash:             hash,
		Prefix:           prefix,
		CreatedAt:        &now,
		RateLimitPerHour: t.RateLimitPerHour,
	}
	if err := s.store.SetTenantAPIKey(ctx, id, key); err != nil {
		return nil, translate(err, "tenant")
	}
	slog.InfoContext(ctx, "api key regenerated", "tenant_id", id, "api_key_prefix", prefix)
	return &APIKeyResult{APIKey: plaintext, Prefix: prefix, CreatedAt: now}, nil
}

// RevokeAPIKey disables the tenant's key until it is regenerated.
func (s *TenantService) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	if !tenancy.IsTenantAdmin(ctx, id) {
		return fmt.Errorf("revoke api key: %w", ErrForbidden)
	}
	if err := s.store.RevokeTenantAPIKey(ctx, id); err != nil {
		return translate(err, "tenant")
	}
	slog.InfoContext(ctx, "api key revoked", "tenant_id", id)
	return nil
}
