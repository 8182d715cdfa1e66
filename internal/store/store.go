package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrForeignKey = errors.New("foreign key violation")

// Store is the data access interface. All database operations go through here.
//
// Users, memberships and subscriptions are tenant-scoped: every read and write
// is restricted by the isolation filter resolved from ctx. Tenants and plans
// are only filtered by their soft-delete marker.
type Store interface {
	Ping(ctx context.Context) error

	// InTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error

	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	// GetTenantByAPIKeyHash only matches active, non-deleted tenants.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, error)
	ListTenants(ctx context.Context, filter TenantFilter) ([]*models.Tenant, int, error)
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	SetTenantActive(ctx context.Context, id uuid.UUID, active bool) error
	SetTenantAPIKey(ctx context.Context, id uuid.UUID, key models.APIKey) error
	RevokeTenantAPIKey(ctx context.Context, id uuid.UUID) error
	TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteTenant(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error)
	CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error)
	SoftDeleteUser(ctx context.Context, id uuid.UUID) error

	CreateMembership(ctx context.Context, m *models.UserTenant) error
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]*models.UserTenant, error)

	CreatePlan(ctx context.Context, p *models.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error)
	UpdatePlan(ctx context.Context, p *models.Plan) error
	CountPlans(ctx context.Context) (int, error)

	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// GetCurrentSubscription returns the most recently started Active or
	// Trial subscription of the tenant.
	GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]*models.Subscription, error)
	ListExpiredSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	ListExpiringSubscriptions(ctx context.Context, now time.Time, within time.Duration) ([]*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	// ReplaceActiveSubscription cancels the tenant's Active subscriptions and
	// inserts next in one transaction that holds the tenant row lock. It
	// returns the ids of the cancelled subscriptions.
	ReplaceActiveSubscription(ctx context.Context, next *models.Subscription) ([]uuid.UUID, error)
}

type TenantFilter struct {
	Page  int
	Limit int
}
