// Package mock provides an in-memory store.Store for tests. It applies the
// same tenant isolation and soft-delete rules as the Postgres store.
package mock

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// Store satisfies store.Store in memory.
type Store struct {
	mu            sync.Mutex
	tenants       map[uuid.UUID]models.Tenant
	users         map[uuid.UUID]models.User
	memberships   map[uuid.UUID]models.UserTenant
	plans         map[uuid.UUID]models.Plan
	subscriptions map[uuid.UUID]models.Subscription
	failures      map[string]error

	// Now is the clock used by the save hook.
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		tenants:       make(map[uuid.UUID]models.Tenant),
		users:         make(map[uuid.UUID]models.User),
		memberships:   make(map[uuid.UUID]models.UserTenant),
		plans:         make(map[uuid.UUID]models.Plan),
		subscriptions: make(map[uuid.UUID]models.Subscription),
		failures:      make(map[string]error),
		Now:           time.Now,
	}
}

// Fail makes every later call of the named method return err. A nil err
// clears the failure.
func (m *Store) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *Store) fail(method string) error {
	return m.failures[method]
}

func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("Ping")
}

// InTx runs fn against m and restores the previous state when fn fails.
func (m *Store) InTx(_ context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type state struct {
	tenants       map[uuid.UUID]models.Tenant
	users         map[uuid.UUID]models.User
	memberships   map[uuid.UUID]models.UserTenant
	plans         map[uuid.UUID]models.Plan
	subscriptions map[uuid.UUID]models.Subscription
}

func (m *Store) snapshot() state {
	return state{
		tenants:       clone(m.tenants),
		users:         clone(m.users),
		memberships:   clone(m.memberships),
		plans:         clone(m.plans),
		subscriptions: clone(m.subscriptions),
	}
}

func (m *Store) restore(s state) {
	m.tenants = s.tenants
	m.users = s.users
	m.memberships = s.memberships
	m.plans = s.plans
	m.subscriptions = s.subscriptions
}

func clone[V any](in map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Store) stamp(a *models.Audit) {
	a.Stamp(m.Now())
}

// --- Tenants ---

func (m *Store) CreateTenant(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateTenant"); err != nil {
		return err
	}
	for _, existing := range m.tenants {
		if existing.Domain == t.Domain || existing.Hash == t.Hash {
			return store.ErrDuplicateKey
		}
	}
	m.stamp(&t.Audit)
	m.tenants[t.ID] = *t
	return nil
}

func (m *Store) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	return m.findTenant("GetTenant", func(t models.Tenant) bool { return t.ID == id })
}

func (m *Store) GetTenantByDomain(_ context.Context, domain string) (*models.Tenant, error) {
	return m.findTenant("GetTenantByDomain", func(t models.Tenant) bool { return t.Domain == domain })
}

func (m *Store) GetTenantByAPIKeyHash(_ context.Context, hash string) (*models.Tenant, error) {
	return m.findTenant("GetTenantByAPIKeyHash", func(t models.Tenant) bool { return t.Hash == hash && t.IsActive })
}

func (m *Store) findTenant(method string, match func(models.Tenant) bool) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(method); err != nil {
		return nil, err
	}
	for _, t := range m.tenants {
		if !t.IsDeleted() && match(t) {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) ListTenants(_ context.Context, filter store.TenantFilter) ([]*models.Tenant, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListTenants"); err != nil {
		return nil, 0, err
	}
	all := []*models.Tenant{}
	for _, t := range m.tenants {
		if !t.IsDeleted() {
			all = append(all, &t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Audit.CreatedAt.After(all[j].Audit.CreatedAt) })

	limit, page := filter.Limit, filter.Page
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	return all[start:end], len(all), nil
}

func (m *Store) UpdateTenant(_ context.Context, t *models.Tenant) error {
	return m.updateTenant("UpdateTenant", t.ID, func(existing *models.Tenant) error {
		for id, other := range m.tenants {
			if id != t.ID && other.Domain == t.Domain {
				return store.ErrDuplicateKey
			}
		}
		m.stamp(&t.Audit)
		existing.Name = t.Name
		existing.Domain = t.Domain
		existing.BillingEmail = t.BillingEmail
		existing.BillingAddress = t.BillingAddress
		existing.RateLimitPerHour = t.RateLimitPerHour
		existing.UpdatedAt = t.UpdatedAt
		return nil
	})
}

func (m *Store) SetTenantActive(_ context.Context, id uuid.UUID, active bool) error {
	return m.updateTenant("SetTenantActive", id, func(t *models.Tenant) error {
		t.IsActive = active
		m.stamp(&t.Audit)
		return nil
	})
}

func (m *Store) SetTenantAPIKey(_ context.Context, id uuid.UUID, key models.APIKey) error {
	return m.updateTenant("SetTenantAPIKey", id, func(t *models.Tenant) error {
		limit := t.RateLimitPerHour
		t.APIKey = key
		t.RateLimitPerHour = limit
		t.Revoked = false
		t.LastUsedAt = nil
		m.stamp(&t.Audit)
		return nil
	})
}

func (m *Store) RevokeTenantAPIKey(_ context.Context, id uuid.UUID) error {
	return m.updateTenant("RevokeTenantAPIKey", id, func(t *models.Tenant) error {
		t.Revoked = true
		m.stamp(&t.Audit)
		return nil
	})
}

func (m *Store) TouchAPIKeyLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	err := m.updateTenant("TouchAPIKeyLastUsed", id, func(t *models.Tenant) error {
		at := at.UTC()
		t.LastUsedAt = &at
		return nil
	})
	if err == store.ErrNotFound {
		return nil
	}
	return err
}

func (m *Store) updateTenant(method string, id uuid.UUID, fn func(*models.Tenant) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(method); err != nil {
		return err
	}
	t, ok := m.tenants[id]
	if !ok || t.IsDeleted() {
		return store.ErrNotFound
	}
	if err := fn(&t); err != nil {
		return err
	}
	m.tenants[id] = t
	return nil
}

func (m *Store) DeleteTenant(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteTenant"); err != nil {
		return err
	}
	if _, ok := m.tenants[id]; !ok {
		return store.ErrNotFound
	}
	for _, u := range m.users {
		if u.TenantID != nil && *u.TenantID == id {
			return store.ErrForeignKey
		}
	}
	for sid, s := range m.subscriptions {
		if s.TenantID == id {
			delete(m.subscriptions, sid)
		}
	}
	for mid, ut := range m.memberships {
		if ut.TenantID == id {
			delete(m.memberships, mid)
		}
	}
	delete(m.tenants, id)
	return nil
}

// --- Users ---

func (m *Store) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateUser"); err != nil {
		return err
	}
	if !store.FilterFor(ctx).Allows(u.TenantID, nil) {
		return store.ErrNotFound
	}
	if u.TenantID != nil {
		if _, ok := m.tenants[*u.TenantID]; !ok {
			return store.ErrForeignKey
		}
	}
	for _, existing := range m.users {
		if !existing.IsDeleted() && strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicateKey
		}
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	m.stamp(&u.Audit)
	m.users[u.ID] = *u
	return nil
}

func (m *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.findUser(ctx, "GetUser", func(u models.User) bool { return u.ID == id })
}

func (m *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, "GetUserByEmail", func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *Store) findUser(ctx context.Context, method string, match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(method); err != nil {
		return nil, err
	}
	filter := store.FilterFor(ctx)
	for _, u := range m.users {
		if filter.Allows(u.TenantID, u.DeletedAt) && match(u) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListUsers"); err != nil {
		return nil, err
	}
	filter := store.FilterFor(ctx)
	users := []*models.User{}
	for _, u := range m.users {
		if u.TenantID != nil && *u.TenantID == tenantID && filter.Allows(u.TenantID, u.DeletedAt) {
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *Store) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	users, err := m.ListUsers(ctx, tenantID)
	return len(users), err
}

func (m *Store) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SoftDeleteUser"); err != nil {
		return err
	}
	u, ok := m.users[id]
	if !ok || !store.FilterFor(ctx).Allows(u.TenantID, u.DeletedAt) {
		return store.ErrNotFound
	}
	now := m.Now().UTC()
	u.DeletedAt = &now
	u.UpdatedAt = now
	m.users[id] = u
	return nil
}

// --- Memberships ---

func (m *Store) CreateMembership(ctx context.Context, ut *models.UserTenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateMembership"); err != nil {
		return err
	}
	if !store.FilterFor(ctx).Allows(&ut.TenantID, nil) {
		return store.ErrNotFound
	}
	if _, ok := m.users[ut.UserID]; !ok {
		return store.ErrForeignKey
	}
	if _, ok := m.tenants[ut.TenantID]; !ok {
		return store.ErrForeignKey
	}
	for id, existing := range m.memberships {
		if existing.UserID == ut.UserID && existing.TenantID == ut.TenantID {
			return store.ErrDuplicateKey
		}
		if ut.IsDefault && existing.UserID == ut.UserID && existing.IsDefault {
			existing.IsDefault = false
			m.memberships[id] = existing
		}
	}
	m.stamp(&ut.Audit)
	m.memberships[ut.ID] = *ut
	return nil
}

func (m *Store) ListMemberships(ctx context.Context, userID uuid.UUID) ([]*models.UserTenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListMemberships"); err != nil {
		return nil, err
	}
	filter := store.FilterFor(ctx)
	out := []*models.UserTenant{}
	for _, ut := range m.memberships {
		if ut.UserID == userID && filter.Allows(&ut.TenantID, ut.DeletedAt) {
			out = append(out, &ut)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
	return out, nil
}

// --- Plans ---

func (m *Store) CreatePlan(_ context.Context, p *models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePlan"); err != nil {
		return err
	}
	for _, existing := range m.plans {
		if existing.Name == p.Name && !existing.IsDeleted() {
			return store.ErrDuplicateKey
		}
	}
	m.stamp(&p.Audit)
	m.plans[p.ID] = *p
	return nil
}

func (m *Store) GetPlan(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetPlan"); err != nil {
		return nil, err
	}
	p, ok := m.plans[id]
	if !ok || p.IsDeleted() {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *Store) ListPlans(_ context.Context, activeOnly bool) ([]*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListPlans"); err != nil {
		return nil, err
	}
	plans := []*models.Plan{}
	for _, p := range m.plans {
		if p.IsDeleted() || (activeOnly && !p.IsActive) {
			continue
		}
		plans = append(plans, &p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].PricePerMonthCents != plans[j].PricePerMonthCents {
			return plans[i].PricePerMonthCents < plans[j].PricePerMonthCents
		}
		return plans[i].Name < plans[j].Name
	})
	return plans, nil
}

func (m *Store) UpdatePlan(_ context.Context, p *models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdatePlan"); err != nil {
		return err
	}
	existing, ok := m.plans[p.ID]
	if !ok || existing.IsDeleted() {
		return store.ErrNotFound
	}
	m.stamp(&p.Audit)
	p.CreatedAt = existing.CreatedAt
	m.plans[p.ID] = *p
	return nil
}

func (m *Store) CountPlans(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plans), m.fail("CountPlans")
}

// --- Subscriptions ---

func (m *Store) withPlan(s models.Subscription) *models.Subscription {
	if p, ok := m.plans[s.PlanID]; ok {
		s.Plan = &p
	}
	return &s
}

func (m *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateSubscription"); err != nil {
		return err
	}
	if !store.FilterFor(ctx).Allows(&sub.TenantID, nil) {
		return store.ErrNotFound
	}
	return m.insertSubscription(sub)
}

func (m *Store) insertSubscription(sub *models.Subscription) error {
	if _, ok := m.tenants[sub.TenantID]; !ok {
		return store.ErrForeignKey
	}
	if _, ok := m.plans[sub.PlanID]; !ok {
		return store.ErrForeignKey
	}
	m.stamp(&sub.Audit)
	stored := *sub
	stored.Plan = nil
	m.subscriptions[sub.ID] = stored
	return nil
}

func (m *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetSubscription"); err != nil {
		return nil, err
	}
	s, ok := m.subscriptions[id]
	if !ok || !store.FilterFor(ctx).Allows(&s.TenantID, s.DeletedAt) {
		return nil, store.ErrNotFound
	}
	return m.withPlan(s), nil
}

func (m *Store) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	subs, err := m.listSubscriptions(ctx, "GetCurrentSubscription", func(s models.Subscription) bool {
		return s.TenantID == tenantID && (s.Status == models.StatusActive || s.Status == models.StatusTrial)
	})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].StartDate.After(subs[j].StartDate) })
	return subs[0], nil
}

func (m *Store) ListSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]*models.Subscription, error) {
	subs, err := m.listSubscriptions(ctx, "ListSubscriptions", func(s models.Subscription) bool {
		return s.TenantID == tenantID
	})
	sort.Slice(subs, func(i, j int) bool { return subs[i].StartDate.After(subs[j].StartDate) })
	return subs, err
}

func (m *Store) ListExpiredSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	subs, err := m.listSubscriptions(ctx, "ListExpiredSubscriptions", func(s models.Subscription) bool {
		return s.EndDate.Before(now) && (s.Status == models.StatusActive || s.Status == models.StatusTrial)
	})
	sort.Slice(subs, func(i, j int) bool { return subs[i].EndDate.Before(subs[j].EndDate) })
	return subs, err
}

func (m *Store) ListExpiringSubscriptions(ctx context.Context, now time.Time, within time.Duration) ([]*models.Subscription, error) {
	until := now.Add(within)
	subs, err := m.listSubscriptions(ctx, "ListExpiringSubscriptions", func(s models.Subscription) bool {
		return !s.EndDate.Before(now) && s.EndDate.Before(until) && s.ExpiryNoticeAt == nil &&
			(s.Status == models.StatusActive || s.Status == models.StatusTrial)
	})
	sort.Slice(subs, func(i, j int) bool { return subs[i].EndDate.Before(subs[j].EndDate) })
	return subs, err
}

func (m *Store) listSubscriptions(ctx context.Context, method string, match func(models.Subscription) bool) ([]*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(method); err != nil {
		return nil, err
	}
	filter := store.FilterFor(ctx)
	subs := []*models.Subscription{}
	for _, s := range m.subscriptions {
		if filter.Allows(&s.TenantID, s.DeletedAt) && match(s) {
			subs = append(subs, m.withPlan(s))
		}
	}
	return subs, nil
}

func (m *Store) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateSubscription"); err != nil {
		return err
	}
	existing, ok := m.subscriptions[sub.ID]
	if !ok || !store.FilterFor(ctx).Allows(&existing.TenantID, existing.DeletedAt) {
		return store.ErrNotFound
	}
	m.stamp(&sub.Audit)
	stored := *sub
	stored.Plan = nil
	stored.TenantID = existing.TenantID
	stored.PlanID = existing.PlanID
	stored.CreatedAt = existing.CreatedAt
	m.subscriptions[sub.ID] = stored
	return nil
}

func (m *Store) ReplaceActiveSubscription(ctx context.Context, next *models.Subscription) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ReplaceActiveSubscription"); err != nil {
		return nil, err
	}
	filter := store.FilterFor(ctx)
	if !filter.Allows(&next.TenantID, nil) {
		return nil, store.ErrNotFound
	}
	if t, ok := m.tenants[next.TenantID]; !ok || t.IsDeleted() {
		return nil, store.ErrNotFound
	}

	snap := m.snapshot()
	var cancelled []uuid.UUID
	now := m.Now().UTC()
	for id, s := range m.subscriptions {
		if s.TenantID == next.TenantID && s.Status == models.StatusActive && filter.Allows(&s.TenantID, s.DeletedAt) {
			s.Status = models.StatusCancelled
			s.AutoRenew = false
			s.UpdatedAt = now
			m.subscriptions[id] = s
			cancelled = append(cancelled, id)
		}
	}
	if err := m.insertSubscription(next); err != nil {
		m.restore(snap)
		return nil, err
	}
	slices.SortFunc(cancelled, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return cancelled, nil
}
