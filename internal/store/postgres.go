package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
	now  func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool, now: time.Now}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside a transaction. Nested calls use a savepoint.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: s.pool, db: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// stamp is the single save hook: every insert and update goes through it.
func (s *PostgresStore) stamp(a *models.Audit) {
	a.Stamp(s.now())
}

// --- Tenants ---

const tenantColumns = `id, name, domain, is_active, billing_email, billing_address,
	api_key_hash, api_key_prefix, api_key_created_at, api_key_last_used_at, api_key_expires_at,
	api_key_revoked, api_rate_limit_per_hour, created_at, updated_at, deleted_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.IsActive, &t.BillingEmail, &t.BillingAddress,
		&t.Hash, &t.Prefix, &t.APIKey.CreatedAt, &t.LastUsedAt, &t.ExpiresAt,
		&t.Revoked, &t.RateLimitPerHour, &t.Audit.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	s.stamp(&t.Audit)
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.Name, t.Domain, t.IsActive, t.BillingEmail, t.BillingAddress,
		t.Hash, t.Prefix, t.APIKey.CreatedAt, t.LastUsedAt, t.ExpiresAt,
		t.Revoked, t.RateLimitPerHour, t.Audit.CreatedAt, t.UpdatedAt, t.DeletedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.getTenant(ctx, "get tenant", `id = $1`, id)
}

func (s *PostgresStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return s.getTenant(ctx, "get tenant by domain", `domain = $1`, domain)
}

func (s *PostgresStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, error) {
	return s.getTenant(ctx, "get tenant by api key", `api_key_hash = $1 AND is_active`, hash)
}

func (s *PostgresStore) getTenant(ctx context.Context, op, cond string, arg any) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+cond+` AND `+notDeleted(""), arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context, filter TenantFilter) ([]*models.Tenant, int, error) {
	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tenants WHERE `+notDeleted(""),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	limit, offset := paginate(filter.Page, filter.Limit)
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+notDeleted("")+`
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*models.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, total, rows.Err()
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	s.stamp(&t.Audit)
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET name = $2, domain = $3, billing_email = $4, billing_address = $5,
		   api_rate_limit_per_hour = $6, updated_at = $7
		 WHERE id = $1 AND `+notDeleted(""),
		t.ID, t.Name, t.Domain, t.BillingEmail, t.BillingAddress, t.RateLimitPerHour, t.UpdatedAt)
	if isDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return affected("update tenant", tag, err)
}

func (s *PostgresStore) SetTenantActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET is_active = $2, updated_at = $3 WHERE id = $1 AND `+notDeleted(""),
		id, active, s.now().UTC())
	return affected("set tenant active", tag, err)
}

// SetTenantAPIKey replaces the key material and clears any revocation.
func (s *PostgresStore) SetTenantAPIKey(ctx context.Context, id uuid.UUID, key models.APIKey) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET api_key_hash = $2, api_key_prefix = $3, api_key_created_at = $4,
		   api_key_expires_at = $5, api_key_last_used_at = NULL, api_key_revoked = FALSE, updated_at = $6
		 WHERE id = $1 AND `+notDeleted(""),
		id, key.Hash, key.Prefix, key.CreatedAt, key.ExpiresAt, s.now().UTC())
	return affected("set tenant api key", tag, err)
}

func (s *PostgresStore) RevokeTenantAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET api_key_revoked = TRUE, updated_at = $2 WHERE id = $1 AND `+notDeleted(""),
		id, s.now().UTC())
	return affected("revoke tenant api key", tag, err)
}

// TouchAPIKeyLastUsed writes only the last-used column.
func (s *PostgresStore) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE tenants SET api_key_last_used_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("touch api key last used: %w", err)
	}
	return nil
}

// DeleteTenant removes the tenant row. Memberships and subscriptions cascade;
// home users block the delete with ErrForeignKey.
func (s *PostgresStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	return affected("delete tenant", tag, err)
}

// --- Users ---

const userColumns = `u.id, u.tenant_id, u.first_name, u.last_name, u.email, u.password_hash, u.roles,
	u.created_at, u.updated_at, u.deleted_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TenantID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Roles,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if !FilterFor(ctx).Allows(u.TenantID, nil) {
		return ErrNotFound
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	s.stamp(&u.Audit)
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, tenant_id, first_name, last_name, email, password_hash, roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.TenantID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Roles, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	pred, args := FilterFor(ctx).SQL("u", []any{id})
	return s.getUser(ctx, "get user", `u.id = $1 AND `+pred, args)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	pred, args := FilterFor(ctx).SQL("u", []any{email})
	return s.getUser(ctx, "get user by email", `lower(u.email) = lower($1) AND `+pred, args)
}

func (s *PostgresStore) getUser(ctx context.Context, op, where string, args []any) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	pred, args := FilterFor(ctx).SQL("u", []any{tenantID})
	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.tenant_id = $1 AND `+pred+`
		 ORDER BY u.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	pred, args := FilterFor(ctx).SQL("u", []any{tenantID})
	var n int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users u WHERE u.tenant_id = $1 AND `+pred, args...,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	now := s.now().UTC()
	pred, args := FilterFor(ctx).SQL("", []any{id, now})
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND `+pred, args...)
	return affected("delete user", tag, err)
}

// --- Memberships ---

const membershipColumns = `m.id, m.user_id, m.tenant_id, m.role, m.is_active, m.is_default,
	m.created_at, m.updated_at, m.deleted_at`

// CreateMembership inserts m. When m is the user's default membership, the
// previous default is cleared in the same transaction.
func (s *PostgresStore) CreateMembership(ctx context.Context, m *models.UserTenant) error {
	if !FilterFor(ctx).Allows(&m.TenantID, nil) {
		return ErrNotFound
	}
	return s.InTx(ctx, func(tx Store) error {
		ts := tx.(*PostgresStore)
		if m.IsDefault {
			if _, err := ts.db.Exec(ctx,
				`UPDATE user_tenants SET is_default = FALSE, updated_at = $2
				 WHERE user_id = $1 AND is_default AND deleted_at IS NULL`,
				m.UserID, ts.now().UTC()); err != nil {
				return fmt.Errorf("clear default membership: %w", err)
			}
		}
		ts.stamp(&m.Audit)
		_, err := ts.db.Exec(ctx,
			`INSERT INTO user_tenants (id, user_id, tenant_id, role, is_active, is_default, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, m.UserID, m.TenantID, m.Role, m.IsActive, m.IsDefault, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			if isForeignKeyError(err) {
				return ErrForeignKey
			}
			return fmt.Errorf("create membership: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListMemberships(ctx context.Context, userID uuid.UUID) ([]*models.UserTenant, error) {
	pred, args := FilterFor(ctx).SQL("m", []any{userID})
	rows, err := s.db.Query(ctx,
		`SELECT `+membershipColumns+` FROM user_tenants m WHERE m.user_id = $1 AND `+pred+`
		 ORDER BY m.is_default DESC, m.created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := []*models.UserTenant{}
	for rows.Next() {
		var m models.UserTenant
		if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.IsActive, &m.IsDefault,
			&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}

// --- Plans ---

const planColumns = `p.id, p.name, p.description, p.price_per_month_cents, p.max_users, p.max_storage_gb,
	p.has_api_access, p.has_advanced_reporting, p.is_active, p.created_at, p.updated_at, p.deleted_at`

func planDest(p *models.Plan) []any {
	return []any{&p.ID, &p.Name, &p.Description, &p.PricePerMonthCents, &p.MaxUsers, &p.MaxStorageGB,
		&p.HasAPIAccess, &p.HasAdvancedReporting, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt}
}

func (s *PostgresStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	s.stamp(&p.Audit)
	_, err := s.db.Exec(ctx,
		`INSERT INTO plans (id, name, description, price_per_month_cents, max_users, max_storage_gb,
		   has_api_access, has_advanced_reporting, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Description, p.PricePerMonthCents, p.MaxUsers, p.MaxStorageGB,
		p.HasAPIAccess, p.HasAdvancedReporting, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var p models.Plan
	err := s.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans p WHERE p.id = $1 AND `+notDeleted("p"), id,
	).Scan(planDest(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans p WHERE ` + notDeleted("p")
	if activeOnly {
		query += ` AND p.is_active`
	}
	query += ` ORDER BY p.price_per_month_cents, p.name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []*models.Plan{}
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(planDest(&p)...); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, p *models.Plan) error {
	s.stamp(&p.Audit)
	tag, err := s.db.Exec(ctx,
		`UPDATE plans SET name = $2, description = $3, price_per_month_cents = $4, max_users = $5,
		   max_storage_gb = $6, has_api_access = $7, has_advanced_reporting = $8, is_active = $9, updated_at = $10
		 WHERE id = $1 AND `+notDeleted(""),
		p.ID, p.Name, p.Description, p.PricePerMonthCents, p.MaxUsers,
		p.MaxStorageGB, p.HasAPIAccess, p.HasAdvancedReporting, p.IsActive, p.UpdatedAt)
	if isDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return affected("update plan", tag, err)
}

func (s *PostgresStore) CountPlans(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM plans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	return n, nil
}

// --- Subscriptions ---

const subscriptionSelect = `SELECT s.id, s.tenant_id, s.plan_id, s.start_date, s.end_date, s.status, s.auto_renew,
	s.payment_customer_id, s.payment_subscription_id, s.payment_method_id, s.expiry_notice_at,
	s.created_at, s.updated_at, s.deleted_at, ` + planColumns + `
	FROM subscriptions s JOIN plans p ON p.id = s.plan_id`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var (
		sub    models.Subscription
		plan   models.Plan
		status string
	)
	dest := []any{&sub.ID, &sub.TenantID, &sub.PlanID, &sub.StartDate, &sub.EndDate, &status, &sub.AutoRenew,
		&sub.PaymentCustomerID, &sub.PaymentSubscriptionID, &sub.PaymentMethodID, &sub.ExpiryNoticeAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.DeletedAt}
	if err := row.Scan(append(dest, planDest(&plan)...)...); err != nil {
		return nil, err
	}
	sub.Status = models.SubscriptionStatus(status)
	sub.Plan = &plan
	return &sub, nil
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, op, where, order string, args []any) ([]*models.Subscription, error) {
	rows, err := s.db.Query(ctx, subscriptionSelect+` WHERE `+where+` ORDER BY `+order, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	subs := []*models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if !FilterFor(ctx).Allows(&sub.TenantID, nil) {
		return ErrNotFound
	}
	return s.insertSubscription(ctx, sub)
}

func (s *PostgresStore) insertSubscription(ctx context.Context, sub *models.Subscription) error {
	s.stamp(&sub.Audit)
	_, err := s.db.Exec(ctx,
		`INSERT INTO subscriptions (id, tenant_id, plan_id, start_date, end_date, status, auto_renew,
		   payment_customer_id, payment_subscription_id, payment_method_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sub.ID, sub.TenantID, sub.PlanID, sub.StartDate, sub.EndDate, string(sub.Status), sub.AutoRenew,
		sub.PaymentCustomerID, sub.PaymentSubscriptionID, sub.PaymentMethodID, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	pred, args := FilterFor(ctx).SQL("s", []any{id})
	sub, err := scanSubscription(s.db.QueryRow(ctx, subscriptionSelect+` WHERE s.id = $1 AND `+pred, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	pred, args := FilterFor(ctx).SQL("s", []any{tenantID, string(models.StatusActive), string(models.StatusTrial)})
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		subscriptionSelect+` WHERE s.tenant_id = $1 AND s.status IN ($2, $3) AND `+pred+`
		 ORDER BY s.start_date DESC LIMIT 1`, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, tenantID uuid.UUID) ([]*models.Subscription, error) {
	pred, args := FilterFor(ctx).SQL("s", []any{tenantID})
	return s.querySubscriptions(ctx, "list subscriptions",
		`s.tenant_id = $1 AND `+pred, `s.start_date DESC`, args)
}

// ListExpiredSubscriptions returns Active or Trial subscriptions whose end
// date is before now.
func (s *PostgresStore) ListExpiredSubscriptions(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	pred, args := FilterFor(ctx).SQL("s", []any{now.UTC(), string(models.StatusActive), string(models.StatusTrial)})
	return s.querySubscriptions(ctx, "list expired subscriptions",
		`s.end_date < $1 AND s.status IN ($2, $3) AND `+pred, `s.end_date`, args)
}

// ListExpiringSubscriptions returns Active or Trial subscriptions ending
// within the window that have not yet been sent an expiry notice.
func (s *PostgresStore) ListExpiringSubscriptions(ctx context.Context, now time.Time, within time.Duration) ([]*models.Subscription, error) {
	now = now.UTC()
	pred, args := FilterFor(ctx).SQL("s", []any{now, now.Add(within), string(models.StatusActive), string(models.StatusTrial)})
	return s.querySubscriptions(ctx, "list expiring subscriptions",
		`s.end_date >= $1 AND s.end_date < $2 AND s.status IN ($3, $4) AND s.expiry_notice_at IS NULL AND `+pred,
		`s.end_date`, args)
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.stamp(&sub.Audit)
	pred, args := FilterFor(ctx).SQL("", []any{sub.ID, sub.StartDate, sub.EndDate, string(sub.Status), sub.AutoRenew,
		sub.PaymentCustomerID, sub.PaymentSubscriptionID, sub.PaymentMethodID, sub.ExpiryNoticeAt, sub.UpdatedAt})
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions SET start_date = $2, end_date = $3, status = $4, auto_renew = $5,
		   payment_customer_id = $6, payment_subscription_id = $7, payment_method_id = $8,
		   expiry_notice_at = $9, updated_at = $10
		 WHERE id = $1 AND `+pred, args...)
	return affected("update subscription", tag, err)
}

func (s *PostgresStore) ReplaceActiveSubscription(ctx context.Context, next *models.Subscription) ([]uuid.UUID, error) {
	filter := FilterFor(ctx)
	if !filter.Allows(&next.TenantID, nil) {
		return nil, ErrNotFound
	}

	var cancelled []uuid.UUID
	err := s.InTx(ctx, func(tx Store) error {
		ts := tx.(*PostgresStore)

		var locked uuid.UUID
		err := ts.db.QueryRow(ctx,
			`SELECT id FROM tenants WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, next.TenantID,
		).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock tenant: %w", err)
		}

		pred, args := filter.SQL("", []any{next.TenantID, string(models.StatusActive),
			string(models.StatusCancelled), ts.now().UTC()})
		rows, err := ts.db.Query(ctx,
			`UPDATE subscriptions SET status = $3, auto_renew = FALSE, updated_at = $4
			 WHERE tenant_id = $1 AND status = $2 AND `+pred+` RETURNING id`, args...)
		if err != nil {
			return fmt.Errorf("cancel active subscriptions: %w", err)
		}
		cancelled, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("cancel active subscriptions: %w", err)
		}

		return ts.insertSubscription(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// paginate normalizes page and limit into LIMIT and OFFSET values.
func paginate(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func affected(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		if isForeignKeyError(err) {
			return ErrForeignKey
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
