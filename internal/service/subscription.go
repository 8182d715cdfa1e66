package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/metrics"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// TrialPeriod is the length of a new trial.
const TrialPeriod = 30 * 24 * time.Hour

// Term is the billing period of a paid subscription.
type Term string

const (
	TermMonthly Term = "monthly"
	TermYearly  Term = "yearly"
)

func (t Term) end(start time.Time) time.Time {
	if t == TermYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// UpgradeRequest moves a tenant onto a new paid plan.
type UpgradeRequest struct {
	PlanID          uuid.UUID `json:"plan_id"`
	PaymentMethodID string    `json:"payment_method_id"`
}

// SubscriptionService drives the subscription lifecycle.
type SubscriptionService struct {
	store store.Store
	locks *keyedMutex
	now   func() time.Time
}

func NewSubscriptionService(st store.Store) *SubscriptionService {
	return &SubscriptionService{store: st, locks: newKeyedMutex(), now: time.Now}
}

// CreateTrial starts a 30-day trial of planID without auto-renewal.
func (s *SubscriptionService) CreateTrial(ctx context.Context, tenantID, planID uuid.UUID) (*models.Subscription, error) {
	return s.createTrial(ctx, s.store, tenantID, planID)
}

// createTrial runs against st so provisioning can reuse it inside its
// transaction.
func (s *SubscriptionService) createTrial(ctx context.Context, st store.Store, tenantID, planID uuid.UUID) (*models.Subscription, error) {
	plan, err := selectablePlan(ctx, st, planID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		ID:        uuid.New(),
		TenantID:  tenantID,
		PlanID:    plan.ID,
		StartDate: now,
		EndDate:   now.Add(TrialPeriod),
		Status:    models.StatusTrial,
		AutoRenew: false,
	}
	if err := st.CreateSubscription(ctx, sub); err != nil {
		return nil, translate(err, "subscription")
	}
	sub.Plan = plan
	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(models.StatusTrial)).Inc()
	return sub, nil
}

// CreateActive starts a paid subscription for term with auto-renewal on. Any
// Active subscription the tenant already has is cancelled first.
func (s *SubscriptionService) CreateActive(ctx context.Context, tenantID, planID uuid.UUID, term Term) (*models.Subscription, error) {
	if term != TermMonthly && term != TermYearly {
		return nil, invalid("term", "must be monthly or yearly")
	}
	return s.replace(ctx, tenantID, planID, term, "")
}

// Upgrade cancels the tenant's Active subscription and starts a monthly
// Active subscription on the new plan. Concurrent upgrades of one tenant are
// serialized, so the tenant never ends up with two Active subscriptions.
func (s *SubscriptionService) Upgrade(ctx context.Context, tenantID uuid.UUID, req UpgradeRequest) (*models.Subscription, error) {
	if req.PlanID == uuid.Nil {
		return nil, invalid("plan_id", "is required")
	}
	return s.replace(ctx, tenantID, req.PlanID, TermMonthly, req.PaymentMethodID)
}

func (s *SubscriptionService) replace(ctx context.Context, tenantID, planID uuid.UUID, term Term, paymentMethodID string) (*models.Subscription, error) {
	unlock := s.locks.Lock(tenantID)
	defer unlock()

	plan, err := selectablePlan(ctx, s.store, planID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	next := &models.Subscription{
		ID:              uuid.New(),
		TenantID:        tenantID,
		PlanID:          plan.ID,
		StartDate:       now,
		EndDate:         term.end(now),
		Status:          models.StatusActive,
		AutoRenew:       true,
		PaymentMethodID: paymentMethodID,
	}
	if current, err := s.store.GetCurrentSubscription(ctx, tenantID); err == nil {
		next.PaymentCustomerID = current.PaymentCustomerID
	}

	cancelled, err := s.store.ReplaceActiveSubscription(ctx, next)
	if err != nil {
		return nil, translate(err, "tenant")
	}
	next.Plan = plan

	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(models.StatusCancelled)).Add(float64(len(cancelled)))
	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(models.StatusActive)).Inc()
	slog.InfoContext(ctx, "subscription started",
		"tenant_id", tenantID, "subscription_id", next.ID, "plan", plan.Name,
		"term", term, "cancelled", len(cancelled))
	return next, nil
}

// Cancel moves a subscription to Cancelled and turns auto-renewal off.
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.update(ctx, id, func(sub *models.Subscription) {
		sub.Status = models.StatusCancelled
		sub.AutoRenew = false
	})
}

// UpdateStatus sets status without checking the transition.
func (s *SubscriptionService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus) (*models.Subscription, error) {
	if !status.Valid() {
		return nil, invalid("status", "is not a known subscription status")
	}
	return s.update(ctx, id, func(sub *models.Subscription) {
		sub.Status = status
	})
}

// Renew starts a new one-month Active period from now.
func (s *SubscriptionService) Renew(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	now := s.now().UTC()
	return s.update(ctx, id, func(sub *models.Subscription) {
		sub.StartDate = now
		sub.EndDate = TermMonthly.end(now)
		sub.Status = models.StatusActive
		sub.ExpiryNoticeAt = nil
	})
}

// MarkExpiryNotified records that the expiring-soon notice went out.
func (s *SubscriptionService) MarkExpiryNotified(ctx context.Context, id uuid.UUID) error {
	now := s.now().UTC()
	_, err := s.update(ctx, id, func(sub *models.Subscription) {
		sub.ExpiryNoticeAt = &now
	})
	return err
}

func (s *SubscriptionService) update(ctx context.Context, id uuid.UUID, mutate func(*models.Subscription)) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, translate(err, "subscription")
	}
	before := sub.Status
	mutate(sub)
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, translate(err, "subscription")
	}
	if sub.Status != before {
		metrics.SubscriptionTransitionsTotal.WithLabelValues(string(sub.Status)).Inc()
	}
	return sub, nil
}

// ListExpired returns Active and Trial subscriptions whose end has passed.
func (s *SubscriptionService) ListExpired(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	subs, err := s.store.ListExpiredSubscriptions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}
	return subs, nil
}

// ListExpiring returns Active and Trial subscriptions ending within the
// window that have not been sent an expiry notice.
func (s *SubscriptionService) ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]*models.Subscription, error) {
	subs, err := s.store.ListExpiringSubscriptions(ctx, now, within)
	if err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	return subs, nil
}

// GetActive returns the tenant's current Active or Trial subscription.
func (s *SubscriptionService) GetActive(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if err != nil {
		return nil, translate(err, "subscription")
	}
	return sub, nil
}

func (s *SubscriptionService) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Subscription, error) {
	subs, err := s.store.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, translate(err, "subscription")
	}
	return sub, nil
}

// selectablePlan loads a plan that is open for new subscriptions.
func selectablePlan(ctx context.Context, st store.Store, planID uuid.UUID) (*models.Plan, error) {
	plan, err := st.GetPlan(ctx, planID)
	if err != nil {
		return nil, translate(err, "plan")
	}
	if !plan.IsActive {
		return nil, invalid("plan_id", "plan is no longer available")
	}
	return plan, nil
}

// keyedMutex hands out one lock per tenant and forgets it once released.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
