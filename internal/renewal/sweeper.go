// Package renewal runs the background pass that charges, renews, expires and
// warns about subscriptions whose period is ending.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/billing"
	"github.com/kiranshivaraju/tenantcore/internal/metrics"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

const (
	DefaultInterval       = 6 * time.Hour
	DefaultExpiringWithin = 7 * 24 * time.Hour
)

// Subscriptions is the lifecycle API the sweep drives.
type Subscriptions interface {
	ListExpired(ctx context.Context, now time.Time) ([]*models.Subscription, error)
	ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]*models.Subscription, error)
	Renew(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SubscriptionStatus) (*models.Subscription, error)
	MarkExpiryNotified(ctx context.Context, id uuid.UUID) error
}

// Tenants resolves the billing contact of a subscription.
type Tenants interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type Config struct {
	Interval       time.Duration
	ExpiringWithin time.Duration
	Currency       string
}

// Outcome is what the sweep did with one subscription.
type Outcome string

const (
	OutcomeRenewed  Outcome = "renewed"
	OutcomePastDue  Outcome = "past_due"
	OutcomeExpired  Outcome = "expired"
	OutcomeFailed   Outcome = "failed"
	OutcomeNotified Outcome = "notified"
)

// Report summarizes one pass.
type Report struct {
	Renewed  int
	PastDue  int
	Expired  int
	Failed   int
	Notified int
	// Err is set when the pass could not list its work.
	Err error
}

func (r *Report) add(o Outcome) {
	switch o {
	case OutcomeRenewed:
		r.Renewed++
	case OutcomePastDue:
		r.PastDue++
	case OutcomeExpired:
		r.Expired++
	case OutcomeFailed:
		r.Failed++
	case OutcomeNotified:
		r.Notified++
	}
	metrics.RenewalSweepItemsTotal.WithLabelValues(string(o)).Inc()
}

// Sweeper processes expired subscriptions one at a time. A failure on one
// subscription never stops the rest of the pass.
type Sweeper struct {
	subs     Subscriptions
	tenants  Tenants
	gateway  billing.PaymentGateway
	notifier billing.Notifier
	cfg      Config
	now      func() time.Time
}

func NewSweeper(subs Subscriptions, tenants Tenants, gateway billing.PaymentGateway, notifier billing.Notifier, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ExpiringWithin <= 0 {
		cfg.ExpiringWithin = DefaultExpiringWithin
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Sweeper{
		subs:     subs,
		tenants:  tenants,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run sweeps immediately and then once per interval. It blocks until ctx is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("renewal sweeper started", "interval", s.cfg.Interval)

	s.safeRunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("renewal sweeper stopped")
			return
		case <-ticker.C:
			s.safeRunOnce(ctx)
		}
	}
}

func (s *Sweeper) safeRunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in renewal sweep", "panic", r)
		}
	}()
	s.RunOnce(ctx)
}

// RunOnce performs a single pass: expired subscriptions first, then the
// expiring-soon notices.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	start := time.Now()
	ctx = tenancy.WithSystemScope(ctx)
	now := s.now().UTC()

	var report Report
	expired, err := s.subs.ListExpired(ctx, now)
	if err != nil {
		slog.Error("renewal sweep: list expired subscriptions failed", "error", err)
		report.Err = err
		return report
	}

	for i, sub := range expired {
		if ctx.Err() != nil {
			slog.Info("renewal sweep interrupted", "remaining", len(expired)-i)
			report.Err = ctx.Err()
			return report
		}
		outcome, err := s.process(ctx, sub)
		if err != nil {
			slog.Error("renewal sweep: subscription failed",
				"subscription_id", sub.ID, "tenant_id", sub.TenantID, "error", err)
		}
		report.add(outcome)
	}

	if err := s.warnExpiring(ctx, now, &report); err != nil {
		report.Err = err
	}

	elapsed := time.Since(start)
	metrics.RenewalSweepDuration.Observe(elapsed.Seconds())
	if report.Err == nil {
		metrics.RenewalLastSuccess.SetToCurrentTime()
	}
	slog.Info("renewal sweep complete",
		"renewed", report.Renewed,
		"past_due", report.PastDue,
		"expired", report.Expired,
		"failed", report.Failed,
		"notified", report.Notified,
		"duration_ms", elapsed.Milliseconds(),
	)
	return report
}

// process handles one expired subscription. Panics are converted into
// errors so the pass can continue.
func (s *Sweeper) process(ctx context.Context, sub *models.Subscription) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !sub.AutoRenew {
		if _, err := s.subs.UpdateStatus(ctx, sub.ID, models.StatusExpired); err != nil {
			return OutcomeFailed, fmt.Errorf("mark expired: %w", err)
		}
		s.notify(ctx, sub, s.notifier.SubscriptionExpired)
		slog.Info("subscription expired", "subscription_id", sub.ID, "tenant_id", sub.TenantID)
		return OutcomeExpired, nil
	}

	if sub.Plan == nil {
		return OutcomeFailed, errors.New("subscription has no plan loaded")
	}

	paid, chargeErr := s.charge(ctx, sub)
	if chargeErr != nil {
		slog.Warn("renewal charge errored",
			"subscription_id", sub.ID, "tenant_id", sub.TenantID, "error", chargeErr)
	}
	if paid {
		if _, err := s.subs.Renew(ctx, sub.ID); err != nil {
			return OutcomeFailed, fmt.Errorf("renew: %w", err)
		}
		slog.Info("subscription renewed", "subscription_id", sub.ID, "tenant_id", sub.TenantID)
		return OutcomeRenewed, nil
	}

	if _, err := s.subs.UpdateStatus(ctx, sub.ID, models.StatusPastDue); err != nil {
		return OutcomeFailed, fmt.Errorf("mark past due: %w", err)
	}
	s.notify(ctx, sub, s.notifier.PaymentFailed)
	slog.Warn("subscription past due", "subscription_id", sub.ID, "tenant_id", sub.TenantID)
	return OutcomePastDue, nil
}

// charge bills one month of the subscription's plan. Free plans renew
// without a charge.
func (s *Sweeper) charge(ctx context.Context, sub *models.Subscription) (bool, error) {
	if sub.Plan.PricePerMonthCents == 0 {
		return true, nil
	}

	customerID := sub.PaymentCustomerID
	if customerID == "" {
		customerID = sub.TenantID.String()
	}
	return s.gateway.Charge(ctx, billing.ChargeRequest{
		CustomerID:      customerID,
		PaymentMethodID: sub.PaymentMethodID,
		AmountCents:     sub.Plan.PricePerMonthCents,
		Currency:        s.cfg.Currency,
		Description:     fmt.Sprintf("%s renewal", sub.Plan.Name),
		IdempotencyKey:  fmt.Sprintf("renewal-%s-%d", sub.ID, sub.EndDate.Unix()),
	})
}

func (s *Sweeper) warnExpiring(ctx context.Context, now time.Time, report *Report) error {
	expiring, err := s.subs.ListExpiring(ctx, now, s.cfg.ExpiringWithin)
	if err != nil {
		slog.Error("renewal sweep: list expiring subscriptions failed", "error", err)
		return err
	}
	for _, sub := range expiring {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.notify(ctx, sub, s.notifier.SubscriptionExpiring) {
			report.add(OutcomeFailed)
			continue
		}
		if err := s.subs.MarkExpiryNotified(ctx, sub.ID); err != nil {
			slog.Error("renewal sweep: mark expiry notified failed", "subscription_id", sub.ID, "error", err)
			report.add(OutcomeFailed)
			continue
		}
		report.add(OutcomeNotified)
	}
	return nil
}

// notify sends one subscription email to the tenant's billing contact.
// Failures are logged and reported as false.
func (s *Sweeper) notify(ctx context.Context, sub *models.Subscription, send func(context.Context, billing.SubscriptionNotice) error) bool {
	tenant, err := s.tenants.GetTenant(ctx, sub.TenantID)
	if err != nil {
		slog.Warn("notification skipped: tenant lookup failed", "tenant_id", sub.TenantID, "error", err)
		return false
	}

	n := billing.SubscriptionNotice{
		To:         tenant.BillingEmail,
		TenantName: tenant.Name,
		EndDate:    sub.EndDate,
		DaysLeft:   sub.DaysUntilExpiration(s.now()),
	}
	if sub.Plan != nil {
		n.PlanName = sub.Plan.Name
	}
	if err := send(ctx, n); err != nil {
		slog.Warn("notification failed", "subscription_id", sub.ID, "tenant_id", sub.TenantID, "error", err)
		return false
	}
	return true
}
