package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/billing"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
)

// CheckoutRequest starts a hosted payment page for a plan.
type CheckoutRequest struct {
	PlanID     uuid.UUID `json:"plan_id"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
}

// CheckoutSession is where the tenant admin completes payment.
type CheckoutSession struct {
	URL        string `json:"checkout_url"`
	CustomerID string `json:"customer_id"`
}

// CheckoutService opens provider checkout sessions. The provider customer is
// created once per tenant and remembered on its current subscription so
// renewals charge the same customer.
type CheckoutService struct {
	store    store.Store
	gateway  billing.PaymentGateway
	currency string
}

func NewCheckoutService(st store.Store, gateway billing.PaymentGateway, currency string) *CheckoutService {
	if currency == "" {
		currency = "usd"
	}
	return &CheckoutService{store: st, gateway: gateway, currency: currency}
}

func (s *CheckoutService) Start(ctx context.Context, tenantID uuid.UUID, req CheckoutRequest) (*CheckoutSession, error) {
	var v validator
	v.check(req.PlanID != uuid.Nil, "plan_id", "is required")
	v.check(isHTTPURL(req.SuccessURL), "success_url", "must be an absolute http(s) URL")
	v.check(isHTTPURL(req.CancelURL), "cancel_url", "must be an absolute http(s) URL")
	if err := v.err(); err != nil {
		return nil, err
	}
	if !tenancy.IsTenantAdmin(ctx, tenantID) {
		return nil, fmt.Errorf("start checkout: %w", ErrForbidden)
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, translate(err, "tenant")
	}
	plan, err := selectablePlan(ctx, s.store, req.PlanID)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}

	customerID := ""
	if current != nil {
		customerID = current.PaymentCustomerID
	}
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, billing.CustomerRequest{
			TenantID: tenant.ID.String(),
			Name:     tenant.Name,
			Email:    tenant.BillingEmail,
		})
		if err != nil {
			return nil, fmt.Errorf("create payment customer: %w", err)
		}
		if current != nil {
			current.PaymentCustomerID = customerID
			if err := s.store.UpdateSubscription(ctx, current); err != nil {
				return nil, translate(err, "subscription")
			}
		}
	}

	checkoutURL, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		CustomerID:  customerID,
		TenantID:    tenant.ID.String(),
		PlanID:      plan.ID.String(),
		PlanName:    plan.Name,
		AmountCents: plan.PricePerMonthCents,
		Currency:    s.currency,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	slog.InfoContext(ctx, "checkout session created", "tenant_id", tenantID, "plan", plan.Name)
	return &CheckoutSession{URL: checkoutURL, CustomerID: customerID}, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
