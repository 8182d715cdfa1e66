// Package billing holds the outbound payment and notification capabilities.
package billing

import (
	"context"
	"errors"
)

var ErrInvalidCharge = errors.New("billing: invalid charge request")

// PaymentGateway charges tenants through an external provider.
type PaymentGateway interface {
	// Charge attempts an off-session charge. A decline is reported as
	// (false, nil); transport and provider failures return an error.
	Charge(ctx context.Context, req ChargeRequest) (bool, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
}

type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Currency        string
	Description     string
	// IdempotencyKey keeps a retried charge from billing twice.
	IdempotencyKey string
}

func (r ChargeRequest) validate() error {
	if r.CustomerID == "" || r.Currency == "" || r.AmountCents < 0 {
		return ErrInvalidCharge
	}
	return nil
}

type CustomerRequest struct {
	TenantID string
	Name     string
	Email    string
}

type CheckoutRequest struct {
	CustomerID  string
	TenantID    string
	PlanID      string
	PlanName    string
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
}
