package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/service"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// SubscriptionManager is the subscription API the handlers depend on.
type SubscriptionManager interface {
	GetActive(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Subscription, error)
	Upgrade(ctx context.Context, tenantID uuid.UUID, req service.UpgradeRequest) (*models.Subscription, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.Subscription, error)
}

// Checkout opens a hosted payment page.
type Checkout interface {
	Start(ctx context.Context, tenantID uuid.UUID, req service.CheckoutRequest) (*service.CheckoutSession, error)
}

// NewCurrentSubscriptionHandler returns an http.HandlerFunc for
// GET /api/v1/subscriptions/current.
func NewCurrentSubscriptionHandler(svc SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := targetTenant(w, r, "")
		if !ok {
			return
		}
		sub, err := svc.GetActive(r.Context(), tenantID)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, sub)
	}
}

// NewGetSubscriptionHandler returns an http.HandlerFunc for
// GET /api/v1/subscriptions/{id}.
func NewGetSubscriptionHandler(svc SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		sub, err := svc.Get(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, sub)
	}
}

// NewTenantSubscriptionsHandler returns an http.HandlerFunc for
// GET /api/v1/subscriptions/tenant/{tenantID}. Callers outside the tenant get
// an empty list.
func NewTenantSubscriptionsHandler(svc SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := uuidParam(w, r, "tenantID")
		if !ok {
			return
		}
		subs, err := svc.ListForTenant(r.Context(), tenantID)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, subs)
	}
}

// NewUpgradeSubscriptionHandler returns an http.HandlerFunc for
// POST /api/v1/subscriptions/upgrade.
func NewUpgradeSubscriptionHandler(svc SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			service.UpgradeRequest
			TenantID string `json:"tenant_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		tenantID, ok := targetTenant(w, r, req.TenantID)
		if !ok {
			return
		}
		sub, err := svc.Upgrade(r.Context(), tenantID, req.UpgradeRequest)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Created(w, sub)
	}
}

// NewCancelSubscriptionHandler returns an http.HandlerFunc for
// POST /api/v1/subscriptions/{id}/cancel.
func NewCancelSubscriptionHandler(svc SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		sub, err := svc.Cancel(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, sub)
	}
}

// NewExpiredSubscriptionsHandler returns an http.HandlerFunc for
// GET /api/v1/subscriptions/expired.
func NewExpiredSubscriptionsHandler(svc SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := svc.ListExpired(r.Context(), time.Now())
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, subs)
	}
}

// NewCheckoutHandler returns an http.HandlerFunc for
// POST /api/v1/subscriptions/checkout.
func NewCheckoutHandler(svc Checkout) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			service.CheckoutRequest
			TenantID string `json:"tenant_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		tenantID, ok := targetTenant(w, r, req.TenantID)
		if !ok {
			return
		}
		session, err := svc.Start(r.Context(), tenantID, req.CheckoutRequest)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Created(w, session)
	}
}
