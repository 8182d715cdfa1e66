package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/service"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// TenantManager is the tenant API the handlers depend on.
type TenantManager interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.ProvisionResult, error)
	Provision(ctx context.Context, req service.ProvisionRequest) (*service.ProvisionResult, error)
	List(ctx context.Context, filter store.TenantFilter) ([]*models.Tenant, int, error)
	Get(ctx context.Context, id uuid.UUID) (*service.TenantDetail, error)
	GetByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	Update(ctx context.Context, id uuid.UUID, req service.UpdateTenantRequest) (*service.TenantDetail, error)
	Activate(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	RegenerateAPIKey(ctx context.Context, id uuid.UUID) (*service.APIKeyResult, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// tenantSummary is the public view of a tenant.
type tenantSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Domain   string    `json:"domain"`
	IsActive bool      `json:"is_active"`
}

// NewRegisterTenantHandler returns an http.HandlerFunc for
// POST /api/v1/tenants/register.
func NewRegisterTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := svc.Register(r.Context(), req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Created(w, result)
	}
}

// NewProvisionTenantHandler returns an http.HandlerFunc for POST /api/v1/tenants.
func NewProvisionTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.ProvisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := svc.Provision(r.Context(), req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Created(w, result)
	}
}

// NewListTenantsHandler returns an http.HandlerFunc for GET /api/v1/tenants.
func NewListTenantsHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit := pagination(r)
		tenants, total, err := svc.List(r.Context(), store.TenantFilter{Page: page, Limit: limit})
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Collection(w, tenants, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

// NewGetTenantHandler returns an http.HandlerFunc for GET /api/v1/tenants/{id}.
func NewGetTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		t, err := svc.Get(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}

// NewGetTenantByDomainHandler returns an http.HandlerFunc for
// GET /api/v1/tenants/domain/{domain}.
func NewGetTenantByDomainHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.GetByDomain(r.Context(), chi.URLParam(r, "domain"))
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, tenantSummary{ID: t.ID, Name: t.Name, Domain: t.Domain, IsActive: t.IsActive})
	}
}

// NewUpdateTenantHandler returns an http.HandlerFunc for PUT /api/v1/tenants/{id}.
func NewUpdateTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req service.UpdateTenantRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := svc.Update(r.Context(), id, req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}

// NewSetTenantActiveHandler returns an http.HandlerFunc for
// POST /api/v1/tenants/{id}/activate or /deactivate.
func NewSetTenantActiveHandler(svc TenantManager, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var err error
		if active {
			err = svc.Activate(r.Context(), id)
		} else {
			err = svc.Deactivate(r.Context(), id)
		}
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"id": id, "is_active": active})
	}
}

// NewDeleteTenantHandler returns an http.HandlerFunc for DELETE /api/v1/tenants/{id}.
func NewDeleteTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			response.FromError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewRegenerateAPIKeyHandler returns an http.HandlerFunc for
// POST /api/v1/tenants/{id}/api-key/regenerate.
func NewRegenerateAPIKeyHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		key, err := svc.RegenerateAPIKey(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, key)
	}
}

// NewRevokeAPIKeyHandler returns an http.HandlerFunc for
// POST /api/v1/tenants/{id}/api-key/revoke.
func NewRevokeAPIKeyHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.RevokeAPIKey(r.Context(), id); err != nil {
			response.FromError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
