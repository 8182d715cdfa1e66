package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/service"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// UserManager is the user API the handlers depend on.
type UserManager interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error)
	Create(ctx context.Context, tenantID uuid.UUID, req service.CreateUserRequest) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewListUsersHandler returns an http.HandlerFunc for GET /api/v1/users.
// Super-admins pick the tenant with ?tenant_id=.
func NewListUsersHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := targetTenant(w, r, r.URL.Query().Get("tenant_id"))
		if !ok {
			return
		}
		users, err := svc.List(r.Context(), tenantID)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, users)
	}
}

// NewCreateUserHandler returns an http.HandlerFunc for POST /api/v1/users.
// A SuperAdmin account is created without a tenant.
func NewCreateUserHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			service.CreateUserRequest
			TenantID string `json:"tenant_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		var tenantID uuid.UUID
		if req.Role != models.RoleSuperAdmin {
			var ok bool
			if tenantID, ok = targetTenant(w, r, req.TenantID); !ok {
				return
			}
		}

		u, err := svc.Create(r.Context(), tenantID, req.CreateUserRequest)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Created(w, u)
	}
}

func NewGetUserHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		u, err := svc.Get(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

func NewDeleteUserHandler(svc UserManager) http.HandlerFunc {
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
