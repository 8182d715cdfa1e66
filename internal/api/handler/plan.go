package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/service"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// PlanManager is the plan catalogue API the handlers depend on.
type PlanManager interface {
	ListActive(ctx context.Context) ([]*models.Plan, error)
	List(ctx context.Context) ([]*models.Plan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	Create(ctx context.Context, req service.PlanRequest) (*models.Plan, error)
	Update(ctx context.Context, id uuid.UUID, req service.PlanRequest) (*models.Plan, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// NewListActivePlansHandler returns an http.HandlerFunc for GET /api/v1/plans/active.
func NewListActivePlansHandler(svc PlanManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.ListActive(r.Context())
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, plans)
	}
}

// NewListPlansHandler returns an http.HandlerFunc for GET /api/v1/plans.
func NewListPlansHandler(svc PlanManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.List(r.Context())
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, plans)
	}
}

func NewGetPlanHandler(svc PlanManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.Get(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, p)
	}
}

func NewCreatePlanHandler(svc PlanManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.PlanRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.Create(r.Context(), req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.Created(w, p)
	}
}

func NewUpdatePlanHandler(svc PlanManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req service.PlanRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.Update(r.Context(), id, req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, p)
	}
}

func NewDeactivatePlanHandler(svc PlanManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.Deactivate(r.Context(), id)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.JSON(w, p)
	}
}
