package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/cache"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
	"golang.org/x/sync/singleflight"
)

const activePlansTTL = 10 * time.Minute

// PlanRequest holds the editable plan fields.
type PlanRequest struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	PricePerMonthCents   int64  `json:"price_per_month_cents"`
	MaxUsers             int    `json:"max_users"`
	MaxStorageGB         int    `json:"max_storage_gb"`
	HasAPIAccess         bool   `json:"has_api_access"`
	HasAdvancedReporting bool   `json:"has_advanced_reporting"`
}

func (r *PlanRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	var v validator
	v.required(r.Name, "name")
	v.maxLen(r.Name, maxTenantNameLen, "name")
	v.check(r.PricePerMonthCents >= 0, "price_per_month_cents", "must not be negative")
	v.check(r.MaxUsers > 0, "max_users", "must be positive")
	v.check(r.MaxStorageGB >= 0, "max_storage_gb", "must not be negative")
	return v.err()
}

func (r *PlanRequest) apply(p *models.Plan) {
	p.Name = r.Name
	p.Description = strings.TrimSpace(r.Description)
	p.PricePerMonthCents = r.PricePerMonthCents
	p.MaxUsers = r.MaxUsers
	p.MaxStorageGB = r.MaxStorageGB
	p.HasAPIAccess = r.HasAPIAccess
	p.HasAdvancedReporting = r.HasAdvancedReporting
}

// PlanService manages the plan catalogue. The list of active plans is served
// from the cache and rebuilt once per miss.
type PlanService struct {
	store store.Store
	cache cache.Cache
	group singleflight.Group
}

func NewPlanService(st store.Store, ca cache.Cache) *PlanService {
	return &PlanService{store: st, cache: ca}
}

// ListActive returns the plans open for selection, cheapest first.
func (s *PlanService) ListActive(ctx context.Context) ([]*models.Plan, error) {
	key := cache.ActivePlansKey()
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "plan cache read failed", "error", err)
	} else if ok {
		var plans []*models.Plan
		if err := json.Unmarshal(raw, &plans); err == nil {
			return plans, nil
		}
		slog.WarnContext(ctx, "plan cache entry unreadable", "key", key)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		plans, err := s.store.ListPlans(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("list active plans: %w", err)
		}
		if raw, err := json.Marshal(plans); err == nil {
			if err := s.cache.Set(ctx, key, raw, activePlansTTL); err != nil {
				slog.WarnContext(ctx, "plan cache write failed", "error", err)
			}
		}
		return plans, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Plan), nil
}

// List returns every plan, including deactivated ones.
func (s *PlanService) List(ctx context.Context) ([]*models.Plan, error) {
	plans, err := s.store.ListPlans(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (s *PlanService) Get(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, translate(err, "plan")
	}
	return p, nil
}

func (s *PlanService) Create(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p := &models.Plan{ID: uuid.New(), IsActive: true}
	req.apply(p)
	if err := s.store.CreatePlan(ctx, p); err != nil {
		return nil, translate(err, "plan")
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *PlanService) Update(ctx context.Context, id uuid.UUID, req PlanRequest) (*models.Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, translate(err, "plan")
	}
	req.apply(p)
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return nil, translate(err, "plan")
	}
	s.invalidate(ctx)
	return p, nil
}

// Deactivate hides the plan from new subscriptions. Existing subscriptions
// keep it.
func (s *PlanService) Deactivate(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, translate(err, "plan")
	}
	if !p.IsActive {
		return p, nil
	}
	p.IsActive = false
	if err := s.store.UpdatePlan(ctx, p); err != nil {
		return nil, translate(err, "plan")
	}
	s.invalidate(ctx)
	return p, nil
}

func (s *PlanService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, cache.ActivePlansKey()); err != nil {
		slog.WarnContext(ctx, "plan cache invalidation failed", "error", err)
	}
}
