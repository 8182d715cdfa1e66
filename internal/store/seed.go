package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// DefaultPlans is the plan catalogue seeded into an empty database.
func DefaultPlans() []*models.Plan {
	return []*models.Plan{
		{Name: "Free Trial", Description: "30-day free trial with limited features",
			PricePerMonthCents: 0, MaxUsers: 3, MaxStorageGB: 1, IsActive: true},
		{Name: "Basic", Description: "Perfect for small teams",
			PricePerMonthCents: 2999, MaxUsers: 10, MaxStorageGB: 10, HasAPIAccess: true, IsActive: true},
		{Name: "Professional", Description: "For growing businesses",
			PricePerMonthCents: 9999, MaxUsers: 50, MaxStorageGB: 100, HasAPIAccess: true,
			HasAdvancedReporting: true, IsActive: true},
		{Name: "Enterprise", Description: "Unlimited everything",
			PricePerMonthCents: 29999, MaxUsers: 999, MaxStorageGB: 1000, HasAPIAccess: true,
			HasAdvancedReporting: true, IsActive: true},
	}
}

// SeedPlans inserts DefaultPlans when the plans table is empty. It returns the
// number of plans inserted.
func SeedPlans(ctx context.Context, s Store) (int, error) {
	n, err := s.CountPlans(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	plans := DefaultPlans()
	err = s.InTx(ctx, func(tx Store) error {
		for _, p := range plans {
			p.ID = uuid.New()
			if err := tx.CreatePlan(ctx, p); err != nil {
				return fmt.Errorf("seed plan %q: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(plans), nil
}
