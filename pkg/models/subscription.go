package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Subscription ties a tenant to a plan for a period.
type Subscription struct {
	ID                    uuid.UUID          `db:"id"                         json:"id"`
	TenantID              uuid.UUID          `db:"tenant_id"                  json:"tenant_id"`
	PlanID                uuid.UUID          `db:"plan_id"                    json:"plan_id"`
	StartDate             time.Time          `db:"start_date"                 json:"start_date"`
	EndDate               time.Time          `db:"end_date"                   json:"end_date"`
	Status                SubscriptionStatus `db:"status"                     json:"status"`
	AutoRenew             bool               `db:"auto_renew"                 json:"auto_renew"`
	PaymentCustomerID     string             `db:"payment_customer_id"        json:"-"`
	PaymentSubscriptionID string             `db:"payment_subscription_id"    json:"-"`
	PaymentMethodID       string             `db:"payment_method_id"          json:"-"`
	ExpiryNoticeAt        *time.Time         `db:"expiry_notice_at"           json:"-"`
	Audit

	// Plan is populated by queries that join the plan row.
	Plan *Plan `db:"-" json:"plan,omitempty"`
}

// IsExpired reports whether the period has ended. A cancelled subscription
// is never expired.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.EndDate.Before(now) && s.Status != StatusCancelled
}

// IsCurrentlyActive is true for an Active subscription whose period has not
// ended.
func (s *Subscription) IsCurrentlyActive(now time.Time) bool {
	return s.Status == StatusActive && s.EndDate.After(now)
}

// DaysUntilExpiration is the whole number of days left, rounded up, and zero
// once the period has ended.
func (s *Subscription) DaysUntilExpiration(now time.Time) int {
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// MarshalJSON adds the fields derived from the period as of now.
func (s Subscription) MarshalJSON() ([]byte, error) {
	return s.marshalAt(time.Now())
}

func (s Subscription) marshalAt(now time.Time) ([]byte, error) {
	type plain Subscription
	return json.Marshal(struct {
		plain
		IsExpired           bool `json:"is_expired"`
		IsCurrentlyActive   bool `json:"is_currently_active"`
		DaysUntilExpiration int  `json:"days_until_expiration"`
	}{
		plain:               plain(s),
		IsExpired:           s.IsExpired(now),
		IsCurrentlyActive:   s.IsCurrentlyActive(now),
		DaysUntilExpiration: s.DaysUntilExpiration(now),
	})
}
