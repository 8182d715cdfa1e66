package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_PeriodState(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(36 * time.Hour)

	tests := []struct {
		name         string
		status       SubscriptionStatus
		end          time.Time
		wantExpired  bool
		wantActive   bool
		wantDaysLeft int
	}{
		{"active in period", StatusActive, future, false, true, 2},
		{"active past end", StatusActive, past, true, false, 0},
		{"trial in period", StatusTrial, future, false, false, 2},
		{"trial past end", StatusTrial, past, true, false, 0},
		{"past due past end", StatusPastDue, past, true, false, 0},
		{"expired past end", StatusExpired, past, true, false, 0},
		{"cancelled in period", StatusCancelled, future, false, false, 2},
		{"cancelled past end", StatusCancelled, past, false, false, 0},
		{"active ending now", StatusActive, now, false, false, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &Subscription{Status: tc.status, StartDate: past.Add(-24 * time.Hour), EndDate: tc.end}
			assert.Equal(t, tc.wantExpired, s.IsExpired(now))
			assert.Equal(t, tc.wantActive, s.IsCurrentlyActive(now))
			assert.Equal(t, tc.wantDaysLeft, s.DaysUntilExpiration(now))
		})
	}
}

func TestSubscription_JSONIncludesDerivedFields(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := Subscription{
		ID:                uuid.New(),
		TenantID:          uuid.New(),
		PlanID:            uuid.New(),
		StartDate:         now.AddDate(0, 0, -20),
		EndDate:           now.AddDate(0, 0, 10),
		Status:            StatusActive,
		AutoRenew:         true,
		PaymentCustomerID: "cus_secret",
		Plan:              &Plan{Name: "Pro"},
	}

	raw, err := s.marshalAt(now)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, s.ID.String(), got["id"])
	assert.Equal(t, "active", got["status"])
	assert.Equal(t, true, got["is_currently_active"])
	assert.Equal(t, false, got["is_expired"])
	assert.EqualValues(t, 10, got["days_until_expiration"])
	assert.Contains(t, got, "plan")
	assert.Contains(t, got, "created_at")
	assert.NotContains(t, string(raw), "cus_secret")

	// Pointers marshal through the value method too.
	raw, err = json.Marshal(&s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"is_currently_active"`)
}
