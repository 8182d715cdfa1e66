package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway is an in-memory PaymentGateway for development and tests.
// Charges succeed unless the customer has been marked as declining.
type FakeGateway struct {
	mu        sync.Mutex
	declining map[string]bool
	charges   []ChargeRequest
	failWith  error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{declining: make(map[string]bool)}
}

// Decline makes every later charge for customerID fail.
func (g *FakeGateway) Decline(customerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declining[customerID] = true
}

// FailWith makes every later charge return err. A nil err clears it.
func (g *FakeGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

// Charges returns the charges attempted so far.
func (g *FakeGateway) Charges() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChargeRequest(nil), g.charges...)
}

func (g *FakeGateway) Charge(_ context.Context, req ChargeRequest) (bool, error) {
	if err := req.validate(); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	if g.failWith != nil {
		return false, g.failWith
	}
	return !g.declining[req.CustomerID], nil
}

func (g *FakeGateway) CreateCustomer(_ context.Context, req CustomerRequest) (string, error) {
	return "cus_fake_" + req.TenantID, nil
}

func (g *FakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (string, error) {
	return fmt.Sprintf("%s?session_id=cs_fake_%s", req.SuccessURL, uuid.NewString()), nil
}
