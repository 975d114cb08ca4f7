package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"frequent-buyer-system/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPOSClient only implements the lookups the reconciler helpers need.
type stubPOSClient struct {
	services.POSClient

	orderCustomers map[string]string
	lookupErr      error
	lookups        []string
}

func (s *stubPOSClient) FindCustomerForOrder(ctx context.Context, tenantID, orderID string) (string, error) {
	s.lookups = append(s.lookups, orderID)
	if s.lookupErr != nil {
		return "", s.lookupErr
	}
	return s.orderCustomers[orderID], nil
}

func TestResolveCustomerPrefersOrderField(t *testing.T) {
	pos := &stubPOSClient{orderCustomers: map[string]string{"ord-1": "cust-loyalty"}}
	r := &CatchupReconciler{POS: pos}

	customerID, err := r.resolveCustomer(context.Background(), "t-1", services.CompletedOrder{
		OrderID:          "ord-1",
		CustomerID:       "cust-order",
		TenderCustomerID: "cust-tender",
	})

	require.NoError(t, err)
	assert.Equal(t, "cust-order", customerID)
	assert.Empty(t, pos.lookups, "no remote lookup when the order names its customer")
}

func TestResolveCustomerFallsBackToTender(t *testing.T) {
	pos := &stubPOSClient{}
	r := &CatchupReconciler{POS: pos}

	customerID, err := r.resolveCustomer(context.Background(), "t-1", services.CompletedOrder{
		OrderID:          "ord-1",
		TenderCustomerID: "cust-tender",
	})

	require.NoError(t, err)
	assert.Equal(t, "cust-tender", customerID)
	assert.Empty(t, pos.lookups)
}

func TestResolveCustomerFallsBackToLoyaltyLookup(t *testing.T) {
	pos := &stubPOSClient{orderCustomers: map[string]string{"ord-1": "cust-loyalty"}}
	r := &CatchupReconciler{POS: pos}

	customerID, err := r.resolveCustomer(context.Background(), "t-1", services.CompletedOrder{OrderID: "ord-1"})

	require.NoError(t, err)
	assert.Equal(t, "cust-loyalty", customerID)
	assert.Equal(t, []string{"ord-1"}, pos.lookups)
}

func TestResolveCustomerPropagatesLookupError(t *testing.T) {
	pos := &stubPOSClient{lookupErr: errors.New("gateway down")}
	r := &CatchupReconciler{POS: pos}

	_, err := r.resolveCustomer(context.Background(), "t-1", services.CompletedOrder{OrderID: "ord-1"})

	assert.Error(t, err)
}

func TestHasQualifyingLine(t *testing.T) {
	allowed := map[string]bool{"var-1": true}
	order := services.CompletedOrder{
		ClosedAt: time.Now(),
		LineItems: []services.OrderLine{
			{VariationID: "var-9", Quantity: 1},
			{VariationID: "var-1", Quantity: 1},
		},
	}

	assert.True(t, hasQualifyingLine(order, allowed))
	assert.False(t, hasQualifyingLine(order, map[string]bool{}))
	assert.False(t, hasQualifyingLine(services.CompletedOrder{}, allowed))
}
