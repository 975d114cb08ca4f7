package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"frequent-buyer-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePOSClient records calls and fails on demand.
type fakePOSClient struct {
	calls []string

	failCreateGroup    bool
	failAddCustomer    bool
	failCreateDiscount bool

	catalogPrice int64
}

func (f *fakePOSClient) CreateCustomerGroup(ctx context.Context, tenantID, name string) (string, error) {
	f.calls = append(f.calls, "create_group:"+name)
	if f.failCreateGroup {
		return "", errors.New("group create failed")
	}
	return "grp-1", nil
}

func (f *fakePOSClient) DeleteCustomerGroup(ctx context.Context, tenantID, groupID string) error {
	f.calls = append(f.calls, "delete_group:"+groupID)
	return nil
}

func (f *fakePOSClient) AddCustomerToGroup(ctx context.Context, tenantID, groupID, customerID string) error {
	f.calls = append(f.calls, "add_customer:"+groupID+":"+customerID)
	if f.failAddCustomer {
		return errors.New("add customer failed")
	}
	return nil
}

func (f *fakePOSClient) RemoveCustomerFromGroup(ctx context.Context, tenantID, groupID, customerID string) error {
	f.calls = append(f.calls, "remove_customer:"+groupID+":"+customerID)
	return nil
}

func (f *fakePOSClient) CreateDiscount(ctx context.Context, tenantID string, spec DiscountSpec) (CreatedDiscount, error) {
	f.calls = append(f.calls, "create_discount:"+spec.Name)
	if f.failCreateDiscount {
		return CreatedDiscount{}, errors.New("discount create failed")
	}
	return CreatedDiscount{DiscountID: "disc-1", PricingRuleID: "rule-1", ProductSetID: "set-1"}, nil
}

func (f *fakePOSClient) DeleteCatalogObjects(ctx context.Context, tenantID string, objectIDs []string) error {
	f.calls = append(f.calls, "delete_catalog")
	return nil
}

func (f *fakePOSClient) ListLocations(ctx context.Context, tenantID string) ([]string, error) {
	return []string{"loc-1"}, nil
}

func (f *fakePOSClient) SearchCompletedOrders(ctx context.Context, tenantID string, locationIDs []string, begin, end time.Time) ([]CompletedOrder, error) {
	return nil, nil
}

func (f *fakePOSClient) FindCustomerForOrder(ctx context.Context, tenantID, orderID string) (string, error) {
	return "", nil
}

func (f *fakePOSClient) CatalogPriceCents(ctx context.Context, tenantID, variationID string) (int64, error) {
	return f.catalogPrice, nil
}

func testParams() activationParams {
	return activationParams{
		TenantID:       "t-1",
		CustomerID:     "cust-1",
		RewardID:       "rw-1",
		GroupName:      "acme-16oz-reward-rw1",
		DiscountName:   "Free Acme 16oz (up to $12.00)",
		VariationIDs:   []string{"var-1", "var-2"},
		MaxAmountCents: 1200,
	}
}

func TestActivateExternalSuccess(t *testing.T) {
	pos := &fakePOSClient{}

	created, step, err := activateExternal(context.Background(), pos, testParams())

	require.NoError(t, err)
	assert.Empty(t, step)
	assert.Equal(t, "grp-1", created.GroupID)
	assert.Equal(t, "disc-1", created.DiscountID)
	assert.Equal(t, "rule-1", created.PricingRuleID)
	assert.Equal(t, "set-1", created.ProductSetID)
	assert.Equal(t, []string{
		"create_group:acme-16oz-reward-rw1",
		"add_customer:grp-1:cust-1",
		"create_discount:Free Acme 16oz (up to $12.00)",
	}, pos.calls)
}

func TestActivateExternalFailsAtFirstStep(t *testing.T) {
	pos := &fakePOSClient{failCreateGroup: true}

	created, step, err := activateExternal(context.Background(), pos, testParams())

	require.Error(t, err)
	assert.Equal(t, "create_customer_group", step)
	assert.True(t, created.empty())
	// nothing was minted, so nothing to clean up
	assert.Equal(t, []string{"create_group:acme-16oz-reward-rw1"}, pos.calls)
}

func TestActivateExternalCleansUpAfterDiscountFailure(t *testing.T) {
	pos := &fakePOSClient{failCreateDiscount: true}

	created, step, err := activateExternal(context.Background(), pos, testParams())

	require.Error(t, err)
	assert.Equal(t, "create_discount", step)
	assert.True(t, created.empty())
	assert.Equal(t, []string{
		"create_group:acme-16oz-reward-rw1",
		"add_customer:grp-1:cust-1",
		"create_discount:Free Acme 16oz (up to $12.00)",
		"remove_customer:grp-1:cust-1",
		"delete_group:grp-1",
	}, pos.calls)
}

func TestActivateExternalCleansUpAfterGroupMembershipFailure(t *testing.T) {
	pos := &fakePOSClient{failAddCustomer: true}

	_, step, err := activateExternal(context.Background(), pos, testParams())

	require.Error(t, err)
	assert.Equal(t, "add_customer_to_group", step)
	assert.Contains(t, pos.calls, "remove_customer:grp-1:cust-1")
	assert.Contains(t, pos.calls, "delete_group:grp-1")
}

func TestDeactivateExternalOrdering(t *testing.T) {
	pos := &fakePOSClient{}
	objects := externalObjects{
		GroupID:       "grp-9",
		DiscountID:    "disc-9",
		PricingRuleID: "rule-9",
		ProductSetID:  "set-9",
	}

	err := deactivateExternal(context.Background(), pos, "t-1", "cust-1", objects)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"delete_catalog",
		"remove_customer:grp-9:cust-1",
		"delete_group:grp-9",
	}, pos.calls, "catalog objects go first so the discount can never fire on an empty group")
}

func TestDeactivateExternalGroupOnly(t *testing.T) {
	pos := &fakePOSClient{}

	err := deactivateExternal(context.Background(), pos, "t-1", "cust-1", externalObjects{GroupID: "grp-2"})

	require.NoError(t, err)
	assert.Equal(t, []string{"remove_customer:grp-2:cust-1", "delete_group:grp-2"}, pos.calls)
}

func TestPickMaxDiscountCentsFallbackChain(t *testing.T) {
	assert.Equal(t, int64(1899), pickMaxDiscountCents(1899, 2099, 2500), "paid price wins when present")
	assert.Equal(t, int64(2099), pickMaxDiscountCents(0, 2099, 2500), "catalog price covers missing paid price")
	assert.Equal(t, int64(2500), pickMaxDiscountCents(0, 0, 2500), "policy default is the last resort")
}

func TestPOSGroupName(t *testing.T) {
	offer := models.Offer{Brand: "Orijen", SizeGroup: "25 lb"}

	name := posGroupName(offer, "a1b2c3d4-0000-0000-0000-000000000000")

	assert.Equal(t, "orijen-25-lb-reward-a1b2c3d4", name)
}

func TestPOSDiscountName(t *testing.T) {
	offer := models.Offer{Brand: "Orijen", SizeGroup: "25 lb"}

	assert.Equal(t, "Free Orijen 25 lb (up to $54.99)", posDiscountName(offer, 5499))
}

func TestExternalObjectsEmpty(t *testing.T) {
	assert.True(t, externalObjects{}.empty())
	assert.False(t, externalObjects{DiscountID: "d"}.empty())
}
