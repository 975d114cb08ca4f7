// services/pos_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// DiscountSpec describes the 100%-off discount backing an earned reward:
// scoped to a product set and a customer group, capped at a maximum amount so
// redemption value never exceeds one free unit.
type DiscountSpec struct {
	Name            string   `json:"name"`
	Percentage      int      `json:"percentage"`
	CustomerGroupID string   `json:"customer_group_id"`
	VariationIDs    []string `json:"variation_ids"`
	MaxAmountCents  int64    `json:"max_amount_cents"`
}

// CreatedDiscount holds the external object ids minted for one discount.
type CreatedDiscount struct {
	DiscountID    string `json:"discount_id"`
	PricingRuleID string `json:"pricing_rule_id"`
	ProductSetID  string `json:"product_set_id"`
}

// AppliedDiscount is a discount found on a completed order.
type AppliedDiscount struct {
	DiscountID    string `json:"discount_id"`
	PricingRuleID string `json:"pricing_rule_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// CompletedOrder is the catchup reconciler's view of a historical POS order.
type CompletedOrder struct {
	OrderID          string            `json:"order_id"`
	LocationID       string            `json:"location_id"`
	CustomerID       string            `json:"customer_id,omitempty"`
	TenderCustomerID string            `json:"tender_customer_id,omitempty"`
	LineItems        []OrderLine       `json:"line_items"`
	Discounts        []AppliedDiscount `json:"discounts,omitempty"`
	ClosedAt         time.Time         `json:"closed_at"`
}

// POSClient is the contract with the external point-of-sale platform. The
// core depends only on these operations' success/failure semantics — no
// protocol details leak past this interface. It is constructed once at
// process start and injected into every consumer.
type POSClient interface {
	CreateCustomerGroup(ctx context.Context, tenantID, name string) (string, error)
	DeleteCustomerGroup(ctx context.Context, tenantID, groupID string) error
	AddCustomerToGroup(ctx context.Context, tenantID, groupID, customerID string) error
	RemoveCustomerFromGroup(ctx context.Context, tenantID, groupID, customerID string) error
	CreateDiscount(ctx context.Context, tenantID string, spec DiscountSpec) (CreatedDiscount, error)
	DeleteCatalogObjects(ctx context.Context, tenantID string, objectIDs []string) error

	ListLocations(ctx context.Context, tenantID string) ([]string, error)
	SearchCompletedOrders(ctx context.Context, tenantID string, locationIDs []string, begin, end time.Time) ([]CompletedOrder, error)
	FindCustomerForOrder(ctx context.Context, tenantID, orderID string) (string, error)
	CatalogPriceCents(ctx context.Context, tenantID, variationID string) (int64, error)
}

// HTTPPOSClient talks to the POS integration gateway over HTTP.
type HTTPPOSClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPPOSClient(baseURL, token string) *HTTPPOSClient {
	return &HTTPPOSClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPPOSClient) do(ctx context.Context, method, path, tenantID string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("POS request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[POS] %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
		return fmt.Errorf("POS %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode POS response: %w", err)
		}
	}
	return nil
}

func (c *HTTPPOSClient) CreateCustomerGroup(ctx context.Context, tenantID, name string) (string, error) {
	var out struct {
		GroupID string `json:"group_id"`
	}
	err := c.do(ctx, "POST", "/v1/customer-groups", tenantID, map[string]string{"name": name}, &out)
	return out.GroupID, err
}

func (c *HTTPPOSClient) DeleteCustomerGroup(ctx context.Context, tenantID, groupID string) error {
	return c.do(ctx, "DELETE", "/v1/customer-groups/"+url.PathEscape(groupID), tenantID, nil, nil)
}

func (c *HTTPPOSClient) AddCustomerToGroup(ctx context.Context, tenantID, groupID, customerID string) error {
	return c.do(ctx, "PUT", fmt.Sprintf("/v1/customer-groups/%s/customers/%s", url.PathEscape(groupID), url.PathEscape(customerID)), tenantID, nil, nil)
}

func (c *HTTPPOSClient) RemoveCustomerFromGroup(ctx context.Context, tenantID, groupID, customerID string) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/v1/customer-groups/%s/customers/%s", url.PathEscape(groupID), url.PathEscape(customerID)), tenantID, nil, nil)
}

func (c *HTTPPOSClient) CreateDiscount(ctx context.Context, tenantID string, spec DiscountSpec) (CreatedDiscount, error) {
	var out CreatedDiscount
	err := c.do(ctx, "POST", "/v1/discounts", tenantID, spec, &out)
	return out, err
}

func (c *HTTPPOSClient) DeleteCatalogObjects(ctx context.Context, tenantID string, objectIDs []string) error {
	return c.do(ctx, "POST", "/v1/catalog/batch-delete", tenantID, map[string][]string{"object_ids": objectIDs}, nil)
}

func (c *HTTPPOSClient) ListLocations(ctx context.Context, tenantID string) ([]string, error) {
	var out struct {
		LocationIDs []string `json:"location_ids"`
	}
	err := c.do(ctx, "GET", "/v1/locations", tenantID, nil, &out)
	return out.LocationIDs, err
}

func (c *HTTPPOSClient) SearchCompletedOrders(ctx context.Context, tenantID string, locationIDs []string, begin, end time.Time) ([]CompletedOrder, error) {
	var out struct {
		Orders []CompletedOrder `json:"orders"`
	}
	body := map[string]interface{}{
		"location_ids": locationIDs,
		"begin":        begin.UTC().Format(time.RFC3339),
		"end":          end.UTC().Format(time.RFC3339),
		"state":        "COMPLETED",
	}
	err := c.do(ctx, "POST", "/v1/orders/search", tenantID, body, &out)
	return out.Orders, err
}

func (c *HTTPPOSClient) FindCustomerForOrder(ctx context.Context, tenantID, orderID string) (string, error) {
	var out struct {
		CustomerID string `json:"customer_id"`
	}
	err := c.do(ctx, "GET", "/v1/loyalty-events/order/"+url.PathEscape(orderID), tenantID, nil, &out)
	return out.CustomerID, err
}

func (c *HTTPPOSClient) CatalogPriceCents(ctx context.Context, tenantID, variationID string) (int64, error) {
	var out struct {
		PriceCents int64 `json:"price_cents"`
	}
	err := c.do(ctx, "GET", "/v1/catalog/variations/"+url.PathEscape(variationID), tenantID, nil, &out)
	return out.PriceCents, err
}
