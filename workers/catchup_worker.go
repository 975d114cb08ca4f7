// workers/catchup_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"frequent-buyer-system/models"
	"frequent-buyer-system/services"

	"gorm.io/gorm"
)

// CatchupReconciler replays historical completed orders to recover purchases,
// refunds, and redemptions missed by real-time webhook delivery. Safe to
// re-run: everything funnels through the ledger's idempotency keys.
type CatchupReconciler struct {
	DB          *gorm.DB
	POS         services.POSClient
	Ledger      *services.LedgerService
	Redemptions *services.RedemptionService
}

func NewCatchupReconciler(db *gorm.DB, pos services.POSClient, ledger *services.LedgerService, redemptions *services.RedemptionService) *CatchupReconciler {
	return &CatchupReconciler{DB: db, POS: pos, Ledger: ledger, Redemptions: redemptions}
}

// CatchupResult summarizes one reconciliation run.
type CatchupResult struct {
	OrdersScanned     int `json:"orders_scanned"`
	OrdersReplayed    int `json:"orders_replayed"`
	OrdersSkippedSeen int `json:"orders_skipped_seen"`
	NoCustomer        int `json:"no_customer"`
	RedemptionsFound  int `json:"redemptions_found"`
}

// Run fetches completed orders across all of the tenant's locations for the
// time range and replays the missing ones through the ledger, then checks
// every order's discounts for auto-detected redemptions.
func (r *CatchupReconciler) Run(ctx context.Context, tenantID string, begin, end time.Time) (CatchupResult, error) {
	var result CatchupResult
	if tenantID == "" {
		return result, services.ErrMissingTenant
	}

	locations, err := r.POS.ListLocations(ctx, tenantID)
	if err != nil {
		return result, err
	}
	orders, err := r.POS.SearchCompletedOrders(ctx, tenantID, locations, begin, end)
	if err != nil {
		return result, err
	}
	result.OrdersScanned = len(orders)
	if len(orders) == 0 {
		return result, nil
	}

	seen, err := r.seenOrderIDs(tenantID, orders)
	if err != nil {
		return result, err
	}
	allowed, err := r.allowListedVariations(tenantID)
	if err != nil {
		return result, err
	}

	for _, order := range orders {
		if seen[order.OrderID] {
			result.OrdersSkippedSeen++
			continue
		}
		if !hasQualifyingLine(order, allowed) {
			continue
		}

		customerID, err := r.resolveCustomer(ctx, tenantID, order)
		if err != nil {
			log.Printf("[CATCHUP] Customer lookup failed for order %s: %v", order.OrderID, err)
			continue
		}
		if customerID == "" {
			result.NoCustomer++
			continue
		}

		recorded, err := r.Ledger.RecordPurchase(services.OrderEvent{
			TenantID:   tenantID,
			OrderID:    order.OrderID,
			CustomerID: customerID,
			LocationID: order.LocationID,
			LineItems:  order.LineItems,
			Timestamp:  order.ClosedAt,
		})
		if err != nil {
			log.Printf("[CATCHUP] Replay failed for order %s: %v", order.OrderID, err)
			continue
		}
		if recorded.Processed {
			result.OrdersReplayed++
		}
	}

	// Redemption detection runs over every order, including already-seen
	// ones: the purchase may have been recorded while the redemption went
	// unnoticed.
	for _, order := range orders {
		detected, _, err := r.Redemptions.DetectFromOrder(tenantID, order)
		if err != nil {
			log.Printf("[CATCHUP] Redemption detection failed for order %s: %v", order.OrderID, err)
			continue
		}
		if detected {
			result.RedemptionsFound++
		}
	}

	log.Printf("[CATCHUP] Tenant %s: scanned %d, replayed %d, seen %d, no-customer %d, redemptions %d",
		tenantID, result.OrdersScanned, result.OrdersReplayed, result.OrdersSkippedSeen, result.NoCustomer, result.RedemptionsFound)
	return result, nil
}

// StartDaily schedules a catchup run every 24h covering the last two days,
// overlapping the previous run on purpose — idempotency makes overlap free.
func (r *CatchupReconciler) StartDaily(ctx context.Context, tenantIDs func() ([]string, error)) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("Catchup reconciler stopped.")
				return
			case <-ticker.C:
				tenants, err := tenantIDs()
				if err != nil {
					log.Printf("[CATCHUP] Failed to list tenants: %v", err)
					continue
				}
				end := time.Now().UTC()
				begin := end.AddDate(0, 0, -2)
				for _, tenant := range tenants {
					if _, err := r.Run(ctx, tenant, begin, end); err != nil {
						log.Printf("[CATCHUP] Run failed for tenant %s: %v", tenant, err)
					}
				}
			}
		}
	}()
}

// seenOrderIDs checks which orders already have ledger events, in one bulk
// query rather than per-order.
func (r *CatchupReconciler) seenOrderIDs(tenantID string, orders []services.CompletedOrder) (map[string]bool, error) {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	var existing []string
	if err := r.DB.Model(&models.PurchaseEvent{}).
		Where("tenant_id = ? AND order_id IN ?", tenantID, ids).
		Distinct("order_id").
		Pluck("order_id", &existing).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}
	return seen, nil
}

func (r *CatchupReconciler) allowListedVariations(tenantID string) (map[string]bool, error) {
	var variations []models.QualifyingVariation
	if err := r.DB.Where("tenant_id = ?", tenantID).Find(&variations).Error; err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(variations))
	for _, v := range variations {
		allowed[v.VariationID] = true
	}
	return allowed, nil
}

// resolveCustomer walks the prioritized fallback chain: the order's own
// customer field, then the payment tender's, then the order-id-keyed loyalty
// event lookup. Never timestamp proximity — that misattributes purchases.
func (r *CatchupReconciler) resolveCustomer(ctx context.Context, tenantID string, order services.CompletedOrder) (string, error) {
	if order.CustomerID != "" {
		return order.CustomerID, nil
	}
	if order.TenderCustomerID != "" {
		return order.TenderCustomerID, nil
	}
	return r.POS.FindCustomerForOrder(ctx, tenantID, order.OrderID)
}

func hasQualifyingLine(order services.CompletedOrder, allowed map[string]bool) bool {
	for _, line := range order.LineItems {
		if allowed[line.VariationID] {
			return true
		}
	}
	return false
}
