// services/window.go
package services

import (
	"time"

	"frequent-buyer-system/models"
)

// ComputeWindow returns the rolling window for a new purchase. The window end
// is always purchasedAt + windowMonths. The window start "floats" forward from
// the first surviving qualifying purchase: it is the earliest purchase
// timestamp among the pair's still-unexpired, unlocked events, or the new
// purchase's own timestamp when none exist. Pure function — no side effects.
func ComputeWindow(purchasedAt time.Time, windowMonths int, unlocked []models.PurchaseEvent) (time.Time, time.Time) {
	end := purchasedAt.AddDate(0, windowMonths, 0)

	start := purchasedAt
	for _, ev := range unlocked {
		if ev.IsRefund || ev.RewardID != nil {
			continue
		}
		if !ev.WindowEndDate.After(purchasedAt) {
			// already expired relative to the new purchase
			continue
		}
		if ev.PurchasedAt.Before(start) {
			start = ev.PurchasedAt
		}
	}
	return start, end
}
