package services

import (
	"testing"
	"time"

	"frequent-buyer-system/models"

	"github.com/stretchr/testify/assert"
)

func TestComputeWindowNoPriorEvents(t *testing.T) {
	purchasedAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	start, end := ComputeWindow(purchasedAt, 12, nil)

	assert.Equal(t, purchasedAt, start)
	assert.Equal(t, purchasedAt.AddDate(0, 12, 0), end)
}

func TestComputeWindowFloatsFromOldestSurvivingEvent(t *testing.T) {
	oldest := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	middle := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	purchasedAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	unlocked := []models.PurchaseEvent{
		{PurchasedAt: middle, WindowEndDate: middle.AddDate(0, 12, 0), Quantity: 1},
		{PurchasedAt: oldest, WindowEndDate: oldest.AddDate(0, 12, 0), Quantity: 1},
	}

	start, end := ComputeWindow(purchasedAt, 12, unlocked)

	assert.Equal(t, oldest, start, "window start should anchor to the oldest surviving purchase")
	assert.Equal(t, purchasedAt.AddDate(0, 12, 0), end, "window end is always relative to the new purchase")
}

func TestComputeWindowIgnoresExpiredEvents(t *testing.T) {
	expired := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	purchasedAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	unlocked := []models.PurchaseEvent{
		{PurchasedAt: expired, WindowEndDate: expired.AddDate(0, 12, 0), Quantity: 1},
	}

	start, _ := ComputeWindow(purchasedAt, 12, unlocked)

	assert.Equal(t, purchasedAt, start, "expired events must not anchor the window")
}

func TestComputeWindowIgnoresRefundsAndLockedEvents(t *testing.T) {
	early := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	purchasedAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	rewardID := "reward-1"

	unlocked := []models.PurchaseEvent{
		{PurchasedAt: early, WindowEndDate: early.AddDate(0, 12, 0), Quantity: -1, IsRefund: true},
		{PurchasedAt: early, WindowEndDate: early.AddDate(0, 12, 0), Quantity: 1, RewardID: &rewardID},
	}

	start, _ := ComputeWindow(purchasedAt, 6, unlocked)

	assert.Equal(t, purchasedAt, start)
}
