package services

import (
	"errors"
	"testing"
	"time"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// loyaltyFixture wires the full purchase → reward → redemption pipeline over
// an in-memory store, POS dispatch disabled.
type loyaltyFixture struct {
	t           *testing.T
	db          *gorm.DB
	offer       models.Offer
	ledger      *LedgerService
	rewards     *RewardStateService
	redemptions *RedemptionService
}

func newLoyaltyFixture(t *testing.T, requiredQuantity int) *loyaltyFixture {
	t.Helper()
	db := testStore(t)
	audit := NewAuditService(db)
	summary := NewSummaryService(db)
	settings := NewSettingsService(db, audit, 2500)
	rewards := NewRewardStateService(db, audit, summary)

	fx := &loyaltyFixture{
		t:           t,
		db:          db,
		ledger:      NewLedgerService(db, rewards, audit, settings, nil),
		rewards:     rewards,
		redemptions: NewRedemptionService(db, audit, summary, settings, nil),
	}

	fx.offer = models.Offer{
		ID:               uuid.NewString(),
		TenantID:         "t-1",
		Brand:            "Orijen",
		SizeGroup:        "25 lb",
		RequiredQuantity: requiredQuantity,
		RewardQuantity:   1,
		WindowMonths:     12,
		Active:           true,
	}
	require.NoError(t, db.Create(&fx.offer).Error)
	require.NoError(t, db.Create(&models.QualifyingVariation{
		ID:          uuid.NewString(),
		TenantID:    "t-1",
		OfferID:     fx.offer.ID,
		VariationID: "var-1",
		ItemName:    "Orijen 25 lb",
	}).Error)
	return fx
}

func (fx *loyaltyFixture) purchase(orderID string, quantity int, at time.Time) RecordResult {
	fx.t.Helper()
	result, err := fx.ledger.RecordPurchase(OrderEvent{
		TenantID:   "t-1",
		OrderID:    orderID,
		CustomerID: "cust-1",
		LineItems:  []OrderLine{{VariationID: "var-1", Quantity: quantity, UnitPriceCents: 5499}},
		Timestamp:  at,
	})
	require.NoError(fx.t, err)
	return result
}

func (fx *loyaltyFixture) refund(orderID, refundID string, quantity int, at time.Time) RecordResult {
	fx.t.Helper()
	result, err := fx.ledger.RecordRefund(OrderEvent{
		TenantID:    "t-1",
		OrderID:     orderID,
		RefundLines: []RefundLine{{RefundID: refundID, VariationID: "var-1", Quantity: quantity, UnitPriceCents: 5499}},
		Timestamp:   at,
	})
	require.NoError(fx.t, err)
	return result
}

func (fx *loyaltyFixture) rewardByStatus(status models.RewardStatus) models.Reward {
	fx.t.Helper()
	var reward models.Reward
	require.NoError(fx.t, fx.db.Where("tenant_id = ? AND status = ?", "t-1", status).First(&reward).Error)
	return reward
}

func (fx *loyaltyFixture) summary() models.CustomerSummary {
	fx.t.Helper()
	var summary models.CustomerSummary
	require.NoError(fx.t, fx.db.Where("tenant_id = ? AND customer_id = ?", "t-1", "cust-1").First(&summary).Error)
	return summary
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

func TestRecordPurchaseIdempotentOnRedelivery(t *testing.T) {
	fx := newLoyaltyFixture(t, 3)

	first := fx.purchase("ord-1", 1, daysAgo(2))
	require.True(t, first.Processed)
	require.Len(t, first.EventIDs, 1)

	// webhook redelivery: same order, same line
	second := fx.purchase("ord-1", 1, daysAgo(2))
	require.False(t, second.Processed)
	require.Equal(t, ReasonAlreadyProcessed, second.Reason)

	var count int64
	require.NoError(t, fx.db.Model(&models.PurchaseEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	reward := fx.rewardByStatus(models.RewardStatusInProgress)
	require.Equal(t, 1, reward.CurrentQuantity)
}

func TestEarnLocksOldestEventsFirst(t *testing.T) {
	fx := newLoyaltyFixture(t, 3)

	for i, orderID := range []string{"ord-1", "ord-2", "ord-3", "ord-4"} {
		fx.purchase(orderID, 1, daysAgo(4-i))
	}

	earned := fx.rewardByStatus(models.RewardStatusEarned)
	require.Equal(t, 3, earned.CurrentQuantity)
	require.NotNil(t, earned.EarnedAt)

	var locked []models.PurchaseEvent
	require.NoError(t, fx.db.Where("reward_id = ?", earned.ID).Order("purchased_at ASC").Find(&locked).Error)
	require.Len(t, locked, 3)
	require.Equal(t, "ord-1", locked[0].OrderID)
	require.Equal(t, "ord-2", locked[1].OrderID)
	require.Equal(t, "ord-3", locked[2].OrderID)

	// the fourth purchase seeds a fresh cycle
	inProgress := fx.rewardByStatus(models.RewardStatusInProgress)
	require.Equal(t, 1, inProgress.CurrentQuantity)

	var unlocked []models.PurchaseEvent
	require.NoError(t, fx.db.Where("reward_id IS NULL").Find(&unlocked).Error)
	require.Len(t, unlocked, 1)
	require.Equal(t, "ord-4", unlocked[0].OrderID)

	// unlocked pool and tracked progress agree
	require.Equal(t, inProgress.CurrentQuantity, sumQuantities(unlocked))
	require.Equal(t, inProgress.CurrentQuantity, fx.summary().CurrentQuantity)
}

func TestRefundBelowThresholdRevokesAndRestartsCycle(t *testing.T) {
	fx := newLoyaltyFixture(t, 2)

	fx.purchase("ord-a", 1, daysAgo(10))
	fx.purchase("ord-b", 1, daysAgo(9))
	earned := fx.rewardByStatus(models.RewardStatusEarned)

	result := fx.refund("ord-a", "ref-1", 1, daysAgo(1))
	require.True(t, result.Processed)
	require.True(t, result.RewardAffected)

	revoked := fx.rewardByStatus(models.RewardStatusRevoked)
	require.Equal(t, earned.ID, revoked.ID)
	require.Equal(t, RevocationReasonRefund, revoked.RevocationReason)
	require.NotNil(t, revoked.RevokedAt)

	// the refunded original stays attached to the revoked reward, the other
	// locked event is released back to the pool
	var eventA, eventB models.PurchaseEvent
	require.NoError(t, fx.db.Where("order_id = ? AND is_refund = false", "ord-a").First(&eventA).Error)
	require.NoError(t, fx.db.Where("order_id = ? AND is_refund = false", "ord-b").First(&eventB).Error)
	require.NotNil(t, eventA.RewardID)
	require.Equal(t, revoked.ID, *eventA.RewardID)
	require.Nil(t, eventB.RewardID)

	// pool is released B (+1) plus the refund (-1): no progress to track yet
	var inProgressCount int64
	require.NoError(t, fx.db.Model(&models.Reward{}).
		Where("status = ?", models.RewardStatusInProgress).Count(&inProgressCount).Error)
	require.EqualValues(t, 0, inProgressCount)

	// the next purchase starts a fresh reward at 1 of 2
	fx.purchase("ord-c", 1, daysAgo(0))
	fresh := fx.rewardByStatus(models.RewardStatusInProgress)
	require.NotEqual(t, revoked.ID, fresh.ID)
	require.Equal(t, 1, fresh.CurrentQuantity)
}

func TestRefundAgainstSurplusKeepsRewardEarned(t *testing.T) {
	fx := newLoyaltyFixture(t, 3)

	// two 2-packs overshoot the threshold: 4 units locked for a required 3
	fx.purchase("ord-1", 2, daysAgo(6))
	fx.purchase("ord-2", 2, daysAgo(5))
	earned := fx.rewardByStatus(models.RewardStatusEarned)

	// refunding one unit only eats the surplus
	result := fx.refund("ord-1", "ref-1", 1, daysAgo(1))
	require.True(t, result.Processed)
	require.False(t, result.RewardAffected)

	still := fx.rewardByStatus(models.RewardStatusEarned)
	require.Equal(t, earned.ID, still.ID)

	// the refund is absorbed into the reward, not left in the pool where it
	// would subtract from the next cycle's progress
	var refundEvent models.PurchaseEvent
	require.NoError(t, fx.db.Where("is_refund = true").First(&refundEvent).Error)
	require.NotNil(t, refundEvent.RewardID)
	require.Equal(t, earned.ID, *refundEvent.RewardID)

	fx.purchase("ord-3", 1, daysAgo(0))
	inProgress := fx.rewardByStatus(models.RewardStatusInProgress)
	require.Equal(t, 1, inProgress.CurrentQuantity)
}

func TestSecondActiveRewardRejected(t *testing.T) {
	fx := newLoyaltyFixture(t, 3)

	mk := func(status models.RewardStatus) error {
		return fx.db.Create(&models.Reward{
			ID:               uuid.NewString(),
			TenantID:         "t-1",
			OfferID:          fx.offer.ID,
			CustomerID:       "cust-1",
			Status:           status,
			RequiredQuantity: 3,
		}).Error
	}

	require.NoError(t, mk(models.RewardStatusInProgress))

	// a second in_progress row for the same pair hits the partial unique
	// index — this is the backstop for two racing first events
	err := mk(models.RewardStatusInProgress)
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	// terminal and earned rows are history, the index ignores them
	require.NoError(t, mk(models.RewardStatusEarned))
	require.NoError(t, mk(models.RewardStatusRevoked))
}

func TestExpiredWindowResetsProgress(t *testing.T) {
	fx := newLoyaltyFixture(t, 3)

	fx.purchase("ord-1", 1, daysAgo(2))
	require.Equal(t, 1, fx.rewardByStatus(models.RewardStatusInProgress).CurrentQuantity)

	// age the event out of its window
	require.NoError(t, fx.db.Model(&models.PurchaseEvent{}).
		Where("order_id = ?", "ord-1").
		Update("window_end_date", daysAgo(1)).Error)

	processed, err := fx.rewards.ProcessExpiredWindows("t-1")
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	reward := fx.rewardByStatus(models.RewardStatusInProgress)
	require.Equal(t, 0, reward.CurrentQuantity)
	require.Equal(t, 0, fx.summary().CurrentQuantity)
}

func TestRedeemIsExclusive(t *testing.T) {
	fx := newLoyaltyFixture(t, 2)

	fx.purchase("ord-1", 1, daysAgo(3))
	fx.purchase("ord-2", 1, daysAgo(2))
	earned := fx.rewardByStatus(models.RewardStatusEarned)

	redemption, reward, err := fx.redemptions.Redeem("t-1", earned.ID, RedeemContext{
		Type:  models.RedemptionTypeManual,
		Actor: "staff-1",
	})
	require.NoError(t, err)
	require.Equal(t, models.RewardStatusRedeemed, reward.Status)
	require.Equal(t, models.RedemptionTypeManual, redemption.Type)
	// derived from the priciest locked purchase
	require.EqualValues(t, 5499, redemption.ValueCents)

	_, _, err = fx.redemptions.Redeem("t-1", earned.ID, RedeemContext{
		Type:  models.RedemptionTypeManual,
		Actor: "staff-1",
	})
	require.True(t, errors.Is(err, ErrRewardNotEarned))

	var count int64
	require.NoError(t, fx.db.Model(&models.Redemption{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
