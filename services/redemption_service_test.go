package services

import (
	"testing"

	"frequent-buyer-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRewardDiscountByDiscountID(t *testing.T) {
	rewards := []models.Reward{
		{ID: "rw-1", POSDiscountID: "disc-1", POSPricingRuleID: "rule-1"},
		{ID: "rw-2", POSDiscountID: "disc-2", POSPricingRuleID: "rule-2"},
	}
	discounts := []AppliedDiscount{
		{DiscountID: "disc-other", AmountCents: 100},
		{DiscountID: "disc-2", AmountCents: 1899},
	}

	reward, discount := matchRewardDiscount(rewards, discounts)

	require.NotNil(t, reward)
	require.NotNil(t, discount)
	assert.Equal(t, "rw-2", reward.ID)
	assert.Equal(t, int64(1899), discount.AmountCents)
}

func TestMatchRewardDiscountByPricingRuleID(t *testing.T) {
	rewards := []models.Reward{
		{ID: "rw-1", POSDiscountID: "disc-1", POSPricingRuleID: "rule-1"},
	}
	// some POS payloads only carry the pricing rule id
	discounts := []AppliedDiscount{{PricingRuleID: "rule-1", AmountCents: 2500}}

	reward, _ := matchRewardDiscount(rewards, discounts)

	require.NotNil(t, reward)
	assert.Equal(t, "rw-1", reward.ID)
}

func TestMatchRewardDiscountNoMatch(t *testing.T) {
	rewards := []models.Reward{
		{ID: "rw-1", POSDiscountID: "disc-1", POSPricingRuleID: "rule-1"},
	}
	discounts := []AppliedDiscount{{DiscountID: "unrelated"}}

	reward, discount := matchRewardDiscount(rewards, discounts)

	assert.Nil(t, reward)
	assert.Nil(t, discount)
}

func TestRedemptionTypeForOrder(t *testing.T) {
	orderID := "ord-1"
	empty := ""

	assert.Equal(t, models.RedemptionTypeOrderDiscount, redemptionTypeFor(&orderID))
	assert.Equal(t, models.RedemptionTypeManual, redemptionTypeFor(&empty))
	assert.Equal(t, models.RedemptionTypeManual, redemptionTypeFor(nil))
}

func TestMatchRewardDiscountIgnoresEmptyIDs(t *testing.T) {
	// a reward not yet synced has empty external ids and must never match an
	// order discount that also carries empty fields
	rewards := []models.Reward{{ID: "rw-1"}}
	discounts := []AppliedDiscount{{AmountCents: 500}}

	reward, _ := matchRewardDiscount(rewards, discounts)

	assert.Nil(t, reward)
}
