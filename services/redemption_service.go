// services/redemption_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RedemptionService finalizes earned rewards, either by explicit staff action
// or by detecting the reward's discount on a completed order.
type RedemptionService struct {
	DB       *gorm.DB
	Audit    *AuditService
	Summary  *SummaryService
	Settings *SettingsService
	Dispatch POSDispatcher
}

func NewRedemptionService(db *gorm.DB, audit *AuditService, summary *SummaryService, settings *SettingsService, dispatch POSDispatcher) *RedemptionService {
	return &RedemptionService{DB: db, Audit: audit, Summary: summary, Settings: settings, Dispatch: dispatch}
}

// RedeemContext carries who/what consumed the reward.
type RedeemContext struct {
	Type       models.RedemptionType
	CustomerID string // optional; must match the reward's customer when set
	OrderID    *string
	ValueCents int64 // 0 means derive from purchase history
	Actor      string
}

// Redeem transitions an earned reward to redeemed and records exactly one
// Redemption row. POS teardown is dispatched after commit.
func (s *RedemptionService) Redeem(tenantID, rewardID string, rctx RedeemContext) (*models.Redemption, *models.Reward, error) {
	if tenantID == "" {
		return nil, nil, ErrMissingTenant
	}

	var redemption *models.Redemption
	var reward models.Reward
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			Where("tenant_id = ? AND id = ?", tenantID, rewardID).
			First(&reward).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRewardNotFound
			}
			return err
		}
		if reward.Status != models.RewardStatusEarned {
			return ErrRewardNotEarned
		}
		if rctx.CustomerID != "" && rctx.CustomerID != reward.CustomerID {
			return ErrCustomerMismatch
		}

		value := rctx.ValueCents
		if value <= 0 {
			value = s.redemptionValueCents(tx, reward)
		}

		now := time.Now().UTC()
		redemption = &models.Redemption{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			RewardID:   reward.ID,
			OfferID:    reward.OfferID,
			CustomerID: reward.CustomerID,
			Type:       rctx.Type,
			OrderID:    rctx.OrderID,
			ValueCents: value,
			Actor:      rctx.Actor,
			RedeemedAt: now,
		}
		if err := tx.Create(redemption).Error; err != nil {
			return fmt.Errorf("failed to create redemption: %w", err)
		}

		reward.Status = models.RewardStatusRedeemed
		reward.RedeemedAt = &now
		reward.RedemptionID = &redemption.ID
		if err := tx.Save(&reward).Error; err != nil {
			return fmt.Errorf("failed to mark reward redeemed: %w", err)
		}

		if err := s.Summary.Refresh(tx, tenantID, reward.CustomerID, reward.OfferID, now); err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.RewardRedeemedDetails{
			RedemptionType: string(rctx.Type),
			OrderID:        rctx.OrderID,
			ValueCents:     value,
			Actor:          rctx.Actor,
		}, AuditRefs{
			CustomerID:   reward.CustomerID,
			ActorID:      rctx.Actor,
			OfferID:      &reward.OfferID,
			RewardID:     &reward.ID,
			RedemptionID: &redemption.ID,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	// external teardown happens outside the transaction
	if s.Dispatch != nil {
		s.Dispatch.EnqueueDeactivate(reward.ID)
	}
	return redemption, &reward, nil
}

// DetectFromOrder inspects a completed order's applied discounts for one
// matching a live reward's external discount or pricing-rule id, and redeems
// it transparently when found.
func (s *RedemptionService) DetectFromOrder(tenantID string, order CompletedOrder) (bool, string, error) {
	if tenantID == "" {
		return false, "", ErrMissingTenant
	}
	if len(order.Discounts) == 0 {
		return false, "", nil
	}

	var live []models.Reward
	if err := s.DB.Where("tenant_id = ? AND status = ? AND (pos_discount_id <> '' OR pos_pricing_rule_id <> '')",
		tenantID, models.RewardStatusEarned).
		Find(&live).Error; err != nil {
		return false, "", err
	}

	reward, discount := matchRewardDiscount(live, order.Discounts)
	if reward == nil {
		return false, "", nil
	}

	orderID := order.OrderID
	_, _, err := s.Redeem(tenantID, reward.ID, RedeemContext{
		Type:       models.RedemptionTypePOSDetected,
		OrderID:    &orderID,
		ValueCents: discount.AmountCents,
		Actor:      "system",
	})
	if err != nil {
		// a concurrent detection may have redeemed it already
		if errors.Is(err, ErrRewardNotEarned) {
			return false, "", nil
		}
		return false, "", err
	}
	log.Printf("[REDEMPTION] Auto-detected redemption of reward %s on order %s", reward.ID, order.OrderID)
	return true, reward.ID, nil
}

// GetHistory returns a customer's redemptions, newest first.
func (s *RedemptionService) GetHistory(tenantID, customerID string, offerID *string, limit int) ([]models.Redemption, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.DB.Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	if offerID != nil {
		query = query.Where("offer_id = ?", *offerID)
	}
	var redemptions []models.Redemption
	err := query.Order("redeemed_at DESC").Limit(limit).Find(&redemptions).Error
	return redemptions, err
}

// redemptionValueCents derives the consumed value from the units locked to
// the reward: the most the customer paid for one of them.
func (s *RedemptionService) redemptionValueCents(tx *gorm.DB, reward models.Reward) int64 {
	var maxPaid int64
	tx.Model(&models.PurchaseEvent{}).
		Where("reward_id = ? AND is_refund = false", reward.ID).
		Select("COALESCE(MAX(unit_price_cents), 0)").
		Scan(&maxPaid)
	if maxPaid > 0 {
		return maxPaid
	}
	return s.Settings.MaxDiscountFallbackCents(reward.TenantID)
}

// redemptionTypeFor classifies a staff-initiated redemption: consuming the
// reward as a discount on a specific order is an order-level discount,
// otherwise it is a plain manual redemption.
func redemptionTypeFor(orderID *string) models.RedemptionType {
	if orderID != nil && *orderID != "" {
		return models.RedemptionTypeOrderDiscount
	}
	return models.RedemptionTypeManual
}

// matchRewardDiscount pairs an order's applied discounts against live
// rewards' external ids.
func matchRewardDiscount(rewards []models.Reward, discounts []AppliedDiscount) (*models.Reward, *AppliedDiscount) {
	for i := range rewards {
		r := &rewards[i]
		for j := range discounts {
			d := &discounts[j]
			if d.DiscountID != "" && d.DiscountID == r.POSDiscountID {
				return r, d
			}
			if d.PricingRuleID != "" && d.PricingRuleID == r.POSPricingRuleID {
				return r, d
			}
		}
	}
	return nil, nil
}
