// services/pos_sync.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"frequent-buyer-system/models"

	"github.com/gosimple/slug"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"
)

// POSSyncService keeps the external discount mechanism in lockstep with
// internal reward state: an earned reward gets a dedicated customer group and
// a capped 100%-off discount so it auto-applies at checkout; redemption or
// revocation tears those objects down again.
type POSSyncService struct {
	DB       *gorm.DB
	POS      POSClient
	Audit    *AuditService
	Settings *SettingsService
}

func NewPOSSyncService(db *gorm.DB, pos POSClient, audit *AuditService, settings *SettingsService) *POSSyncService {
	return &POSSyncService{DB: db, POS: pos, Audit: audit, Settings: settings}
}

// externalObjects are the POS-side ids minted during activation.
type externalObjects struct {
	GroupID       string
	DiscountID    string
	PricingRuleID string
	ProductSetID  string
}

func (o externalObjects) empty() bool {
	return o.GroupID == "" && o.DiscountID == "" && o.PricingRuleID == "" && o.ProductSetID == ""
}

// Activate makes an earned reward auto-apply at checkout. Failures are
// reported but the reward stays earned — the reconciliation sweep retries.
func (s *POSSyncService) Activate(ctx context.Context, rewardID string) error {
	var reward models.Reward
	if err := s.DB.Where("id = ?", rewardID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRewardNotFound
		}
		return err
	}
	if reward.Status != models.RewardStatusEarned {
		log.Printf("[POS_SYNC] Skipping activation of reward %s: status %s", reward.ID, reward.Status)
		return nil
	}
	if reward.POSDiscountID != "" {
		// already live at the register
		return nil
	}

	var offer models.Offer
	if err := s.DB.Where("id = ?", reward.OfferID).First(&offer).Error; err != nil {
		return fmt.Errorf("failed to load offer for reward %s: %w", reward.ID, err)
	}
	var variations []models.QualifyingVariation
	if err := s.DB.Where("tenant_id = ? AND offer_id = ?", reward.TenantID, reward.OfferID).
		Find(&variations).Error; err != nil {
		return err
	}
	variationIDs := make([]string, len(variations))
	for i, v := range variations {
		variationIDs[i] = v.VariationID
	}

	maxAmount := s.maxDiscountCents(ctx, reward, variationIDs)

	created, failedStep, err := activateExternal(ctx, s.POS, activationParams{
		TenantID:       reward.TenantID,
		CustomerID:     reward.CustomerID,
		RewardID:       reward.ID,
		GroupName:      posGroupName(offer, reward.ID),
		DiscountName:   posDiscountName(offer, maxAmount),
		VariationIDs:   variationIDs,
		MaxAmountCents: maxAmount,
	})
	if err != nil {
		auditErr := s.Audit.Append(s.DB, reward.TenantID, models.POSActivationFailedDetails{
			Step:  failedStep,
			Error: err.Error(),
		}, AuditRefs{CustomerID: reward.CustomerID, OfferID: &reward.OfferID, RewardID: &reward.ID})
		if auditErr != nil {
			log.Printf("[POS_SYNC] Failed to audit activation failure for reward %s: %v", reward.ID, auditErr)
		}
		return fmt.Errorf("POS activation failed at %s: %w", failedStep, err)
	}

	now := time.Now().UTC()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"pos_group_id":        created.GroupID,
			"pos_discount_id":     created.DiscountID,
			"pos_pricing_rule_id": created.PricingRuleID,
			"pos_product_set_id":  created.ProductSetID,
			"pos_synced_at":       now,
		}
		if err := tx.Model(&models.Reward{}).Where("id = ?", reward.ID).Updates(updates).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, reward.TenantID, models.POSActivatedDetails{
			GroupID:        created.GroupID,
			DiscountID:     created.DiscountID,
			PricingRuleID:  created.PricingRuleID,
			MaxAmountCents: maxAmount,
		}, AuditRefs{CustomerID: reward.CustomerID, OfferID: &reward.OfferID, RewardID: &reward.ID})
	})
}

// Deactivate reverses activation. Idempotent: a reward with no external ids
// stored is a no-op success.
func (s *POSSyncService) Deactivate(ctx context.Context, rewardID string) error {
	var reward models.Reward
	if err := s.DB.Where("id = ?", rewardID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRewardNotFound
		}
		return err
	}

	objects := externalObjects{
		GroupID:       reward.POSGroupID,
		DiscountID:    reward.POSDiscountID,
		PricingRuleID: reward.POSPricingRuleID,
		ProductSetID:  reward.POSProductSetID,
	}
	if objects.empty() {
		return nil
	}

	if err := deactivateExternal(ctx, s.POS, reward.TenantID, reward.CustomerID, objects); err != nil {
		return fmt.Errorf("POS deactivation failed for reward %s: %w", reward.ID, err)
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"pos_group_id":        "",
			"pos_discount_id":     "",
			"pos_pricing_rule_id": "",
			"pos_product_set_id":  "",
		}
		if err := tx.Model(&models.Reward{}).Where("id = ?", reward.ID).Updates(updates).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, reward.TenantID, models.POSDeactivatedDetails{
			GroupID:    objects.GroupID,
			DiscountID: objects.DiscountID,
		}, AuditRefs{CustomerID: reward.CustomerID, OfferID: &reward.OfferID, RewardID: &reward.ID})
	})
}

// maxDiscountCents caps redemption value at "one free unit": the most the
// customer actually paid for a qualifying item, then the catalog price, then
// the tenant's configured default.
func (s *POSSyncService) maxDiscountCents(ctx context.Context, reward models.Reward, variationIDs []string) int64 {
	var maxPaid int64
	s.DB.Model(&models.PurchaseEvent{}).
		Where("reward_id = ? AND is_refund = false", reward.ID).
		Select("COALESCE(MAX(unit_price_cents), 0)").
		Scan(&maxPaid)
	fallback := s.Settings.MaxDiscountFallbackCents(reward.TenantID)

	var catalogPrice int64
	if maxPaid <= 0 && len(variationIDs) > 0 {
		price, err := s.POS.CatalogPriceCents(ctx, reward.TenantID, variationIDs[0])
		if err != nil {
			log.Printf("[POS_SYNC] Catalog price lookup failed for %s: %v", variationIDs[0], err)
		} else {
			catalogPrice = price
		}
	}
	return pickMaxDiscountCents(maxPaid, catalogPrice, fallback)
}

// pickMaxDiscountCents applies the fallback chain: paid price → catalog price
// → configured policy default.
func pickMaxDiscountCents(maxPaid, catalogPrice, fallback int64) int64 {
	if maxPaid > 0 {
		return maxPaid
	}
	if catalogPrice > 0 {
		return catalogPrice
	}
	return fallback
}

type activationParams struct {
	TenantID       string
	CustomerID     string
	RewardID       string
	GroupName      string
	DiscountName   string
	VariationIDs   []string
	MaxAmountCents int64
}

// activateExternal performs the three POS steps in order. Any failure
// triggers best-effort cleanup of the steps already completed and returns the
// name of the step that failed.
func activateExternal(ctx context.Context, pos POSClient, p activationParams) (externalObjects, string, error) {
	var created externalObjects

	groupID, err := pos.CreateCustomerGroup(ctx, p.TenantID, p.GroupName)
	if err != nil {
		return created, "create_customer_group", err
	}
	created.GroupID = groupID

	if err := pos.AddCustomerToGroup(ctx, p.TenantID, groupID, p.CustomerID); err != nil {
		cleanupExternal(ctx, pos, p.TenantID, p.CustomerID, created)
		return externalObjects{}, "add_customer_to_group", err
	}

	discount, err := pos.CreateDiscount(ctx, p.TenantID, DiscountSpec{
		Name:            p.DiscountName,
		Percentage:      100,
		CustomerGroupID: groupID,
		VariationIDs:    p.VariationIDs,
		MaxAmountCents:  p.MaxAmountCents,
	})
	if err != nil {
		cleanupExternal(ctx, pos, p.TenantID, p.CustomerID, created)
		return externalObjects{}, "create_discount", err
	}
	created.DiscountID = discount.DiscountID
	created.PricingRuleID = discount.PricingRuleID
	created.ProductSetID = discount.ProductSetID

	return created, "", nil
}

// deactivateExternal tears down the discount objects then the group.
func deactivateExternal(ctx context.Context, pos POSClient, tenantID, customerID string, objects externalObjects) error {
	var catalogIDs []string
	for _, id := range []string{objects.PricingRuleID, objects.DiscountID, objects.ProductSetID} {
		if id != "" {
			catalogIDs = append(catalogIDs, id)
		}
	}
	if len(catalogIDs) > 0 {
		if err := pos.DeleteCatalogObjects(ctx, tenantID, catalogIDs); err != nil {
			return err
		}
	}
	if objects.GroupID != "" {
		if err := pos.RemoveCustomerFromGroup(ctx, tenantID, objects.GroupID, customerID); err != nil {
			return err
		}
		if err := pos.DeleteCustomerGroup(ctx, tenantID, objects.GroupID); err != nil {
			return err
		}
	}
	return nil
}

// cleanupExternal undoes partial activation. Best-effort: failures are logged
// and swallowed, the reconciliation sweep handles leftovers.
func cleanupExternal(ctx context.Context, pos POSClient, tenantID, customerID string, objects externalObjects) {
	if err := deactivateExternal(ctx, pos, tenantID, customerID, objects); err != nil {
		log.Printf("[POS_SYNC] Cleanup after failed activation incomplete: %v", err)
	}
}

// posGroupName is the deterministic per-reward customer group name.
func posGroupName(offer models.Offer, rewardID string) string {
	short := rewardID
	if len(short) > 8 {
		short = short[:8]
	}
	return slug.Make(fmt.Sprintf("%s %s reward %s", offer.Brand, offer.SizeGroup, short))
}

// posDiscountName is what staff see at the register.
func posDiscountName(offer models.Offer, maxAmountCents int64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("Free %s %s (up to $%.2f)", offer.Brand, offer.SizeGroup, float64(maxAmountCents)/100)
}
