// services/summary_service.go
package services

import (
	"time"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SummaryService maintains the denormalized per-(tenant, customer, offer)
// read model. Everything it writes is derived from the ledger and reward
// tables — the summary is never a source of truth and can be dropped and
// rebuilt at any time.
type SummaryService struct {
	DB *gorm.DB
}

func NewSummaryService(db *gorm.DB) *SummaryService {
	return &SummaryService{DB: db}
}

// Refresh recomputes and upserts the summary row inside the caller's
// transaction.
func (s *SummaryService) Refresh(tx *gorm.DB, tenantID, customerID, offerID string, now time.Time) error {
	var events []models.PurchaseEvent
	if err := tx.Where("tenant_id = ? AND customer_id = ? AND offer_id = ?", tenantID, customerID, offerID).
		Find(&events).Error; err != nil {
		return err
	}

	summary := models.CustomerSummary{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		CustomerID: customerID,
		OfferID:    offerID,
	}

	for _, ev := range events {
		if !ev.IsRefund {
			summary.LifetimePurchases++
			if summary.LastPurchaseAt == nil || ev.PurchasedAt.After(*summary.LastPurchaseAt) {
				t := ev.PurchasedAt
				summary.LastPurchaseAt = &t
			}
		}
		summary.LifetimeQuantity += int64(ev.Quantity)

		if ev.RewardID != nil || !ev.WindowEndDate.After(now) {
			continue
		}
		summary.CurrentQuantity += ev.Quantity
		if !ev.IsRefund {
			if summary.WindowStartDate == nil || ev.PurchasedAt.Before(*summary.WindowStartDate) {
				t := ev.PurchasedAt
				summary.WindowStartDate = &t
			}
			if summary.WindowEndDate == nil || ev.WindowEndDate.Before(*summary.WindowEndDate) {
				t := ev.WindowEndDate
				summary.WindowEndDate = &t
			}
		}
	}

	var rewards []models.Reward
	if err := tx.Where("tenant_id = ? AND customer_id = ? AND offer_id = ?", tenantID, customerID, offerID).
		Find(&rewards).Error; err != nil {
		return err
	}
	for _, r := range rewards {
		if r.Status == models.RewardStatusEarned {
			summary.HasEarned = true
		}
		if r.EarnedAt != nil {
			summary.RewardsEarned++
		}
		if r.Status == models.RewardStatusRedeemed {
			summary.RewardsRedeemed++
		}
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "customer_id"}, {Name: "offer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_quantity",
			"window_start_date",
			"window_end_date",
			"has_earned",
			"lifetime_purchases",
			"lifetime_quantity",
			"rewards_earned",
			"rewards_redeemed",
			"last_purchase_at",
			"updated_at",
		}),
	}).Create(&summary).Error
}

// GetForCustomer returns a customer's summaries, optionally limited to one
// offer.
func (s *SummaryService) GetForCustomer(tenantID, customerID string, offerID *string) ([]models.CustomerSummary, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	query := s.DB.Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	if offerID != nil {
		query = query.Where("offer_id = ?", *offerID)
	}
	var summaries []models.CustomerSummary
	err := query.Find(&summaries).Error
	return summaries, err
}
