package models

import "time"

// CustomerSummary is a denormalized read model per (tenant, customer, offer).
// It is fully recomputed from the ledger and reward tables after every
// mutation and is safe to drop and rebuild — never a source of truth.
type CustomerSummary struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;uniqueIndex:idx_summary_pair" json:"tenant_id"`

	CustomerID string `gorm:"not null;uniqueIndex:idx_summary_pair" json:"customer_id"`
	OfferID    string `gorm:"not null;uniqueIndex:idx_summary_pair" json:"offer_id"`

	CurrentQuantity int        `gorm:"default:0" json:"current_quantity"`
	WindowStartDate *time.Time `json:"window_start_date,omitempty"`
	WindowEndDate   *time.Time `json:"window_end_date,omitempty"`
	HasEarned       bool       `gorm:"default:false" json:"has_earned"`

	LifetimePurchases int64 `gorm:"default:0" json:"lifetime_purchases"`
	LifetimeQuantity  int64 `gorm:"default:0" json:"lifetime_quantity"`
	RewardsEarned     int64 `gorm:"default:0" json:"rewards_earned"`
	RewardsRedeemed   int64 `gorm:"default:0" json:"rewards_redeemed"`

	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
