package models

import "time"

// RewardStatus is the reward lifecycle state
type RewardStatus string

const (
	RewardStatusInProgress RewardStatus = "in_progress"
	RewardStatusEarned     RewardStatus = "earned"
	RewardStatusRedeemed   RewardStatus = "redeemed"
	RewardStatusRevoked    RewardStatus = "revoked"
)

// Terminal reports whether the status permits no further transitions.
func (s RewardStatus) Terminal() bool {
	return s == RewardStatusRedeemed || s == RewardStatusRevoked
}

// Reward tracks one customer's progress toward (and through) a single offer.
// At most one in_progress row exists per (tenant, customer, offer) — the
// partial unique index rejects a second one, which is what serializes two
// first events racing on a pair that has no reward row to lock yet. Terminal
// rows remain as history.
type Reward struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;index;uniqueIndex:idx_reward_active_pair,where:status = 'in_progress'" json:"tenant_id"`

	OfferID    string `gorm:"not null;index:idx_reward_pair;uniqueIndex:idx_reward_active_pair,where:status = 'in_progress'" json:"offer_id"`
	CustomerID string `gorm:"not null;index:idx_reward_pair;uniqueIndex:idx_reward_active_pair,where:status = 'in_progress'" json:"customer_id"`

	Status RewardStatus `gorm:"not null;default:'in_progress';index" json:"status"`

	CurrentQuantity  int `gorm:"not null;default:0" json:"current_quantity"`
	RequiredQuantity int `gorm:"not null" json:"required_quantity"`

	WindowStartDate *time.Time `json:"window_start_date,omitempty"`
	WindowEndDate   *time.Time `json:"window_end_date,omitempty"`

	EarnedAt   *time.Time `json:"earned_at,omitempty"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`

	RevocationReason string `json:"revocation_reason,omitempty"`

	// External POS objects backing the auto-apply discount. Empty until
	// activation succeeds; cleared on deactivation.
	POSGroupID       string     `json:"pos_group_id,omitempty"`
	POSDiscountID    string     `json:"pos_discount_id,omitempty"`
	POSPricingRuleID string     `json:"pos_pricing_rule_id,omitempty"`
	POSProductSetID  string     `json:"pos_product_set_id,omitempty"`
	POSSyncedAt      *time.Time `json:"pos_synced_at,omitempty"`

	RedemptionID *string `json:"redemption_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
