package models

import "time"

// RedemptionType records how a reward was consumed
type RedemptionType string

const (
	RedemptionTypePOSDetected   RedemptionType = "pos_detected"   // discovered on a completed order's discounts
	RedemptionTypeManual        RedemptionType = "manual"         // staff-initiated
	RedemptionTypeOrderDiscount RedemptionType = "order_discount" // applied as an order-level discount
)

// Redemption is the immutable record of a consumed reward. Exactly one row is
// ever created per reward redemption.
type Redemption struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;index" json:"tenant_id"`

	RewardID   string `gorm:"not null;uniqueIndex" json:"reward_id"`
	OfferID    string `gorm:"not null;index" json:"offer_id"`
	CustomerID string `gorm:"not null;index" json:"customer_id"`

	Type       RedemptionType `gorm:"not null" json:"type"`
	OrderID    *string        `gorm:"index" json:"order_id,omitempty"`
	ValueCents int64          `json:"value_cents"`
	Actor      string         `json:"actor"`

	RedeemedAt time.Time `gorm:"not null" json:"redeemed_at"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
