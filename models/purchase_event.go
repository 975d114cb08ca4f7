package models

import "time"

// PurchaseEvent is an immutable ledger row. Positive Quantity is a purchase,
// negative is a refund. Rows are never deleted; the only mutation ever applied
// is setting/clearing RewardID when an earned reward locks or releases the
// event.
type PurchaseEvent struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;index;uniqueIndex:idx_event_tenant_idem_key" json:"tenant_id"`

	OfferID    string `gorm:"not null;index:idx_event_pair" json:"offer_id"`
	CustomerID string `gorm:"not null;index:idx_event_pair" json:"customer_id"`

	OrderID     string `gorm:"not null;index" json:"order_id"`
	LocationID  string `json:"location_id"`
	VariationID string `gorm:"not null" json:"variation_id"`

	Quantity       int   `gorm:"not null" json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`

	PurchasedAt     time.Time `gorm:"not null" json:"purchased_at"`
	WindowStartDate time.Time `gorm:"not null" json:"window_start_date"`
	WindowEndDate   time.Time `gorm:"not null;index" json:"window_end_date"`

	// RewardID is set once the event is locked into an earned reward and
	// cleared again if that reward is revoked.
	RewardID *string `gorm:"index" json:"reward_id,omitempty"`

	IdempotencyKey string `gorm:"not null;uniqueIndex:idx_event_tenant_idem_key" json:"idempotency_key"`

	IsRefund       bool    `gorm:"default:false" json:"is_refund"`
	RefundsEventID *string `gorm:"index" json:"refunds_event_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
