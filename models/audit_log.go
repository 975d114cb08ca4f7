package models

import "time"

// AuditAction identifies what kind of state change an audit entry records.
type AuditAction string

const (
	AuditOfferCreated     AuditAction = "offer_created"
	AuditOfferUpdated     AuditAction = "offer_updated"
	AuditOfferDeleted     AuditAction = "offer_deleted"
	AuditVariationAdded   AuditAction = "variation_added"
	AuditVariationRemoved AuditAction = "variation_removed"

	AuditPurchaseRecorded AuditAction = "purchase_recorded"
	AuditRefundProcessed  AuditAction = "refund_processed"
	AuditProgressUpdated  AuditAction = "progress_updated"
	AuditRewardEarned     AuditAction = "reward_earned"
	AuditRewardRevoked    AuditAction = "reward_revoked"
	AuditRewardRedeemed   AuditAction = "reward_redeemed"
	AuditWindowExpired    AuditAction = "window_expired"

	AuditPOSActivated        AuditAction = "pos_activated"
	AuditPOSActivationFailed AuditAction = "pos_activation_failed"
	AuditPOSDeactivated      AuditAction = "pos_deactivated"

	AuditSettingUpdated AuditAction = "setting_updated"
)

// AuditDetails is implemented by one concrete payload type per action, so the
// compiler checks what each action logs instead of an untyped blob.
type AuditDetails interface {
	AuditAction() AuditAction
}

type PurchaseRecordedDetails struct {
	OrderID        string `json:"order_id"`
	VariationID    string `json:"variation_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	WindowEndDate  string `json:"window_end_date"`
}

func (PurchaseRecordedDetails) AuditAction() AuditAction { return AuditPurchaseRecorded }

type RefundProcessedDetails struct {
	OrderID        string  `json:"order_id"`
	VariationID    string  `json:"variation_id"`
	Quantity       int     `json:"quantity"`
	RefundsEventID *string `json:"refunds_event_id,omitempty"`
}

func (RefundProcessedDetails) AuditAction() AuditAction { return AuditRefundProcessed }

type ProgressUpdatedDetails struct {
	PreviousQuantity int `json:"previous_quantity"`
	NewQuantity      int `json:"new_quantity"`
	RequiredQuantity int `json:"required_quantity"`
}

func (ProgressUpdatedDetails) AuditAction() AuditAction { return AuditProgressUpdated }

type RewardEarnedDetails struct {
	RequiredQuantity int      `json:"required_quantity"`
	LockedEventIDs   []string `json:"locked_event_ids"`
}

func (RewardEarnedDetails) AuditAction() AuditAction { return AuditRewardEarned }

type RewardRevokedDetails struct {
	Reason           string   `json:"reason"`
	UnlockedEventIDs []string `json:"unlocked_event_ids"`
}

func (RewardRevokedDetails) AuditAction() AuditAction { return AuditRewardRevoked }

type RewardRedeemedDetails struct {
	RedemptionType string  `json:"redemption_type"`
	OrderID        *string `json:"order_id,omitempty"`
	ValueCents     int64   `json:"value_cents"`
	Actor          string  `json:"actor"`
}

func (RewardRedeemedDetails) AuditAction() AuditAction { return AuditRewardRedeemed }

type WindowExpiredDetails struct {
	ExpiredEventIDs  []string `json:"expired_event_ids"`
	PreviousQuantity int      `json:"previous_quantity"`
	NewQuantity      int      `json:"new_quantity"`
}

func (WindowExpiredDetails) AuditAction() AuditAction { return AuditWindowExpired }

type POSActivatedDetails struct {
	GroupID        string `json:"group_id"`
	DiscountID     string `json:"discount_id"`
	PricingRuleID  string `json:"pricing_rule_id"`
	MaxAmountCents int64  `json:"max_amount_cents"`
}

func (POSActivatedDetails) AuditAction() AuditAction { return AuditPOSActivated }

type POSActivationFailedDetails struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

func (POSActivationFailedDetails) AuditAction() AuditAction { return AuditPOSActivationFailed }

type POSDeactivatedDetails struct {
	GroupID    string `json:"group_id"`
	DiscountID string `json:"discount_id"`
}

func (POSDeactivatedDetails) AuditAction() AuditAction { return AuditPOSDeactivated }

type OfferChangeDetails struct {
	Before *Offer `json:"before,omitempty"`
	After  *Offer `json:"after,omitempty"`

	action AuditAction `json:"-"`
}

// OfferChange builds the payload for offer create/update/delete entries.
func OfferChange(action AuditAction, before, after *Offer) OfferChangeDetails {
	return OfferChangeDetails{Before: before, After: after, action: action}
}

func (d OfferChangeDetails) AuditAction() AuditAction { return d.action }

type VariationChangeDetails struct {
	VariationID string `json:"variation_id"`
	OfferID     string `json:"offer_id"`
	Added       bool   `json:"added"`
}

func (d VariationChangeDetails) AuditAction() AuditAction {
	if d.Added {
		return AuditVariationAdded
	}
	return AuditVariationRemoved
}

type SettingUpdatedDetails struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

func (SettingUpdatedDetails) AuditAction() AuditAction { return AuditSettingUpdated }

// AuditLogEntry is append-only: one row per state-changing action, never
// mutated or deleted. Details holds the JSON-encoded typed payload.
type AuditLogEntry struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;index" json:"tenant_id"`

	Action AuditAction `gorm:"not null;index" json:"action"`

	CustomerID string `gorm:"index" json:"customer_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`

	OfferID         *string `gorm:"index" json:"offer_id,omitempty"`
	RewardID        *string `gorm:"index" json:"reward_id,omitempty"`
	PurchaseEventID *string `json:"purchase_event_id,omitempty"`
	RedemptionID    *string `json:"redemption_id,omitempty"`

	Details string `gorm:"type:jsonb" json:"details"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
