package models

// Well-known setting keys
const (
	SettingLoyaltyEnabled          = "loyalty_enabled"
	SettingDefaultMaxDiscountCents = "default_max_discount_cents"
)

// Setting is a per-tenant key/value configuration row.
type Setting struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;uniqueIndex:idx_setting_tenant_key" json:"tenant_id"`

	Key   string `gorm:"not null;uniqueIndex:idx_setting_tenant_key" json:"key"`
	Value string `gorm:"not null" json:"value"`

	Timestamps
}
