package models

import (
	"time"

	"gorm.io/gorm"
)

// Offer is a configured frequent-buyer program: buy RequiredQuantity units of
// a brand+size group within WindowMonths, get one free.
type Offer struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;index;uniqueIndex:idx_offer_tenant_brand_size" json:"tenant_id"`

	Brand     string `gorm:"not null;uniqueIndex:idx_offer_tenant_brand_size" json:"brand"`
	SizeGroup string `gorm:"not null;uniqueIndex:idx_offer_tenant_brand_size" json:"size_group"`

	RequiredQuantity int  `gorm:"not null" json:"required_quantity"`
	RewardQuantity   int  `gorm:"not null;default:1" json:"reward_quantity"`
	WindowMonths     int  `gorm:"not null;default:12" json:"window_months"`
	Active           bool `gorm:"default:true" json:"active"`

	Timestamps
}

// QualifyingVariation is the explicit allow-list entry mapping a catalog item
// variation to an offer. Only listed variations count toward progress.
type QualifyingVariation struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	TenantID string `gorm:"not null;index;uniqueIndex:idx_qv_tenant_variation" json:"tenant_id"`
	OfferID  string `gorm:"not null;index" json:"offer_id"`

	VariationID string `gorm:"not null;uniqueIndex:idx_qv_tenant_variation" json:"variation_id"`
	ItemName    string `json:"item_name"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
