// services/settings_service.go
package services

import (
	"errors"
	"strconv"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsService struct {
	DB    *gorm.DB
	Audit *AuditService

	// DefaultMaxDiscountCents is the process-wide fallback used when a tenant
	// has not configured its own default_max_discount_cents policy value.
	DefaultMaxDiscountCents int64
}

func NewSettingsService(db *gorm.DB, audit *AuditService, defaultMaxDiscountCents int64) *SettingsService {
	return &SettingsService{DB: db, Audit: audit, DefaultMaxDiscountCents: defaultMaxDiscountCents}
}

// Get returns the stored value for a key, or "" when unset.
func (s *SettingsService) Get(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", ErrMissingTenant
	}
	var setting models.Setting
	err := s.DB.Where("tenant_id = ? AND key = ?", tenantID, key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Update upserts a setting and audits the change.
func (s *SettingsService) Update(tenantID, key, value, actor string) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	old, err := s.Get(tenantID, key)
	if err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		setting := models.Setting{
			ID:       uuid.NewString(),
			TenantID: tenantID,
			Key:      key,
			Value:    value,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.SettingUpdatedDetails{
			Key:      key,
			OldValue: old,
			NewValue: value,
		}, AuditRefs{ActorID: actor})
	})
}

// LoyaltyEnabled is the master switch: when off, all purchase and refund
// processing short-circuits. Unset means enabled.
func (s *SettingsService) LoyaltyEnabled(tenantID string) bool {
	val, err := s.Get(tenantID, models.SettingLoyaltyEnabled)
	if err != nil {
		// fail open: the ledger path decides, and a store failure there
		// rolls back anyway
		return true
	}
	return val != "false"
}

// MaxDiscountFallbackCents returns the tenant's configured "price of one free
// item when data is missing" policy value, falling back to the process-wide
// default.
func (s *SettingsService) MaxDiscountFallbackCents(tenantID string) int64 {
	val, err := s.Get(tenantID, models.SettingDefaultMaxDiscountCents)
	if err == nil && val != "" {
		if cents, perr := strconv.ParseInt(val, 10, 64); perr == nil && cents > 0 {
			return cents
		}
	}
	return s.DefaultMaxDiscountCents
}
