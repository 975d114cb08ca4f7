// services/audit_service.go
package services

import (
	"encoding/json"
	"fmt"
	"time"

	"frequent-buyer-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditService struct {
	DB *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{DB: db}
}

// AuditRefs carries the optional entity references an entry points at.
type AuditRefs struct {
	CustomerID      string
	ActorID         string
	OfferID         *string
	RewardID        *string
	PurchaseEventID *string
	RedemptionID    *string
}

// Append writes one immutable audit row inside the caller's transaction. The
// action is taken from the typed details payload, so every action logs a
// payload shape checked at compile time. Pass s.DB as tx for standalone
// entries outside any transaction.
func (s *AuditService) Append(tx *gorm.DB, tenantID string, details models.AuditDetails, refs AuditRefs) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	entry := &models.AuditLogEntry{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		Action:          details.AuditAction(),
		CustomerID:      refs.CustomerID,
		ActorID:         refs.ActorID,
		OfferID:         refs.OfferID,
		RewardID:        refs.RewardID,
		PurchaseEventID: refs.PurchaseEventID,
		RedemptionID:    refs.RedemptionID,
		Details:         string(payload),
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListForCustomer returns a customer's audit trail, newest first.
func (s *AuditService) ListForCustomer(tenantID, customerID string, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.AuditLogEntry
	err := s.DB.Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// EntriesForDay returns all of a tenant's entries created on the given UTC
// day. Used by the archive export job.
func (s *AuditService) EntriesForDay(tenantID string, day time.Time) ([]models.AuditLogEntry, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	var entries []models.AuditLogEntry
	err := s.DB.Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, start, end).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
