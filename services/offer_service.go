// services/offer_service.go
package services

import (
	"errors"
	"log"

	"frequent-buyer-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OfferService struct {
	DB    *gorm.DB
	Audit *AuditService
}

func NewOfferService(db *gorm.DB, audit *AuditService) *OfferService {
	return &OfferService{DB: db, Audit: audit}
}

// --- Admin Handlers ---

// CreateOffer creates a new frequent-buyer offer (Admin only). One offer per
// brand+size group is enforced by the unique index.
func (s *OfferService) CreateOffer(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	actor := c.Get("X-User-ID")

	var req struct {
		Brand            string `json:"brand"`
		SizeGroup        string `json:"size_group"`
		RequiredQuantity int    `json:"required_quantity"`
		WindowMonths     int    `json:"window_months"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Brand == "" || req.SizeGroup == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "brand and size_group are required"})
	}
	if req.RequiredQuantity < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "required_quantity must be at least 1"})
	}
	if req.WindowMonths < 1 {
		req.WindowMonths = 12
	}

	offer := &models.Offer{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Brand:            req.Brand,
		SizeGroup:        req.SizeGroup,
		RequiredQuantity: req.RequiredQuantity,
		RewardQuantity:   1,
		WindowMonths:     req.WindowMonths,
		Active:           true,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(offer).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.OfferChange(models.AuditOfferCreated, nil, offer),
			AuditRefs{ActorID: actor, OfferID: &offer.ID})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "An offer for this brand and size group already exists"})
		}
		log.Printf("DB Error creating offer: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create offer"})
	}

	return c.Status(fiber.StatusCreated).JSON(offer)
}

// UpdateOffer updates offer configuration (Admin only)
func (s *OfferService) UpdateOffer(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	actor := c.Get("X-User-ID")
	id := c.Params("id")

	var existing models.Offer
	if err := s.DB.Where("tenant_id = ? AND id = ?", tenantID, id).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	before := existing

	var req struct {
		RequiredQuantity *int  `json:"required_quantity"`
		WindowMonths     *int  `json:"window_months"`
		Active           *bool `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RequiredQuantity != nil {
		if *req.RequiredQuantity < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "required_quantity must be at least 1"})
		}
		existing.RequiredQuantity = *req.RequiredQuantity
	}
	if req.WindowMonths != nil && *req.WindowMonths >= 1 {
		existing.WindowMonths = *req.WindowMonths
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.OfferChange(models.AuditOfferUpdated, &before, &existing),
			AuditRefs{ActorID: actor, OfferID: &existing.ID})
	})
	if err != nil {
		log.Printf("DB Error updating offer: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update offer"})
	}

	return c.JSON(existing)
}

// DeleteOffer soft-deletes the offer configuration. Historical rewards and
// ledger rows referencing it are untouched.
func (s *OfferService) DeleteOffer(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	actor := c.Get("X-User-ID")
	id := c.Params("id")

	var offer models.Offer
	if err := s.DB.Where("tenant_id = ? AND id = ?", tenantID, id).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&offer).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND offer_id = ?", tenantID, offer.ID).
			Delete(&models.QualifyingVariation{}).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.OfferChange(models.AuditOfferDeleted, &offer, nil),
			AuditRefs{ActorID: actor, OfferID: &offer.ID})
	})
	if err != nil {
		log.Printf("DB Error deleting offer: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete offer"})
	}

	return c.JSON(fiber.Map{"message": "Offer deleted successfully"})
}

// ListOffers returns the tenant's offers
func (s *OfferService) ListOffers(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	var offers []models.Offer
	if err := s.DB.Where("tenant_id = ?", tenantID).Order("brand ASC, size_group ASC").Find(&offers).Error; err != nil {
		log.Printf("DB Error fetching offers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch offers"})
	}
	return c.JSON(offers)
}

// AddVariation adds a catalog variation to an offer's allow-list
func (s *OfferService) AddVariation(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	actor := c.Get("X-User-ID")
	offerID := c.Params("id")

	var req struct {
		VariationID string `json:"variation_id"`
		ItemName    string `json:"item_name"`
	}
	if err := c.BodyParser(&req); err != nil || req.VariationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "variation_id is required"})
	}

	var offer models.Offer
	if err := s.DB.Where("tenant_id = ? AND id = ?", tenantID, offerID).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	variation := &models.QualifyingVariation{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		OfferID:     offer.ID,
		VariationID: req.VariationID,
		ItemName:    req.ItemName,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(variation).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.VariationChangeDetails{
			VariationID: req.VariationID,
			OfferID:     offer.ID,
			Added:       true,
		}, AuditRefs{ActorID: actor, OfferID: &offer.ID})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Variation is already allow-listed"})
		}
		log.Printf("DB Error adding variation: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to add variation"})
	}

	return c.Status(fiber.StatusCreated).JSON(variation)
}

// RemoveVariation removes a variation from the allow-list
func (s *OfferService) RemoveVariation(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	actor := c.Get("X-User-ID")
	offerID := c.Params("id")
	variationID := c.Params("variation_id")

	var variation models.QualifyingVariation
	if err := s.DB.Where("tenant_id = ? AND offer_id = ? AND variation_id = ?", tenantID, offerID, variationID).
		First(&variation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Variation not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&variation).Error; err != nil {
			return err
		}
		return s.Audit.Append(tx, tenantID, models.VariationChangeDetails{
			VariationID: variationID,
			OfferID:     offerID,
			Added:       false,
		}, AuditRefs{ActorID: actor, OfferID: &offerID})
	})
	if err != nil {
		log.Printf("DB Error removing variation: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to remove variation"})
	}

	return c.JSON(fiber.Map{"message": "Variation removed successfully"})
}

// ListVariations returns an offer's allow-list
func (s *OfferService) ListVariations(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	offerID := c.Params("id")

	var variations []models.QualifyingVariation
	if err := s.DB.Where("tenant_id = ? AND offer_id = ?", tenantID, offerID).Find(&variations).Error; err != nil {
		log.Printf("DB Error fetching variations: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch variations"})
	}
	return c.JSON(variations)
}
