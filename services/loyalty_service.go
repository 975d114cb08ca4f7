// services/loyalty_service.go
package services

import (
	"errors"
	"log"
	"strconv"

	"frequent-buyer-system/models"

	"github.com/gofiber/fiber/v2"
)

// LoyaltyService exposes the loyalty operations to collaborators: webhook
// ingestion, customer status/history reads, redemption, and settings.
type LoyaltyService struct {
	Ledger      *LedgerService
	Rewards     *RewardStateService
	Redemptions *RedemptionService
	Summary     *SummaryService
	Audit       *AuditService
	Settings    *SettingsService
}

func NewLoyaltyService(ledger *LedgerService, rewards *RewardStateService, redemptions *RedemptionService, summary *SummaryService, audit *AuditService, settings *SettingsService) *LoyaltyService {
	return &LoyaltyService{
		Ledger:      ledger,
		Rewards:     rewards,
		Redemptions: redemptions,
		Summary:     summary,
		Audit:       audit,
		Settings:    settings,
	}
}

// --- Webhook-driven ingestion ---
// These paths must never fail loudly enough to break delivery acknowledgment:
// processing failures are absorbed and logged, and the catchup reconciler
// recovers the missed events out-of-band.

// HandlePurchaseWebhook records a completed order's qualifying purchases
func (s *LoyaltyService) HandlePurchaseWebhook(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	var event OrderEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	event.TenantID = tenantID

	result, err := s.Ledger.RecordPurchase(event)
	if err != nil {
		log.Printf("[WEBHOOK] Purchase processing failed for order %s: %v", event.OrderID, err)
		return c.JSON(RecordResult{Processed: false, Reason: "processing_failed"})
	}
	return c.JSON(result)
}

// HandleRefundWebhook records an order's qualifying refund lines
func (s *LoyaltyService) HandleRefundWebhook(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	var event OrderEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	event.TenantID = tenantID

	result, err := s.Ledger.RecordRefund(event)
	if err != nil {
		log.Printf("[WEBHOOK] Refund processing failed for order %s: %v", event.OrderID, err)
		return c.JSON(RecordResult{Processed: false, Reason: "processing_failed"})
	}
	return c.JSON(result)
}

// --- Reads ---

// GetCustomerStatus returns the customer's summaries, optionally for one offer
func (s *LoyaltyService) GetCustomerStatus(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	customerID := c.Params("customer_id")

	var offerID *string
	if v := c.Query("offer_id"); v != "" {
		offerID = &v
	}

	summaries, err := s.Summary.GetForCustomer(tenantID, customerID, offerID)
	if err != nil {
		log.Printf("DB Error fetching customer status: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch status"})
	}
	return c.JSON(fiber.Map{"customer_id": customerID, "offers": summaries})
}

// GetCustomerHistory returns purchases, rewards, and redemptions
func (s *LoyaltyService) GetCustomerHistory(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	customerID := c.Params("customer_id")

	limit := 50
	if v := c.Query("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
		}
		if l > 200 {
			l = 200
		}
		limit = l
	}
	var offerID *string
	if v := c.Query("offer_id"); v != "" {
		offerID = &v
	}

	purchases := s.Ledger.DB.Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	rewards := s.Ledger.DB.Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	if offerID != nil {
		purchases = purchases.Where("offer_id = ?", *offerID)
		rewards = rewards.Where("offer_id = ?", *offerID)
	}

	var events []models.PurchaseEvent
	if err := purchases.Order("purchased_at DESC").Limit(limit).Find(&events).Error; err != nil {
		log.Printf("DB Error fetching purchase history: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch history"})
	}
	var rewardRows []models.Reward
	if err := rewards.Order("created_at DESC").Limit(limit).Find(&rewardRows).Error; err != nil {
		log.Printf("DB Error fetching reward history: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch history"})
	}
	redemptions, err := s.Redemptions.GetHistory(tenantID, customerID, offerID, limit)
	if err != nil {
		log.Printf("DB Error fetching redemption history: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch history"})
	}

	return c.JSON(fiber.Map{
		"purchases":   events,
		"rewards":     rewardRows,
		"redemptions": redemptions,
	})
}

// --- Redemption ---

// RedeemReward is the staff-initiated redemption entry point
func (s *LoyaltyService) RedeemReward(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	rewardID := c.Params("id")

	var req struct {
		CustomerID string  `json:"customer_id"`
		OrderID    *string `json:"order_id"`
		ValueCents int64   `json:"value_cents"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	redemption, reward, err := s.Redemptions.Redeem(tenantID, rewardID, RedeemContext{
		Type:       redemptionTypeFor(req.OrderID),
		CustomerID: req.CustomerID,
		OrderID:    req.OrderID,
		ValueCents: req.ValueCents,
		Actor:      c.Get("X-User-ID"),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRewardNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found"})
		case errors.Is(err, ErrRewardNotEarned):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Reward is not in earned status"})
		case errors.Is(err, ErrCustomerMismatch):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Customer does not match reward"})
		}
		log.Printf("Redemption failed for reward %s: %v", rewardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to redeem reward"})
	}

	return c.JSON(fiber.Map{"redemption": redemption, "reward": reward})
}

// DetectRedemption inspects a completed order for an auto-applied reward
// discount
func (s *LoyaltyService) DetectRedemption(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	var order CompletedOrder
	if err := c.BodyParser(&order); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	detected, rewardID, err := s.Redemptions.DetectFromOrder(tenantID, order)
	if err != nil {
		log.Printf("Redemption detection failed for order %s: %v", order.OrderID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to inspect order"})
	}
	resp := fiber.Map{"detected": detected}
	if detected {
		resp["reward_id"] = rewardID
	}
	return c.JSON(resp)
}

// --- Maintenance ---

// ProcessExpiredWindows runs the window-expiry sweep for the tenant
func (s *LoyaltyService) ProcessExpiredWindows(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	count, err := s.Rewards.ProcessExpiredWindows(tenantID)
	if err != nil {
		log.Printf("Expiry sweep failed for tenant %s: %v", tenantID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Expiry sweep failed"})
	}
	return c.JSON(fiber.Map{"processed_count": count})
}

// --- Settings ---

// GetSetting returns a tenant setting value
func (s *LoyaltyService) GetSetting(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	key := c.Params("key")

	value, err := s.Settings.Get(tenantID, key)
	if err != nil {
		log.Printf("DB Error fetching setting %s: %v", key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch setting"})
	}
	return c.JSON(fiber.Map{"key": key, "value": value})
}

// UpdateSetting upserts a tenant setting
func (s *LoyaltyService) UpdateSetting(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	key := c.Params("key")

	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := s.Settings.Update(tenantID, key, req.Value, c.Get("X-User-ID")); err != nil {
		log.Printf("DB Error updating setting %s: %v", key, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update setting"})
	}
	return c.JSON(fiber.Map{"key": key, "value": req.Value})
}

// GetAuditTrail returns a customer's audit entries (Admin only)
func (s *LoyaltyService) GetAuditTrail(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)
	customerID := c.Params("customer_id")

	limit := 100
	if v := c.Query("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	entries, err := s.Audit.ListForCustomer(tenantID, customerID, limit)
	if err != nil {
		log.Printf("DB Error fetching audit trail: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch audit trail"})
	}
	return c.JSON(entries)
}
