// handlers/loyalty_routes.go
package handlers

import (
	"time"

	"frequent-buyer-system/middleware"
	"frequent-buyer-system/services"
	"frequent-buyer-system/workers"

	"github.com/gofiber/fiber/v2"
)

// SetupLoyaltyRoutes registers the webhook ingestion and customer-facing
// loyalty endpoints. All routes require tenant context.
func SetupLoyaltyRoutes(app *fiber.App, loyalty *services.LoyaltyService) {
	tenant := app.Group("/", middleware.TenantContextMiddleware())

	// webhook-driven ingestion — always acknowledges delivery
	tenant.Post("/webhooks/orders", loyalty.HandlePurchaseWebhook)
	tenant.Post("/webhooks/refunds", loyalty.HandleRefundWebhook)

	// customer reads
	tenant.Get("/customers/:customer_id/status", loyalty.GetCustomerStatus)
	tenant.Get("/customers/:customer_id/history", loyalty.GetCustomerHistory)

	// redemption
	tenant.Post("/rewards/:id/redeem", loyalty.RedeemReward)
	tenant.Post("/orders/detect-redemption", loyalty.DetectRedemption)
}

// SetupAdminRoutes registers administrative configuration and maintenance
// endpoints.
func SetupAdminRoutes(app *fiber.App, offers *services.OfferService, loyalty *services.LoyaltyService, catchup *workers.CatchupReconciler) {
	admin := app.Group("/admin", middleware.TenantContextMiddleware())

	admin.Post("/offers", offers.CreateOffer)
	admin.Get("/offers", offers.ListOffers)
	admin.Put("/offers/:id", offers.UpdateOffer)
	admin.Delete("/offers/:id", offers.DeleteOffer)
	admin.Post("/offers/:id/variations", offers.AddVariation)
	admin.Get("/offers/:id/variations", offers.ListVariations)
	admin.Delete("/offers/:id/variations/:variation_id", offers.RemoveVariation)

	admin.Get("/settings/:key", loyalty.GetSetting)
	admin.Put("/settings/:key", loyalty.UpdateSetting)

	admin.Post("/maintenance/expire-windows", loyalty.ProcessExpiredWindows)
	admin.Get("/customers/:customer_id/audit", loyalty.GetAuditTrail)

	// on-demand catchup over a time range
	admin.Post("/maintenance/catchup", func(c *fiber.Ctx) error {
		tenantID := c.Locals("tenant_id").(string)

		var req struct {
			Begin time.Time `json:"begin"`
			End   time.Time `json:"end"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.End.IsZero() {
			req.End = time.Now().UTC()
		}
		if req.Begin.IsZero() || !req.Begin.Before(req.End) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "begin must be before end"})
		}

		result, err := catchup.Run(c.Context(), tenantID, req.Begin, req.End)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "catchup run failed",
				"details": err.Error(),
			})
		}
		return c.JSON(result)
	})
}
