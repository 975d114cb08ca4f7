// middleware/tenant.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// TenantContextMiddleware enforces tenant isolation at the edge: every
// request must carry X-Tenant-ID, and every downstream query is scoped by it.
// An operation without a tenant never reaches the ledger.
func TenantContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := c.Get("X-Tenant-ID")
		if tenantID == "" {
			log.Printf("❌ [TENANT_CTX] X-Tenant-ID missing on %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing X-Tenant-ID: request must come through gateway with tenant context",
			})
		}

		c.Locals("tenant_id", tenantID)
		return c.Next()
	}
}
