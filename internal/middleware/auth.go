package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	licenseKeyLocal = "licenseKey"
	// AdminKeyHeader carries the shared admin secret.
	AdminKeyHeader = "Admin-Key"
)

// LicenseAuth extracts the bearer license key. A missing "Bearer " prefix is
// tolerated, desktop clients in the field send the raw key.
func LicenseAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing key",
			})
		}

		// fiber reuses header buffers after the handler returns
		c.Locals(licenseKeyLocal, strings.Clone(key))
		return c.Next()
	}
}

// LicenseKey returns the key stored by LicenseAuth.
func LicenseKey(c *fiber.Ctx) string {
	key, _ := c.Locals(licenseKeyLocal).(string)
	return key
}

// AdminKey returns the presented admin secret. Verification belongs to the
// issuance service.
func AdminKey(c *fiber.Ctx) string {
	return c.Get(AdminKeyHeader)
}
