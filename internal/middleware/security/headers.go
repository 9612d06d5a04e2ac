package security

import (
	"github.com/gofiber/fiber/v2"
)

// The API only ever returns JSON, so nothing may be loaded or framed.
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

type HeadersConfig struct {
	IsDevelopment bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderXFrameOptions, "DENY")
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderReferrerPolicy, "no-referrer")
		c.Set(fiber.HeaderContentSecurityPolicy, apiContentSecurityPolicy)
		// Answers describe live ledger data.
		c.Set(fiber.HeaderCacheControl, "no-store")

		if !cfg.IsDevelopment {
			c.Set(fiber.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}
