package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FAKUBA08/HaySquare-Back/internal/auth"
	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
	"github.com/FAKUBA08/HaySquare-Back/internal/utils"
)

const adminIDKey = "adminID"

// RequireAdmin rejects requests without a valid admin bearer token. With no
// secret configured every request passes.
func RequireAdmin(v *auth.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isAdmin(c, v) {
			return utils.JSONError(c, domain.ErrUnauthorized)
		}
		return c.Next()
	}
}

// isAdmin checks the Authorization header and stores the admin id in locals.
func isAdmin(c *fiber.Ctx, v *auth.Validator) bool {
	if v == nil || !v.Enabled() {
		return true
	}
	token, err := auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return false
	}
	claims, err := v.Validate(token)
	if err != nil {
		return false
	}
	c.Locals(adminIDKey, claims.AdminID)
	return true
}
