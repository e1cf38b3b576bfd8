package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-autograder/internal/utils"
)

// RequireRole ensures that the authenticated user holds one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireStaff admits teachers and admins, the people who grade and answer prompts.
func RequireStaff() fiber.Handler {
	return RequireRole(RoleTeacher, RoleAdmin)
}

// IsStaff reports whether role may see every evaluation.
func IsStaff(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}
