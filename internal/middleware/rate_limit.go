package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-autograder/internal/utils"
)

// EvaluationRateLimit caps how many evaluations one caller may start per window.
// Each evaluation launches several sandbox containers.
func EvaluationRateLimit(max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := fmt.Sprintf("%v", c.Locals("user_id"))
			if caller == "" || caller == "0" || caller == "<nil>" {
				caller = c.IP()
			}
			return "evaluations:" + caller
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many evaluations, try again later")
		},
	})
}
