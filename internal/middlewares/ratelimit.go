package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/khanghh/tenantauth/params"
)

// LoginRateLimit limits login attempts per client IP. A nil storage keeps the
// counters in process memory.
func LoginRateLimit(max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return params.RateLimitKeyPrefix + ctx.IP()
		},
		LimitReached: func(ctx *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts")
		},
	})
}
