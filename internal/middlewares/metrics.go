package middlewares

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/tenantauth/internal/metrics"
)

// RequestMetrics records the count and latency of every request by route
// pattern. Errors are rendered here so that the final status is observed.
func RequestMetrics() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		if err := ctx.Next(); err != nil {
			if err := ctx.App().ErrorHandler(ctx, err); err != nil {
				_ = ctx.SendStatus(fiber.StatusInternalServerError)
			}
		}
		metrics.ObserveHTTPRequest(ctx.Method(), ctx.Route().Path, ctx.Response().StatusCode(), time.Since(start))
		return nil
	}
}
