package api

import "github.com/gofiber/fiber/v2"

// SetupAuthRoutes mounts the authentication endpoints on router. loginLimiter
// guards the credential-checking routes; requireAuth guards the rest.
func SetupAuthRoutes(router fiber.Router, handler *AuthHandler, requireAuth fiber.Handler, loginLimiter fiber.Handler) {
	router.Get("/health", handler.GetHealth)
	router.Post("/login", loginLimiter, handler.PostLogin)
	router.Post("/login/:provider", loginLimiter, handler.PostProviderLogin)
	router.Post("/refresh", handler.PostRefresh)
	router.Post("/logout", requireAuth, handler.PostLogout)
	router.Post("/logout-all", requireAuth, handler.PostLogoutAll)
	router.Get("/me", requireAuth, handler.GetMe)
	router.Post("/password", requireAuth, handler.PostChangePassword)
	router.Get("/permissions/check", requireAuth, handler.GetPermissionCheck)
}
