package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/tenantauth/internal/auth"
	"github.com/khanghh/tenantauth/internal/handlers/api"
)

const (
	msgAuthenticationFailed = "authentication failed"
	msgAccountLocked        = "account locked"
	msgInvalidToken         = "invalid or expired token"
	msgInvalidRequest       = "invalid request"
	msgProviderUnavailable  = "identity provider unavailable"
	msgInternalError        = "internal server error"
)

func renderAuthError(ctx *fiber.Ctx, authErr *auth.AuthError) error {
	switch authErr.Kind {
	case auth.KindNotFound, auth.KindBadCredential, auth.KindNoMatchingAccount, auth.KindInvalidProviderToken:
		return ctx.Status(fiber.StatusUnauthorized).JSON(api.NewErrorResponse(fiber.StatusUnauthorized, msgAuthenticationFailed))
	case auth.KindAccountLocked:
		resp := api.NewErrorResponse(fiber.StatusLocked, msgAccountLocked)
		resp.Error.LockedUntil = authErr.LockedUntil
		return ctx.Status(fiber.StatusLocked).JSON(resp)
	case auth.KindInvalidOrExpired:
		return ctx.Status(fiber.StatusUnauthorized).JSON(api.NewErrorResponse(fiber.StatusUnauthorized, msgInvalidToken))
	case auth.KindValidation:
		detail := api.APIErrorDetail{
			Domain:  authErr.Field,
			Reason:  string(authErr.Kind),
			Message: authErr.Message,
		}
		return ctx.Status(fiber.StatusBadRequest).JSON(api.NewErrorResponse(fiber.StatusBadRequest, msgInvalidRequest, detail))
	case auth.KindExternalService:
		return ctx.Status(fiber.StatusBadGateway).JSON(api.NewErrorResponse(fiber.StatusBadGateway, msgProviderUnavailable))
	}
	slog.Error("unhandled auth error kind", "path", ctx.Path(), "kind", authErr.Kind, "error", authErr.Err)
	return ctx.Status(fiber.StatusInternalServerError).JSON(api.NewErrorResponse(fiber.StatusInternalServerError, msgInternalError))
}

// ErrorHandler renders every error returned by a handler as an APIResponse.
// Authentication failures never reveal their internal reason.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return renderAuthError(ctx, authErr)
	}

	code := fiber.StatusInternalServerError
	message := msgInternalError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("unhandled error", "path", ctx.Path(), "code", code, "error", err)
		message = msgInternalError
	}
	return ctx.Status(code).JSON(api.NewErrorResponse(code, message))
}
