package middlewares

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/tenantauth/internal/auth"
	"github.com/khanghh/tenantauth/internal/rbac"
	"github.com/khanghh/tenantauth/internal/tokens"
)

type AccessTokenParser interface {
	Parse(tokenStr string) (*tokens.AccessClaims, error)
}

var errUnauthorized = &auth.AuthError{Kind: auth.KindInvalidOrExpired, Err: tokens.ErrInvalidToken}

func bearerToken(ctx *fiber.Ctx) string {
	header := ctx.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth verifies the bearer access token and stores the caller as an
// *auth.Principal in Locals.
func RequireAuth(parser AccessTokenParser) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			return errUnauthorized
		}
		claims, err := parser.Parse(tokenStr)
		if err != nil {
			return errUnauthorized
		}
		accountID, err := claims.AccountID()
		if err != nil || accountID == 0 {
			return errUnauthorized
		}
		ctx.Locals(auth.PrincipalKey, &auth.Principal{
			AccountID:   accountID,
			TenantCode:  claims.TenantCode,
			Permissions: claims.Permissions,
			TokenID:     claims.ID,
		})
		return ctx.Next()
	}
}

// GetPrincipal returns the caller stored by RequireAuth, or nil.
func GetPrincipal(ctx *fiber.Ctx) *auth.Principal {
	principal, _ := ctx.Locals(auth.PrincipalKey).(*auth.Principal)
	return principal
}

// RequirePermissions allows the request when the token grants any of codes.
func RequirePermissions(codes ...string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		principal := GetPrincipal(ctx)
		if principal == nil {
			return errUnauthorized
		}
		if !rbac.NewPermissionSet(principal.Permissions...).HasAny(codes...) {
			return fiber.NewError(fiber.StatusForbidden, "permission denied")
		}
		return ctx.Next()
	}
}
