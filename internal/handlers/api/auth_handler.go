package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/tenantauth/internal/auth"
	"github.com/khanghh/tenantauth/internal/tokens"
)

type AuthService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	LoginWithProvider(ctx context.Context, req auth.ProviderLoginRequest) (*auth.LoginResult, error)
	Refresh(ctx context.Context, rawRefreshToken string, client tokens.ClientInfo) (*tokens.TokenPair, error)
	Logout(ctx context.Context, accountID uint64, rawRefreshToken string) (bool, error)
	LogoutAll(ctx context.Context, accountID uint64) (int64, error)
	Me(ctx context.Context, accountID uint64) (*auth.Profile, error)
	ChangePassword(ctx context.Context, accountID uint64, currentPassword string, newPassword string) error
	HasPermission(ctx context.Context, accountID uint64, code string) (bool, error)
}

var _ AuthService = (*auth.Service)(nil)

type AuthHandler struct {
	authService AuthService
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func clientInfo(ctx *fiber.Ctx, deviceInfo string) tokens.ClientInfo {
	return tokens.ClientInfo{
		DeviceInfo: deviceInfo,
		IP:         ctx.IP(),
		UserAgent:  ctx.Get(fiber.HeaderUserAgent),
	}
}

func principal(ctx *fiber.Ctx) (*auth.Principal, error) {
	p, ok := ctx.Locals(auth.PrincipalKey).(*auth.Principal)
	if !ok || p == nil {
		return nil, &auth.AuthError{Kind: auth.KindInvalidOrExpired, Err: tokens.ErrInvalidToken}
	}
	return p, nil
}

func parseBody(ctx *fiber.Ctx, out any) error {
	if err := ctx.BodyParser(out); err != nil {
		return &auth.AuthError{Kind: auth.KindValidation, Field: "body", Message: "malformed request body", Err: err}
	}
	return nil
}

func newLoginResponse(result *auth.LoginResult) LoginResponse {
	permissions := result.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return LoginResponse{
		TokenResponse: newTokenResponse(result.Tokens),
		User:          newUserInfo(result.Account),
		Permissions:   permissions,
	}
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	result, err := h.authService.Login(ctx.Context(), auth.LoginRequest{
		TenantCode: req.CompanyCode,
		Email:      req.Email,
		Password:   req.Password,
		Client:     clientInfo(ctx, req.DeviceInfo),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newLoginResponse(result)))
}

func (h *AuthHandler) PostProviderLogin(ctx *fiber.Ctx) error {
	var req providerLoginRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	result, err := h.authService.LoginWithProvider(ctx.Context(), auth.ProviderLoginRequest{
		TenantCode: req.CompanyCode,
		Provider:   ctx.Params("provider"),
		Token:      req.Token,
		Client:     clientInfo(ctx, req.DeviceInfo),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newLoginResponse(result)))
}

func (h *AuthHandler) PostRefresh(ctx *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	pair, err := h.authService.Refresh(ctx.Context(), req.RefreshToken, clientInfo(ctx, req.DeviceInfo))
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newTokenResponse(pair)))
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	var req refreshRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	revoked, err := h.authService.Logout(ctx.Context(), p.AccountID, req.RefreshToken)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"revoked": revoked}))
}

func (h *AuthHandler) PostLogoutAll(ctx *fiber.Ctx) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	count, err := h.authService.LogoutAll(ctx.Context(), p.AccountID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"revoked": count}))
}

func (h *AuthHandler) GetMe(ctx *fiber.Ctx) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	profile, err := h.authService.Me(ctx.Context(), p.AccountID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(ProfileResponse{
		User:        newUserInfo(profile.Account),
		Roles:       profile.Roles,
		Permissions: profile.Permissions,
	}))
}

func (h *AuthHandler) PostChangePassword(ctx *fiber.Ctx) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := h.authService.ChangePassword(ctx.Context(), p.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"changed": true}))
}

func (h *AuthHandler) GetPermissionCheck(ctx *fiber.Ctx) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	code := ctx.Query("code")
	if code == "" {
		return &auth.AuthError{Kind: auth.KindValidation, Field: "code", Message: "permission code is required"}
	}
	allowed, err := h.authService.HasPermission(ctx.Context(), p.AccountID, code)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"allowed": allowed}))
}

func (h *AuthHandler) GetHealth(ctx *fiber.Ctx) error {
	return ctx.JSON(NewDataResponse(fiber.Map{"status": "ok"}))
}

func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}
