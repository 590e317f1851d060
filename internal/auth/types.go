package auth

import (
	"context"

	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/audit"
	"github.com/khanghh/tenantauth/internal/identity"
	"github.com/khanghh/tenantauth/internal/mail"
	"github.com/khanghh/tenantauth/internal/rbac"
	"github.com/khanghh/tenantauth/internal/tenants"
	"github.com/khanghh/tenantauth/internal/tokens"
	"github.com/khanghh/tenantauth/model"
)

type TenantService interface {
	GetActiveTenant(ctx context.Context, code string) (*model.Tenant, error)
}

type CredentialStore interface {
	VerifyPassword(ctx context.Context, tenantCode string, email string, candidate string) (*model.Account, error)
	Touch(ctx context.Context, account *model.Account) error
}

type AccountService interface {
	GetAccount(ctx context.Context, accountID uint64) (*model.Account, error)
	ChangePassword(ctx context.Context, accountID uint64, currentPassword string, newPassword string) error
}

type IdentityVerifier interface {
	Verify(ctx context.Context, provider string, token string) (*identity.VerifiedIdentity, error)
}

type IdentityLinker interface {
	ResolveOrLink(ctx context.Context, tenantCode string, provider string, subject string, email string) (*model.Account, error)
}

type PermissionResolver interface {
	PermissionsFor(ctx context.Context, accountID uint64) (rbac.PermissionSet, error)
	HasPermission(ctx context.Context, accountID uint64, code string) (bool, error)
	RoleCodes(ctx context.Context, accountID uint64) ([]string, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, subject *tokens.Subject, client tokens.ClientInfo) (*tokens.TokenPair, error)
	Refresh(ctx context.Context, rawRefreshToken string, client tokens.ClientInfo) (*tokens.TokenPair, error)
	Revoke(ctx context.Context, accountID uint64, rawRefreshToken string) (bool, error)
	RevokeAll(ctx context.Context, accountID uint64) (int64, error)
}

type AuditRecorder interface {
	RecordLogin(ctx context.Context, record audit.LoginRecord)
}

type LockoutNotifier interface {
	NotifyLockout(alert mail.LockoutAlert)
}

var (
	_ TenantService      = (*tenants.TenantService)(nil)
	_ CredentialStore    = (*accounts.CredentialStore)(nil)
	_ AccountService     = (*accounts.AccountService)(nil)
	_ IdentityVerifier   = (*identity.Registry)(nil)
	_ IdentityLinker     = (*identity.Linker)(nil)
	_ PermissionResolver = (*rbac.Resolver)(nil)
	_ TokenIssuer        = (*tokens.Issuer)(nil)
	_ AuditRecorder      = (*audit.Recorder)(nil)
	_ LockoutNotifier    = (*mail.AlertNotifier)(nil)
)

type LoginRequest struct {
	TenantCode string
	Email      string
	Password   string
	Client     tokens.ClientInfo
}

type ProviderLoginRequest struct {
	TenantCode string
	Provider   string
	Token      string
	Client     tokens.ClientInfo
}

type LoginResult struct {
	Tokens      *tokens.TokenPair
	Account     *model.Account
	Permissions []string
}

// Profile is the caller's account with freshly resolved roles and
// permissions.
type Profile struct {
	Account     *model.Account
	Roles       []string
	Permissions []string
}

// Principal is the authenticated caller of a request, taken from a verified
// access token. Permissions is the snapshot carried by the token.
type Principal struct {
	AccountID   uint64
	TenantCode  string
	Permissions []string
	TokenID     string
}

// PrincipalKey is the fiber Locals key holding the request *Principal.
const PrincipalKey = "principal"
