package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/audit"
	"github.com/khanghh/tenantauth/internal/identity"
	"github.com/khanghh/tenantauth/internal/mail"
	"github.com/khanghh/tenantauth/internal/metrics"
	"github.com/khanghh/tenantauth/internal/tenants"
	"github.com/khanghh/tenantauth/internal/tokens"
	"github.com/khanghh/tenantauth/model"
)

const methodUnknown = "UNKNOWN"

type Service struct {
	tenants     TenantService
	credentials CredentialStore
	accounts    AccountService
	verifier    IdentityVerifier
	linker      IdentityLinker
	permissions PermissionResolver
	issuer      TokenIssuer
	recorder    AuditRecorder
	notifier    LockoutNotifier
	now         func() time.Time
}

type ServiceOptions struct {
	Tenants     TenantService
	Credentials CredentialStore
	Accounts    AccountService
	Verifier    IdentityVerifier
	Linker      IdentityLinker
	Permissions PermissionResolver
	Issuer      TokenIssuer
	Recorder    AuditRecorder
	Notifier    LockoutNotifier
}

type attempt struct {
	tenantCode string
	email      string
	method     string
	client     tokens.ClientInfo
	accountID  uint64
}

// finish records the attempt outcome in the audit log and metrics. Internal
// errors are audited as INTERNAL_ERROR and returned unchanged.
func (s *Service) finish(ctx context.Context, at *attempt, err error) {
	outcome := "success"
	reason := ""
	method := at.method
	if err != nil {
		reason = audit.ReasonInternal
		if kind := KindOf(err); kind != "" {
			reason = string(kind)
		}
		outcome = strings.ToLower(reason)
		// unvalidated provider names stay out of metric labels
		if reason == audit.ReasonValidation && method != audit.MethodPassword {
			method = methodUnknown
		}
	}
	metrics.LoginAttempts.WithLabelValues(method, outcome).Inc()
	s.recorder.RecordLogin(ctx, audit.LoginRecord{
		TenantCode:    at.tenantCode,
		AccountID:     at.accountID,
		Email:         at.email,
		Method:        at.method,
		Success:       err == nil,
		FailureReason: reason,
		DeviceInfo:    at.client.DeviceInfo,
		IP:            at.client.IP,
		UserAgent:     at.client.UserAgent,
	})
}

func (s *Service) activeTenant(ctx context.Context, code string) error {
	_, err := s.tenants.GetActiveTenant(ctx, code)
	if errors.Is(err, tenants.ErrTenantNotFound) || errors.Is(err, tenants.ErrTenantInactive) {
		return newAuthError(KindNotFound, err)
	}
	return err
}

func (s *Service) issueFor(ctx context.Context, account *model.Account, client tokens.ClientInfo) (*LoginResult, error) {
	permissions, err := s.permissions.PermissionsFor(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	codes := permissions.Sorted()
	pair, err := s.issuer.Issue(ctx, &tokens.Subject{
		AccountID:   account.ID,
		TenantCode:  account.TenantCode,
		Permissions: codes,
	}, client)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Tokens:      pair,
		Account:     account,
		Permissions: codes,
	}, nil
}

// Login authenticates with tenant code, email and password. Every attempt is
// audited; a failure that locks the account also alerts operators.
func (s *Service) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	at := &attempt{
		tenantCode: tenants.NormalizeCode(req.TenantCode),
		email:      accounts.NormalizeEmail(req.Email),
		method:     audit.MethodPassword,
		client:     req.Client,
	}
	defer func() { s.finish(ctx, at, err) }()

	switch {
	case at.tenantCode == "":
		return nil, validationError("companyCode", "company code is required")
	case at.email == "":
		return nil, validationError("email", "email is required")
	case req.Password == "":
		return nil, validationError("password", "password is required")
	}
	if err := s.activeTenant(ctx, at.tenantCode); err != nil {
		return nil, err
	}

	account, err := s.credentials.VerifyPassword(ctx, at.tenantCode, at.email, req.Password)
	if account != nil {
		at.accountID = account.ID
	}
	if err != nil {
		return nil, s.mapCredentialError(account, at, err)
	}
	return s.issueFor(ctx, account, req.Client)
}

func (s *Service) mapCredentialError(account *model.Account, at *attempt, err error) error {
	var lockErr *accounts.LockoutError
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return newAuthError(KindNotFound, err)
	case errors.As(err, &lockErr):
		if lockErr.Triggered && s.notifier != nil {
			s.notifier.NotifyLockout(mail.LockoutAlert{
				TenantCode:  account.TenantCode,
				Email:       account.Email,
				FailedCount: lockErr.FailedCount,
				LockedUntil: lockErr.LockedUntil,
				IP:          at.client.IP,
			})
		}
		lockedUntil := lockErr.LockedUntil
		return &AuthError{Kind: KindAccountLocked, LockedUntil: &lockedUntil, Err: err}
	case errors.Is(err, accounts.ErrBadCredential):
		return newAuthError(KindBadCredential, err)
	default:
		return err
	}
}

// LoginWithProvider authenticates with a token issued by an external identity
// provider. The account must already exist; it is linked on first use.
func (s *Service) LoginWithProvider(ctx context.Context, req ProviderLoginRequest) (result *LoginResult, err error) {
	at := &attempt{
		tenantCode: tenants.NormalizeCode(req.TenantCode),
		method:     strings.ToUpper(strings.TrimSpace(req.Provider)),
		client:     req.Client,
	}
	defer func() { s.finish(ctx, at, err) }()

	switch {
	case at.tenantCode == "":
		return nil, validationError("companyCode", "company code is required")
	case at.method == "":
		return nil, validationError("provider", "provider is required")
	case req.Token == "":
		return nil, validationError("token", "token is required")
	}
	if err := s.activeTenant(ctx, at.tenantCode); err != nil {
		return nil, err
	}

	verified, err := s.verifier.Verify(ctx, at.method, req.Token)
	switch {
	case errors.Is(err, identity.ErrUnknownProvider):
		at.method = methodUnknown
		return nil, &AuthError{Kind: KindValidation, Field: "provider", Message: "unsupported provider", Err: err}
	case errors.Is(err, identity.ErrProviderUnavailable):
		slog.Warn("Identity provider unavailable", "provider", at.method, "error", err)
		return nil, newAuthError(KindExternalService, err)
	case err != nil:
		return nil, newAuthError(KindInvalidProviderToken, err)
	}
	at.email = accounts.NormalizeEmail(verified.Email)

	account, err := s.linker.ResolveOrLink(ctx, at.tenantCode, at.method, verified.Subject, at.email)
	if errors.Is(err, identity.ErrNoMatchingAccount) {
		return nil, newAuthError(KindNoMatchingAccount, err)
	}
	if err != nil {
		return nil, err
	}
	at.accountID = account.ID

	if account.IsLocked(s.now()) {
		lockedUntil := *account.LockedUntil
		return nil, &AuthError{Kind: KindAccountLocked, LockedUntil: &lockedUntil, Err: accounts.ErrAccountLocked}
	}
	if err := s.credentials.Touch(ctx, account); err != nil {
		return nil, err
	}
	return s.issueFor(ctx, account, req.Client)
}

// Refresh rotates a refresh token into a new token pair.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, client tokens.ClientInfo) (*tokens.TokenPair, error) {
	if rawRefreshToken == "" {
		return nil, validationError("refreshToken", "refresh token is required")
	}
	pair, err := s.issuer.Refresh(ctx, rawRefreshToken, client)
	if errors.Is(err, tokens.ErrInvalidToken) {
		return nil, newAuthError(KindInvalidOrExpired, err)
	}
	return pair, err
}

// Logout revokes one refresh token owned by the account.
func (s *Service) Logout(ctx context.Context, accountID uint64, rawRefreshToken string) (bool, error) {
	if rawRefreshToken == "" {
		return false, validationError("refreshToken", "refresh token is required")
	}
	return s.issuer.Revoke(ctx, accountID, rawRefreshToken)
}

// LogoutAll revokes every refresh token of the account.
func (s *Service) LogoutAll(ctx context.Context, accountID uint64) (int64, error) {
	return s.issuer.RevokeAll(ctx, accountID)
}

func (s *Service) Me(ctx context.Context, accountID uint64) (*Profile, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, newAuthError(KindInvalidOrExpired, err)
	}
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, newAuthError(KindInvalidOrExpired, accounts.ErrAccountNotFound)
	}
	roles, err := s.permissions.RoleCodes(ctx, accountID)
	if err != nil {
		return nil, err
	}
	permissions, err := s.permissions.PermissionsFor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	return &Profile{
		Account:     account,
		Roles:       roles,
		Permissions: permissions.Sorted(),
	}, nil
}

// ChangePassword replaces the account password. All refresh tokens of the
// account are revoked on success.
func (s *Service) ChangePassword(ctx context.Context, accountID uint64, currentPassword string, newPassword string) error {
	if newPassword == "" {
		return validationError("newPassword", "new password is required")
	}
	err := s.accounts.ChangePassword(ctx, accountID, currentPassword, newPassword)
	switch {
	case err == nil:
		slog.Info("Password changed", "accountID", accountID)
		return nil
	case errors.Is(err, accounts.ErrNoPasswordSet):
		return &AuthError{Kind: KindValidation, Field: "currentPassword", Message: "account has no password", Err: err}
	case errors.Is(err, accounts.ErrPasswordTooShort):
		return &AuthError{Kind: KindValidation, Field: "newPassword", Message: "password is too short", Err: err}
	case errors.Is(err, accounts.ErrBadCredential):
		return newAuthError(KindBadCredential, err)
	case errors.Is(err, accounts.ErrAccountNotFound):
		return newAuthError(KindInvalidOrExpired, err)
	default:
		return err
	}
}

func (s *Service) HasPermission(ctx context.Context, accountID uint64, code string) (bool, error) {
	return s.permissions.HasPermission(ctx, accountID, code)
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		tenants:     opts.Tenants,
		credentials: opts.Credentials,
		accounts:    opts.Accounts,
		verifier:    opts.Verifier,
		linker:      opts.Linker,
		permissions: opts.Permissions,
		issuer:      opts.Issuer,
		recorder:    opts.Recorder,
		notifier:    opts.Notifier,
		now:         time.Now,
	}
}
