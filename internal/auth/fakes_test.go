package auth

import (
	"context"
	"sync"
	"time"

	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/audit"
	"github.com/khanghh/tenantauth/internal/identity"
	"github.com/khanghh/tenantauth/internal/mail"
	"github.com/khanghh/tenantauth/internal/rbac"
	"github.com/khanghh/tenantauth/internal/tenants"
	"github.com/khanghh/tenantauth/internal/tokens"
	"github.com/khanghh/tenantauth/model"
)

type fakeTenants struct {
	tenants map[string]*model.Tenant
}

func (f *fakeTenants) GetActiveTenant(ctx context.Context, code string) (*model.Tenant, error) {
	tenant, ok := f.tenants[code]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	if !tenant.Active {
		return nil, tenants.ErrTenantInactive
	}
	return tenant, nil
}

type credentialResult struct {
	account *model.Account
	err     error
}

type fakeCredentials struct {
	results map[string]credentialResult
	touched []uint64
}

func (f *fakeCredentials) VerifyPassword(ctx context.Context, tenantCode string, email string, candidate string) (*model.Account, error) {
	res, ok := f.results[tenantCode+"/"+email]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return res.account, res.err
}

func (f *fakeCredentials) Touch(ctx context.Context, account *model.Account) error {
	f.touched = append(f.touched, account.ID)
	return nil
}

type fakeAccounts struct {
	accounts       map[uint64]*model.Account
	changePassword error
}

func (f *fakeAccounts) GetAccount(ctx context.Context, accountID uint64) (*model.Account, error) {
	account, ok := f.accounts[accountID]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccounts) ChangePassword(ctx context.Context, accountID uint64, currentPassword string, newPassword string) error {
	return f.changePassword
}

type fakeVerifier struct {
	identities map[string]*identity.VerifiedIdentity
	err        error
}

func (f *fakeVerifier) Verify(ctx context.Context, provider string, token string) (*identity.VerifiedIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if provider != identity.ProviderGoogle && provider != identity.ProviderKakao {
		return nil, identity.ErrUnknownProvider
	}
	verified, ok := f.identities[token]
	if !ok {
		return nil, identity.ErrInvalidProviderToken
	}
	return verified, nil
}

type fakeLinker struct {
	bySubject map[string]*model.Account
}

func (f *fakeLinker) ResolveOrLink(ctx context.Context, tenantCode string, provider string, subject string, email string) (*model.Account, error) {
	account, ok := f.bySubject[subject]
	if !ok || account.TenantCode != tenantCode {
		return nil, identity.ErrNoMatchingAccount
	}
	return account, nil
}

type fakePermissions struct {
	permissions map[uint64][]string
	roles       map[uint64][]string
}

func (f *fakePermissions) PermissionsFor(ctx context.Context, accountID uint64) (rbac.PermissionSet, error) {
	return rbac.NewPermissionSet(f.permissions[accountID]...), nil
}

func (f *fakePermissions) HasPermission(ctx context.Context, accountID uint64, code string) (bool, error) {
	set, _ := f.PermissionsFor(ctx, accountID)
	return set.Has(code), nil
}

func (f *fakePermissions) RoleCodes(ctx context.Context, accountID uint64) ([]string, error) {
	return f.roles[accountID], nil
}

type fakeIssuer struct {
	issued    []*tokens.Subject
	refreshed map[string]*tokens.TokenPair
	revoked   map[uint64][]string
}

func (f *fakeIssuer) Issue(ctx context.Context, subject *tokens.Subject, client tokens.ClientInfo) (*tokens.TokenPair, error) {
	f.issued = append(f.issued, subject)
	return &tokens.TokenPair{
		AccessToken:     "access",
		AccessExpiresAt: time.Now().Add(30 * time.Minute),
		RefreshToken:    "rt_refresh",
		TokenType:       tokens.TokenTypeBearer,
		ExpiresIn:       1800,
	}, nil
}

func (f *fakeIssuer) Refresh(ctx context.Context, rawRefreshToken string, client tokens.ClientInfo) (*tokens.TokenPair, error) {
	pair, ok := f.refreshed[rawRefreshToken]
	if !ok {
		return nil, tokens.ErrInvalidToken
	}
	return pair, nil
}

func (f *fakeIssuer) Revoke(ctx context.Context, accountID uint64, rawRefreshToken string) (bool, error) {
	if f.revoked == nil {
		f.revoked = map[uint64][]string{}
	}
	f.revoked[accountID] = append(f.revoked[accountID], rawRefreshToken)
	return true, nil
}

func (f *fakeIssuer) RevokeAll(ctx context.Context, accountID uint64) (int64, error) {
	return 3, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	records []audit.LoginRecord
}

func (r *recordingAudit) RecordLogin(ctx context.Context, record audit.LoginRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingAudit) last() audit.LoginRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

type recordingLockouts struct {
	alerts []mail.LockoutAlert
}

func (r *recordingLockouts) NotifyLockout(alert mail.LockoutAlert) {
	r.alerts = append(r.alerts, alert)
}
