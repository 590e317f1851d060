package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/audit"
	"github.com/khanghh/tenantauth/internal/identity"
	"github.com/khanghh/tenantauth/internal/tokens"
	"github.com/khanghh/tenantauth/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service     *Service
	credentials *fakeCredentials
	accounts    *fakeAccounts
	verifier    *fakeVerifier
	issuer      *fakeIssuer
	audit       *recordingAudit
	lockouts    *recordingLockouts
	alice       *model.Account
}

var testClient = tokens.ClientInfo{DeviceInfo: "Pixel 8", IP: "10.1.2.3", UserAgent: "app/2.0"}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	alice := &model.Account{ID: 7, TenantCode: "ACME", Email: "alice@acme.io", Name: "Alice", Active: true}
	locked := time.Now().Add(20 * time.Minute)
	bob := &model.Account{ID: 8, TenantCode: "ACME", Email: "bob@acme.io", Active: true, LockedUntil: &locked}

	credentials := &fakeCredentials{results: map[string]credentialResult{
		"ACME/alice@acme.io": {account: alice},
	}}
	accts := &fakeAccounts{accounts: map[uint64]*model.Account{7: alice, 8: bob}}
	verifier := &fakeVerifier{identities: map[string]*identity.VerifiedIdentity{
		"google-alice": {Provider: identity.ProviderGoogle, Subject: "g-1", Email: "Alice@acme.io", EmailVerified: true},
		"google-bob":   {Provider: identity.ProviderGoogle, Subject: "g-2", Email: "bob@acme.io", EmailVerified: true},
		"google-eve":   {Provider: identity.ProviderGoogle, Subject: "g-3", Email: "eve@evil.io", EmailVerified: true},
	}}
	issuer := &fakeIssuer{}
	recorder := &recordingAudit{}
	lockouts := &recordingLockouts{}
	service := NewService(ServiceOptions{
		Tenants: &fakeTenants{tenants: map[string]*model.Tenant{
			"ACME": {Code: "ACME", Active: true},
			"OLD":  {Code: "OLD", Active: false},
		}},
		Credentials: credentials,
		Accounts:    accts,
		Verifier:    verifier,
		Linker:      &fakeLinker{bySubject: map[string]*model.Account{"g-1": alice, "g-2": bob}},
		Permissions: &fakePermissions{
			permissions: map[uint64][]string{7: {"doc:write", "doc:read"}},
			roles:       map[uint64][]string{7: {"EDITOR"}},
		},
		Issuer:   issuer,
		Recorder: recorder,
		Notifier: lockouts,
	})
	return &serviceFixture{
		service:     service,
		credentials: credentials,
		accounts:    accts,
		verifier:    verifier,
		issuer:      issuer,
		audit:       recorder,
		lockouts:    lockouts,
		alice:       alice,
	}
}

func TestLogin_Success(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.service.Login(context.Background(), LoginRequest{
		TenantCode: " acme ",
		Email:      "Alice@ACME.io",
		Password:   "secret123",
		Client:     testClient,
	})
	require.NoError(t, err)
	assert.Equal(t, "access", result.Tokens.AccessToken)
	assert.Equal(t, []string{"doc:read", "doc:write"}, result.Permissions)
	require.Len(t, f.issuer.issued, 1)
	assert.Equal(t, "ACME", f.issuer.issued[0].TenantCode)

	record := f.audit.last()
	assert.True(t, record.Success)
	assert.Equal(t, audit.MethodPassword, record.Method)
	assert.Equal(t, uint64(7), record.AccountID)
	assert.Equal(t, "alice@acme.io", record.Email)
	assert.Equal(t, "10.1.2.3", record.IP)
}

func TestLogin_Validation(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name  string
		req   LoginRequest
		field string
	}{
		{"missing tenant", LoginRequest{Email: "a@acme.io", Password: "x"}, "companyCode"},
		{"missing email", LoginRequest{TenantCode: "ACME", Password: "x"}, "email"},
		{"missing password", LoginRequest{TenantCode: "ACME", Email: "a@acme.io"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Login(context.Background(), tt.req)
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, KindValidation, authErr.Kind)
			assert.Equal(t, tt.field, authErr.Field)
			assert.Equal(t, audit.ReasonValidation, f.audit.last().FailureReason)
		})
	}
}

func TestLogin_UnknownTenantAndAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, LoginRequest{TenantCode: "NOPE", Email: "alice@acme.io", Password: "x"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.service.Login(ctx, LoginRequest{TenantCode: "OLD", Email: "alice@acme.io", Password: "x"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.service.Login(ctx, LoginRequest{TenantCode: "ACME", Email: "ghost@acme.io", Password: "x"})
	assert.Equal(t, KindNotFound, KindOf(err))
	record := f.audit.last()
	assert.False(t, record.Success)
	assert.Equal(t, audit.ReasonNotFound, record.FailureReason)
	assert.Empty(t, f.issuer.issued)
}

func TestLogin_BadCredential(t *testing.T) {
	f := newServiceFixture(t)
	f.credentials.results["ACME/alice@acme.io"] = credentialResult{account: f.alice, err: accounts.ErrBadCredential}

	_, err := f.service.Login(context.Background(), LoginRequest{TenantCode: "ACME", Email: "alice@acme.io", Password: "wrong"})
	assert.Equal(t, KindBadCredential, KindOf(err))
	assert.Equal(t, audit.ReasonBadCredential, f.audit.last().FailureReason)
	assert.Equal(t, uint64(7), f.audit.last().AccountID)
	assert.Empty(t, f.lockouts.alerts)
}

func TestLogin_LockoutNotifiesOnce(t *testing.T) {
	f := newServiceFixture(t)
	lockedUntil := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	f.credentials.results["ACME/alice@acme.io"] = credentialResult{
		account: f.alice,
		err:     &accounts.LockoutError{LockedUntil: lockedUntil, FailedCount: 5, Triggered: true},
	}

	_, err := f.service.Login(context.Background(), LoginRequest{TenantCode: "ACME", Email: "alice@acme.io", Password: "wrong", Client: testClient})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindAccountLocked, authErr.Kind)
	require.NotNil(t, authErr.LockedUntil)
	assert.Equal(t, lockedUntil, *authErr.LockedUntil)
	require.Len(t, f.lockouts.alerts, 1)
	assert.Equal(t, 5, f.lockouts.alerts[0].FailedCount)
	assert.Equal(t, "10.1.2.3", f.lockouts.alerts[0].IP)

	// already locked: no second alert
	f.credentials.results["ACME/alice@acme.io"] = credentialResult{
		account: f.alice,
		err:     &accounts.LockoutError{LockedUntil: lockedUntil, FailedCount: 5},
	}
	_, err = f.service.Login(context.Background(), LoginRequest{TenantCode: "ACME", Email: "alice@acme.io", Password: "secret123"})
	assert.Equal(t, KindAccountLocked, KindOf(err))
	assert.Len(t, f.lockouts.alerts, 1)
	assert.Equal(t, audit.ReasonAccountLocked, f.audit.last().FailureReason)
}

func TestLogin_InternalError(t *testing.T) {
	f := newServiceFixture(t)
	dbErr := errors.New("connection refused")
	f.credentials.results["ACME/alice@acme.io"] = credentialResult{err: dbErr}

	_, err := f.service.Login(context.Background(), LoginRequest{TenantCode: "ACME", Email: "alice@acme.io", Password: "x"})
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, audit.ReasonInternal, f.audit.last().FailureReason)
}

func TestLoginWithProvider(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.service.LoginWithProvider(ctx, ProviderLoginRequest{TenantCode: "acme", Provider: "google", Token: "google-alice", Client: testClient})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), result.Account.ID)
	assert.Equal(t, []uint64{7}, f.credentials.touched)
	record := f.audit.last()
	assert.True(t, record.Success)
	assert.Equal(t, identity.ProviderGoogle, record.Method)
	assert.Equal(t, "alice@acme.io", record.Email)

	_, err = f.service.LoginWithProvider(ctx, ProviderLoginRequest{TenantCode: "ACME", Provider: "GOOGLE", Token: "forged"})
	assert.Equal(t, KindInvalidProviderToken, KindOf(err))

	_, err = f.service.LoginWithProvider(ctx, ProviderLoginRequest{TenantCode: "ACME", Provider: "GOOGLE", Token: "google-eve"})
	assert.Equal(t, KindNoMatchingAccount, KindOf(err))
	assert.Equal(t, audit.ReasonNoMatchingAccount, f.audit.last().FailureReason)

	_, err = f.service.LoginWithProvider(ctx, ProviderLoginRequest{TenantCode: "ACME", Provider: "GOOGLE", Token: "google-bob"})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindAccountLocked, authErr.Kind)
	assert.NotNil(t, authErr.LockedUntil)

	_, err = f.service.LoginWithProvider(ctx, ProviderLoginRequest{TenantCode: "ACME", Provider: "myspace", Token: "x"})
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindValidation, authErr.Kind)
	assert.Equal(t, "provider", authErr.Field)
	assert.Equal(t, methodUnknown, f.audit.last().Method)

	assert.Len(t, f.issuer.issued, 1)
}

func TestLoginWithProvider_Unavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.verifier.err = identity.ErrProviderUnavailable

	_, err := f.service.LoginWithProvider(context.Background(), ProviderLoginRequest{TenantCode: "ACME", Provider: "GOOGLE", Token: "google-alice"})
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.Equal(t, audit.ReasonExternalService, f.audit.last().FailureReason)
}

func TestRefresh(t *testing.T) {
	f := newServiceFixture(t)
	f.issuer.refreshed = map[string]*tokens.TokenPair{"rt_good": {AccessToken: "next"}}

	pair, err := f.service.Refresh(context.Background(), "rt_good", testClient)
	require.NoError(t, err)
	assert.Equal(t, "next", pair.AccessToken)

	_, err = f.service.Refresh(context.Background(), "rt_bad", testClient)
	assert.Equal(t, KindInvalidOrExpired, KindOf(err))

	_, err = f.service.Refresh(context.Background(), "", testClient)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestLogout(t *testing.T) {
	f := newServiceFixture(t)

	ok, err := f.service.Logout(context.Background(), 7, "rt_abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"rt_abc"}, f.issuer.revoked[7])

	count, err := f.service.LogoutAll(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestMe(t *testing.T) {
	f := newServiceFixture(t)

	profile, err := f.service.Me(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "alice@acme.io", profile.Account.Email)
	assert.Equal(t, []string{"EDITOR"}, profile.Roles)
	assert.Equal(t, []string{"doc:read", "doc:write"}, profile.Permissions)

	profile, err = f.service.Me(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, []string{}, profile.Roles)
	assert.Empty(t, profile.Permissions)

	_, err = f.service.Me(context.Background(), 99)
	assert.Equal(t, KindInvalidOrExpired, KindOf(err))
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.ChangePassword(ctx, 7, "old", "new-password"))

	f.accounts.changePassword = accounts.ErrBadCredential
	assert.Equal(t, KindBadCredential, KindOf(f.service.ChangePassword(ctx, 7, "wrong", "new-password")))

	f.accounts.changePassword = accounts.ErrPasswordTooShort
	assert.Equal(t, KindValidation, KindOf(f.service.ChangePassword(ctx, 7, "old", "short")))

	f.accounts.changePassword = accounts.ErrNoPasswordSet
	assert.Equal(t, KindValidation, KindOf(f.service.ChangePassword(ctx, 7, "", "new-password")))

	assert.Equal(t, KindValidation, KindOf(f.service.ChangePassword(ctx, 7, "old", "")))
}

func TestSubjectLoader(t *testing.T) {
	alice := &model.Account{ID: 7, TenantCode: "ACME", Active: true}
	gone := &model.Account{ID: 8, TenantCode: "ACME", Active: false}
	oldTenant := &model.Account{ID: 9, TenantCode: "OLD", Active: true}
	loader := NewSubjectLoader(
		&fakeTenants{tenants: map[string]*model.Tenant{"ACME": {Code: "ACME", Active: true}, "OLD": {Code: "OLD"}}},
		&fakeAccounts{accounts: map[uint64]*model.Account{7: alice, 8: gone, 9: oldTenant}},
		&fakePermissions{permissions: map[uint64][]string{7: {"doc:read"}}},
	)

	subject, err := loader.ResolveSubject(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "ACME", subject.TenantCode)
	assert.Equal(t, []string{"doc:read"}, subject.Permissions)

	for _, id := range []uint64{8, 9, 10} {
		_, err := loader.ResolveSubject(context.Background(), id)
		assert.ErrorIs(t, err, tokens.ErrInvalidToken, "account %d", id)
	}
}

func TestAuthErrorKind(t *testing.T) {
	err := fmtWrap(newAuthError(KindNotFound, accounts.ErrAccountNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("context"), err)
}
