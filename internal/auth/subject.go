package auth

import (
	"context"
	"errors"

	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/tenants"
	"github.com/khanghh/tenantauth/internal/tokens"
)

// SubjectLoader reloads the token subject on refresh so that deactivated
// accounts and tenants stop receiving tokens and permission changes show up in
// the next access token.
type SubjectLoader struct {
	tenants     TenantService
	accounts    AccountService
	permissions PermissionResolver
}

func (l *SubjectLoader) ResolveSubject(ctx context.Context, accountID uint64) (*tokens.Subject, error) {
	account, err := l.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, tokens.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, tokens.ErrInvalidToken
	}

	_, err = l.tenants.GetActiveTenant(ctx, account.TenantCode)
	if errors.Is(err, tenants.ErrTenantNotFound) || errors.Is(err, tenants.ErrTenantInactive) {
		return nil, tokens.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	permissions, err := l.permissions.PermissionsFor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &tokens.Subject{
		AccountID:   account.ID,
		TenantCode:  account.TenantCode,
		Permissions: permissions.Sorted(),
	}, nil
}

func NewSubjectLoader(tenantService TenantService, accountService AccountService, permissions PermissionResolver) *SubjectLoader {
	return &SubjectLoader{
		tenants:     tenantService,
		accounts:    accountService,
		permissions: permissions,
	}
}

var _ tokens.SubjectResolver = (*SubjectLoader)(nil)
