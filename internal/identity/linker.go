package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

// AccountLookup is the subset of the account service the linker reads from.
type AccountLookup interface {
	GetAccount(ctx context.Context, accountID uint64) (*model.Account, error)
	FindActiveByEmail(ctx context.Context, tenantCode string, email string) (*model.Account, error)
}

// Linker maps verified external identities to existing accounts. It never
// creates accounts.
type Linker struct {
	linkRepo LinkRepository
	accounts AccountLookup
}

// ResolveOrLink returns the account linked to (tenantCode, provider, subject).
// Without a link, the active account whose email equals the verified email is
// linked and returned. The caller must have verified the provider token and
// the email before calling.
func (l *Linker) ResolveOrLink(ctx context.Context, tenantCode string, provider string, subject string, email string) (*model.Account, error) {
	link, err := l.linkRepo.First(ctx, tenantCode, provider, subject)
	if err == nil {
		return l.linkedAccount(ctx, link)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account, err := l.accounts.FindActiveByEmail(ctx, tenantCode, email)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, ErrNoMatchingAccount
	}
	if err != nil {
		return nil, err
	}

	link = &model.ExternalIdentityLink{
		AccountID:     account.ID,
		TenantCode:    tenantCode,
		Provider:      provider,
		Subject:       subject,
		ProviderEmail: accounts.NormalizeEmail(email),
	}
	var mysqlErr *mysql.MySQLError
	if err := l.linkRepo.Create(ctx, link); err != nil {
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != 1062 {
			return nil, err
		}
		// a concurrent login created the link first
		existing, err := l.linkRepo.First(ctx, tenantCode, provider, subject)
		if err != nil {
			return nil, err
		}
		return l.linkedAccount(ctx, existing)
	}

	slog.Info("Linked external identity",
		"tenant", tenantCode,
		"provider", provider,
		"accountID", account.ID,
	)
	return account, nil
}

func (l *Linker) linkedAccount(ctx context.Context, link *model.ExternalIdentityLink) (*model.Account, error) {
	account, err := l.accounts.GetAccount(ctx, link.AccountID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, ErrNoMatchingAccount
	}
	if err != nil {
		return nil, err
	}
	if !account.Active || account.TenantCode != link.TenantCode {
		return nil, ErrNoMatchingAccount
	}
	return account, nil
}

func NewLinker(linkRepo LinkRepository, accountLookup AccountLookup) *Linker {
	return &Linker{
		linkRepo: linkRepo,
		accounts: accountLookup,
	}
}
