package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

// memAccountRepo is an in-memory AccountRepository. The mutex gives the
// increment the same atomicity as the conditional UPDATE.
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint64]*model.Account
}

func newMemAccountRepo(accounts ...*model.Account) *memAccountRepo {
	repo := &memAccountRepo{accounts: make(map[uint64]*model.Account)}
	for _, a := range accounts {
		repo.accounts[a.ID] = a
	}
	return repo
}

func (r *memAccountRepo) First(ctx context.Context, query interface{}, args ...interface{}) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		switch query {
		case "id = ?":
			if a.ID == args[0].(uint64) {
				copied := *a
				return &copied, nil
			}
		default:
			if a.TenantCode == args[0].(string) && a.Email == args[1].(string) && a.Active == args[2].(bool) {
				copied := *a
				return &copied, nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == 0 {
		account.ID = model.GenerateID()
	}
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memAccountRepo) Updates(ctx context.Context, accountID uint64, columns map[string]interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return 0, nil
	}
	for col, val := range columns {
		switch col {
		case "password_hash":
			hash := val.(string)
			a.PasswordHash = &hash
		case "active":
			a.Active = val.(bool)
		}
	}
	return 1, nil
}

func (r *memAccountRepo) IncrementFailedLogin(ctx context.Context, accountID uint64, threshold int, now time.Time, lockUntil time.Time) (*FailedLoginState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	expired := a.LockedUntil != nil && !a.LockedUntil.After(now)
	if expired {
		a.FailedLoginCount = 1
	} else {
		a.FailedLoginCount++
	}
	switch {
	case a.FailedLoginCount >= threshold:
		until := lockUntil
		a.LockedUntil = &until
	case expired:
		a.LockedUntil = nil
	}
	return &FailedLoginState{FailedLoginCount: a.FailedLoginCount, LockedUntil: a.LockedUntil}, nil
}

func (r *memAccountRepo) ResetFailedLogin(ctx context.Context, accountID uint64, loginAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountID]; ok {
		a.FailedLoginCount = 0
		a.LockedUntil = nil
		a.LastLoginAt = &loginAt
	}
	return nil
}

type fakeRevoker struct {
	revoked []uint64
}

func (f *fakeRevoker) RevokeAll(ctx context.Context, accountID uint64) (int64, error) {
	f.revoked = append(f.revoked, accountID)
	return 2, nil
}
