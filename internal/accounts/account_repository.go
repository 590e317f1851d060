package accounts

import (
	"context"
	"time"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FailedLoginState is the lockout state of an account right after a failed
// attempt was counted.
type FailedLoginState struct {
	FailedLoginCount int
	LockedUntil      *time.Time
}

type AccountRepository interface {
	First(ctx context.Context, query interface{}, args ...interface{}) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) error
	Updates(ctx context.Context, accountID uint64, columns map[string]interface{}) (int64, error)
	IncrementFailedLogin(ctx context.Context, accountID uint64, threshold int, now time.Time, lockUntil time.Time) (*FailedLoginState, error)
	ResetFailedLogin(ctx context.Context, accountID uint64, loginAt time.Time) error
}

type accountRepository struct {
	db *gorm.DB
}

func (r *accountRepository) First(ctx context.Context, query interface{}, args ...interface{}) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) Updates(ctx context.Context, accountID uint64, columns map[string]interface{}) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", accountID).Updates(columns)
	return ret.RowsAffected, ret.Error
}

// IncrementFailedLogin counts one failed attempt and sets the lockout expiry
// once the counter reaches threshold, in a single UPDATE. A lock that expired
// before now restarts the counter at one. failed_login_count is assigned
// first, so the locked_until CASE sees the new count and the old expiry.
func (r *accountRepository) IncrementFailedLogin(ctx context.Context, accountID uint64, threshold int, now time.Time, lockUntil time.Time) (*FailedLoginState, error) {
	var state FailedLoginState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		set := clause.Set{
			{Column: clause.Column{Name: "failed_login_count"}, Value: gorm.Expr("CASE WHEN locked_until <= ? THEN 1 ELSE failed_login_count + 1 END", now)},
			{Column: clause.Column{Name: "locked_until"}, Value: gorm.Expr("CASE WHEN failed_login_count >= ? THEN ? WHEN locked_until <= ? THEN NULL ELSE locked_until END", threshold, lockUntil, now)},
		}
		ret := tx.Model(&model.Account{}).Clauses(set).Where("id = ?", accountID).UpdateColumns(map[string]interface{}{})
		if ret.Error != nil {
			return ret.Error
		}
		if ret.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var account model.Account
		if err := tx.Select("failed_login_count", "locked_until").Where("id = ?", accountID).Take(&account).Error; err != nil {
			return err
		}
		state = FailedLoginState{
			FailedLoginCount: account.FailedLoginCount,
			LockedUntil:      account.LockedUntil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *accountRepository) ResetFailedLogin(ctx context.Context, accountID uint64, loginAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", accountID).UpdateColumns(map[string]interface{}{
		"failed_login_count": 0,
		"locked_until":       nil,
		"last_login_at":      loginAt,
	}).Error
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db}
}
