package accounts

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/tenantauth/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateAccountOptions struct {
	TenantCode string
	Email      string
	Name       string
	Password   string // empty for accounts that only use external identities
}

// TokenRevoker revokes every refresh token of an account.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, accountID uint64) (int64, error)
}

type AccountService struct {
	accountRepo       AccountRepository
	revoker           TokenRevoker
	minPasswordLength int
}

func (s *AccountService) hashPassword(password string) (string, error) {
	if len(password) < s.minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AccountService) CreateAccount(ctx context.Context, opts CreateAccountOptions) (*model.Account, error) {
	email := NormalizeEmail(opts.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	account := model.Account{
		TenantCode: opts.TenantCode,
		Email:      email,
		Name:       strings.TrimSpace(opts.Name),
		Active:     true,
	}
	if opts.Password != "" {
		hash, err := s.hashPassword(opts.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = &hash
	}

	var mysqlErr *mysql.MySQLError
	if err := s.accountRepo.Create(ctx, &account); err != nil {
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	return &account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID uint64) (*model.Account, error) {
	account, err := s.accountRepo.First(ctx, "id = ?", accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

func (s *AccountService) FindActiveByEmail(ctx context.Context, tenantCode string, email string) (*model.Account, error) {
	account, err := s.accountRepo.First(ctx, "tenant_code = ? AND email = ? AND active = ?", tenantCode, NormalizeEmail(email), true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	return account, err
}

// ChangePassword replaces the password after verifying the current one and
// revokes every refresh token of the account.
func (s *AccountService) ChangePassword(ctx context.Context, accountID uint64, currentPassword string, newPassword string) error {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasPassword() {
		return ErrNoPasswordSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrBadCredential
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"password_hash":      hash,
		"password_change_at": time.Now(),
	}
	if _, err := s.accountRepo.Updates(ctx, accountID, updates); err != nil {
		return err
	}
	_, err = s.revoker.RevokeAll(ctx, accountID)
	return err
}

// Deactivate disables the account and revokes its refresh tokens.
func (s *AccountService) Deactivate(ctx context.Context, accountID uint64) (int64, error) {
	affected, err := s.accountRepo.Updates(ctx, accountID, map[string]interface{}{"active": false})
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrAccountNotFound
	}
	return s.revoker.RevokeAll(ctx, accountID)
}

func NewAccountService(accountRepo AccountRepository, revoker TokenRevoker, minPasswordLength int) *AccountService {
	return &AccountService{
		accountRepo:       accountRepo,
		revoker:           revoker,
		minPasswordLength: minPasswordLength,
	}
}
