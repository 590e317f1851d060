package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/khanghh/tenantauth/internal/metrics"
	"github.com/khanghh/tenantauth/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LockoutPolicy locks an account for Duration once Threshold consecutive
// password failures have been counted.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LockoutError reports a locked account. Triggered is true when the failed
// attempt being reported is the one that locked it.
type LockoutError struct {
	LockedUntil time.Time
	FailedCount int
	Triggered   bool
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockedUntil.Format(time.RFC3339))
}

func (e *LockoutError) Unwrap() error {
	return ErrAccountLocked
}

// dummyPasswordHash is compared against when there is no stored hash, so that
// unknown and password-less accounts cost as much as a wrong password.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("tenantauth-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
})

// CredentialStore verifies passwords and maintains the lockout counters.
type CredentialStore struct {
	accountRepo AccountRepository
	policy      LockoutPolicy
	compare     func(hashedPassword, password []byte) error
	now         func() time.Time
}

// NormalizeEmail trims and lower-cases an email for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyPassword checks candidate against the active account (tenantCode,
// email). It returns ErrAccountNotFound, a *LockoutError or ErrBadCredential
// on failure. A failed comparison is counted atomically; a success resets the
// counter and stamps the last login time.
func (s *CredentialStore) VerifyPassword(ctx context.Context, tenantCode string, email string, candidate string) (*model.Account, error) {
	account, err := s.accountRepo.First(ctx, "tenant_code = ? AND email = ? AND active = ?", tenantCode, NormalizeEmail(email), true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.compare(dummyPasswordHash(), []byte(candidate))
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if account.IsLocked(now) {
		return account, &LockoutError{LockedUntil: *account.LockedUntil, FailedCount: account.FailedLoginCount}
	}

	if !account.HasPassword() {
		s.compare(dummyPasswordHash(), []byte(candidate))
		return account, s.recordFailure(ctx, account, now)
	}
	if s.compare([]byte(*account.PasswordHash), []byte(candidate)) != nil {
		return account, s.recordFailure(ctx, account, now)
	}

	if err := s.accountRepo.ResetFailedLogin(ctx, account.ID, now); err != nil {
		return nil, err
	}
	account.FailedLoginCount = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now
	return account, nil
}

func (s *CredentialStore) recordFailure(ctx context.Context, account *model.Account, now time.Time) error {
	state, err := s.accountRepo.IncrementFailedLogin(ctx, account.ID, s.policy.Threshold, now, now.Add(s.policy.Duration))
	if err != nil {
		return err
	}
	account.FailedLoginCount = state.FailedLoginCount
	account.LockedUntil = state.LockedUntil
	if state.LockedUntil == nil || !state.LockedUntil.After(now) {
		return ErrBadCredential
	}

	metrics.AccountLockouts.Inc()
	slog.Warn("Account locked after repeated password failures",
		"tenant", account.TenantCode,
		"accountID", account.ID,
		"failedCount", state.FailedLoginCount,
		"lockedUntil", state.LockedUntil,
	)
	return &LockoutError{
		LockedUntil: *state.LockedUntil,
		FailedCount: state.FailedLoginCount,
		Triggered:   true,
	}
}

// Touch resets the lockout counter and stamps the last login time after a
// successful non-password login.
func (s *CredentialStore) Touch(ctx context.Context, account *model.Account) error {
	now := s.now()
	if err := s.accountRepo.ResetFailedLogin(ctx, account.ID, now); err != nil {
		return err
	}
	account.FailedLoginCount = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now
	return nil
}

func NewCredentialStore(accountRepo AccountRepository, policy LockoutPolicy) *CredentialStore {
	return &CredentialStore{
		accountRepo: accountRepo,
		policy:      policy,
		compare:     bcrypt.CompareHashAndPassword,
		now:         time.Now,
	}
}
