package tokens

import (
	"context"
	"time"

	"github.com/khanghh/tenantauth/internal/common"
	"github.com/khanghh/tenantauth/model"
)

// Revoker revokes stored refresh tokens. Tenant and account deactivation use
// it directly; the Issuer embeds it for logout.
type Revoker struct {
	repo RefreshTokenRepository
	now  func() time.Time
}

// Revoke revokes one refresh token of the account. It reports false when the
// token is unknown, already revoked or owned by another account.
func (r *Revoker) Revoke(ctx context.Context, accountID uint64, rawRefreshToken string) (bool, error) {
	revoked, err := r.repo.RevokeByHash(ctx, accountID, common.HashToken(rawRefreshToken), model.RevokeReasonLogout, r.now())
	return revoked > 0, err
}

func (r *Revoker) RevokeAll(ctx context.Context, accountID uint64) (int64, error) {
	return r.repo.RevokeAllForAccount(ctx, accountID, model.RevokeReasonLogout, r.now())
}

func (r *Revoker) RevokeAllForTenant(ctx context.Context, tenantCode string) (int64, error) {
	return r.repo.RevokeAllForTenant(ctx, tenantCode, model.RevokeReasonAdmin, r.now())
}

func NewRevoker(repo RefreshTokenRepository) *Revoker {
	return &Revoker{
		repo: repo,
		now:  time.Now,
	}
}
