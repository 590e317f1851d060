package tokens

import (
	"context"
	"time"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

type RefreshTokenRepository interface {
	Transaction(ctx context.Context, fn func(repo RefreshTokenRepository) error) error
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	RevokeByHash(ctx context.Context, accountID uint64, tokenHash string, reason string, now time.Time) (int64, error)
	RevokeAllForAccount(ctx context.Context, accountID uint64, reason string, now time.Time) (int64, error)
	RevokeAllForTenant(ctx context.Context, tenantCode string, reason string, now time.Time) (int64, error)
}

type refreshTokenRepository struct {
	db *gorm.DB
}

func revokeColumns(reason string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"revoked":       true,
		"revoked_at":    now,
		"revoke_reason": reason,
	}
}

func (r *refreshTokenRepository) Transaction(ctx context.Context, fn func(repo RefreshTokenRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&refreshTokenRepository{tx})
	})
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *refreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// Consume revokes the token only if it is still active. It reports false when
// another request consumed or revoked it first, or it has expired.
func (r *refreshTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked = ? AND expires_at > ?", tokenHash, false, now).
		UpdateColumns(revokeColumns(model.RevokeReasonRotated, now))
	if ret.Error != nil {
		return false, ret.Error
	}
	return ret.RowsAffected == 1, nil
}

func (r *refreshTokenRepository) RevokeByHash(ctx context.Context, accountID uint64, tokenHash string, reason string, now time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("account_id = ? AND token_hash = ? AND revoked = ?", accountID, tokenHash, false).
		UpdateColumns(revokeColumns(reason, now))
	return ret.RowsAffected, ret.Error
}

func (r *refreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID uint64, reason string, now time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("account_id = ? AND revoked = ?", accountID, false).
		UpdateColumns(revokeColumns(reason, now))
	return ret.RowsAffected, ret.Error
}

func (r *refreshTokenRepository) RevokeAllForTenant(ctx context.Context, tenantCode string, reason string, now time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("tenant_code = ? AND revoked = ?", tenantCode, false).
		UpdateColumns(revokeColumns(reason, now))
	return ret.RowsAffected, ret.Error
}

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db}
}
