package audit

import (
	"context"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

type LoginAuditRepository interface {
	Append(ctx context.Context, entry *model.LoginAuditEntry) error
	FindByEmail(ctx context.Context, tenantCode string, email string, limit int) ([]*model.LoginAuditEntry, error)
}

type loginAuditRepository struct {
	db *gorm.DB
}

func (r *loginAuditRepository) Append(ctx context.Context, entry *model.LoginAuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *loginAuditRepository) FindByEmail(ctx context.Context, tenantCode string, email string, limit int) ([]*model.LoginAuditEntry, error) {
	var entries []*model.LoginAuditEntry
	err := r.db.WithContext(ctx).
		Where("tenant_code = ? AND email = ?", tenantCode, email).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func NewLoginAuditRepository(db *gorm.DB) LoginAuditRepository {
	return &loginAuditRepository{db}
}
