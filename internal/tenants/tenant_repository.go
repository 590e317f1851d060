package tenants

import (
	"context"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

type TenantRepository interface {
	FirstByCode(ctx context.Context, code string) (*model.Tenant, error)
	Create(ctx context.Context, tenant *model.Tenant) error
	SetActive(ctx context.Context, code string, active bool) (int64, error)
}

type tenantRepository struct {
	db *gorm.DB
}

func (r *tenantRepository) FirstByCode(ctx context.Context, code string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *tenantRepository) SetActive(ctx context.Context, code string, active bool) (int64, error) {
	ret := r.db.WithContext(ctx).Model(&model.Tenant{}).Where("code = ?", code).Update("active", active)
	return ret.RowsAffected, ret.Error
}

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db}
}
