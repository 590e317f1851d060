package identity

import (
	"context"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

type LinkRepository interface {
	First(ctx context.Context, tenantCode string, provider string, subject string) (*model.ExternalIdentityLink, error)
	Create(ctx context.Context, link *model.ExternalIdentityLink) error
}

type linkRepository struct {
	db *gorm.DB
}

func (r *linkRepository) First(ctx context.Context, tenantCode string, provider string, subject string) (*model.ExternalIdentityLink, error) {
	var link model.ExternalIdentityLink
	err := r.db.WithContext(ctx).
		Where("tenant_code = ? AND provider = ? AND subject = ?", tenantCode, provider, subject).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) Create(ctx context.Context, link *model.ExternalIdentityLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db}
}
