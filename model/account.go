package model

import (
	"time"

	"gorm.io/gorm"
)

// Account stores a tenant member. PasswordHash is nil for accounts that only
// sign in through an external identity provider.
type Account struct {
	ID               uint64     `gorm:"primarykey"`
	TenantCode       string     `gorm:"size:20;not null;index:idx_account_tenant_email,unique"`
	Email            string     `gorm:"size:256;not null;index:idx_account_tenant_email,unique"`
	Name             string     `gorm:"size:128;not null"`
	PasswordHash     *string    `gorm:"size:64"`
	FailedLoginCount int        `gorm:"default:0;not null"`
	LockedUntil      *time.Time `gorm:"index"`
	LastLoginAt      *time.Time
	PasswordChangeAt *time.Time
	Active           bool                   `gorm:"default:true;not null"`
	IdentityLinks    []ExternalIdentityLink `gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Roles            []AccountRole          `gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	RefreshTokens    []RefreshToken         `gorm:"foreignKey:AccountID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}

func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// ExternalIdentityLink maps a provider subject to a local account. A subject
// maps to at most one account per tenant.
type ExternalIdentityLink struct {
	ID            uint64 `gorm:"primarykey"`
	AccountID     uint64 `gorm:"not null;index"`
	TenantCode    string `gorm:"size:20;not null;index:idx_identity_provider_subject,unique"`
	Provider      string `gorm:"size:20;not null;index:idx_identity_provider_subject,unique"`
	Subject       string `gorm:"size:255;not null;index:idx_identity_provider_subject,unique"`
	ProviderEmail string `gorm:"size:256"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (l *ExternalIdentityLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == 0 {
		l.ID = GenerateID()
	}
	return nil
}
