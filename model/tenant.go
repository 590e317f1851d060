package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant is the isolation boundary every other row is scoped by. Tenants are
// deactivated, never hard-deleted.
type Tenant struct {
	ID        uint64    `gorm:"primarykey"`
	Code      string    `gorm:"uniqueIndex;size:20;not null"`
	Name      string    `gorm:"size:128;not null"`
	Active    bool      `gorm:"default:true;not null"`
	Accounts  []Account `gorm:"foreignKey:TenantCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Roles     []Role    `gorm:"foreignKey:TenantCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == 0 {
		t.ID = GenerateID()
	}
	return nil
}
