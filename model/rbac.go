package model

import (
	"time"

	"gorm.io/gorm"
)

// Role is a tenant-scoped set of permissions. System roles cannot be deleted.
type Role struct {
	ID          uint64           `gorm:"primarykey"`
	TenantCode  string           `gorm:"size:20;not null;index:idx_role_tenant_code,unique"`
	Code        string           `gorm:"size:50;not null;index:idx_role_tenant_code,unique"`
	Name        string           `gorm:"size:100;not null"`
	Description string           `gorm:"size:512"`
	IsSystem    bool             `gorm:"default:false;not null"`
	Active      bool             `gorm:"default:true;not null"`
	Permissions []RolePermission `gorm:"foreignKey:RoleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == 0 {
		r.ID = GenerateID()
	}
	return nil
}

// Permission is a global catalog entry identified by (resource, action).
type Permission struct {
	ID          uint64 `gorm:"primarykey"`
	Code        string `gorm:"uniqueIndex;size:100;not null"`
	Name        string `gorm:"size:100;not null"`
	Resource    string `gorm:"size:50;not null;index:idx_permission_resource_action,unique"`
	Action      string `gorm:"size:20;not null;index:idx_permission_resource_action,unique"`
	Description string `gorm:"size:512"`
	Active      bool   `gorm:"default:true;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = GenerateID()
	}
	return nil
}

type RolePermission struct {
	ID           uint64     `gorm:"primarykey"`
	RoleID       uint64     `gorm:"not null;index:idx_role_permission,unique"`
	PermissionID uint64     `gorm:"not null;index:idx_role_permission,unique"`
	Permission   Permission `gorm:"foreignKey:PermissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt    time.Time
}

// AccountRole grants a role to an account. Revocation is logical: the row is
// kept with Active=false and RevokedAt set.
type AccountRole struct {
	ID        uint64 `gorm:"primarykey"`
	AccountID uint64 `gorm:"not null;index:idx_account_role,unique"`
	RoleID    uint64 `gorm:"not null;index:idx_account_role,unique"`
	Role      Role   `gorm:"foreignKey:RoleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Active    bool   `gorm:"default:true;not null"`
	GrantedAt time.Time
	GrantedBy string `gorm:"size:64"`
	RevokedAt *time.Time
	RevokedBy string `gorm:"size:64"`
}
