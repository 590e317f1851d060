package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

// memRepo evaluates the permission join in memory. It returns duplicate codes
// when several roles share a permission, as a join without DISTINCT would.
type memRepo struct {
	mu              sync.Mutex
	roles           []*model.Role
	permissions     []*model.Permission
	rolePermissions []*model.RolePermission
	accountRoles    []*model.AccountRole
	permissionCalls int
}

func (r *memRepo) roleByID(id uint64) *model.Role {
	for _, role := range r.roles {
		if role.ID == id {
			return role
		}
	}
	return nil
}

func (r *memRepo) permissionByID(id uint64) *model.Permission {
	for _, p := range r.permissions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *memRepo) PermissionCodes(ctx context.Context, accountID uint64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permissionCalls++
	var codes []string
	for _, ar := range r.accountRoles {
		if ar.AccountID != accountID || !ar.Active {
			continue
		}
		role := r.roleByID(ar.RoleID)
		if role == nil || !role.Active {
			continue
		}
		for _, rp := range r.rolePermissions {
			if rp.RoleID != role.ID {
				continue
			}
			if p := r.permissionByID(rp.PermissionID); p != nil && p.Active {
				codes = append(codes, p.Code)
			}
		}
	}
	return codes, nil
}

func (r *memRepo) ActiveRoleCodes(ctx context.Context, accountID uint64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var codes []string
	for _, ar := range r.accountRoles {
		if role := r.roleByID(ar.RoleID); ar.AccountID == accountID && ar.Active && role != nil && role.Active {
			codes = append(codes, role.Code)
		}
	}
	return codes, nil
}

func (r *memRepo) FirstRole(ctx context.Context, tenantCode string, code string) (*model.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.TenantCode == tenantCode && role.Code == code {
			return role, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreateRole(ctx context.Context, role *model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles {
		if existing.TenantCode == role.TenantCode && existing.Code == role.Code {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
		}
	}
	role.ID = model.GenerateID()
	r.roles = append(r.roles, role)
	return nil
}

func (r *memRepo) DeleteRole(ctx context.Context, roleID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, role := range r.roles {
		if role.ID == roleID && !role.IsSystem {
			r.roles = append(r.roles[:i], r.roles[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (r *memRepo) FirstPermission(ctx context.Context, code string) (*model.Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.permissions {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreatePermission(ctx context.Context, permission *model.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.permissions {
		if existing.Code == permission.Code {
			return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
		}
	}
	permission.ID = model.GenerateID()
	r.permissions = append(r.permissions, permission)
	return nil
}

func (r *memRepo) AttachPermission(ctx context.Context, roleID uint64, permissionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rp := range r.rolePermissions {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return nil
		}
	}
	r.rolePermissions = append(r.rolePermissions, &model.RolePermission{RoleID: roleID, PermissionID: permissionID})
	return nil
}

func (r *memRepo) UpsertAccountRole(ctx context.Context, accountRole *model.AccountRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ar := range r.accountRoles {
		if ar.AccountID == accountRole.AccountID && ar.RoleID == accountRole.RoleID {
			ar.Active = true
			ar.GrantedAt = accountRole.GrantedAt
			ar.GrantedBy = accountRole.GrantedBy
			ar.RevokedAt = nil
			ar.RevokedBy = ""
			return nil
		}
	}
	r.accountRoles = append(r.accountRoles, accountRole)
	return nil
}

func (r *memRepo) RevokeAccountRole(ctx context.Context, accountID uint64, roleID uint64, revokedBy string, revokedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ar := range r.accountRoles {
		if ar.AccountID == accountID && ar.RoleID == roleID && ar.Active {
			ar.Active = false
			ar.RevokedAt = &revokedAt
			ar.RevokedBy = revokedBy
			return 1, nil
		}
	}
	return 0, nil
}

func (r *memRepo) AccountIDsWithRole(ctx context.Context, roleID uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for _, ar := range r.accountRoles {
		if ar.RoleID == roleID && ar.Active {
			ids = append(ids, ar.AccountID)
		}
	}
	return ids, nil
}
