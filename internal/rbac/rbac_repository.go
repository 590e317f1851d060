package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	PermissionCodes(ctx context.Context, accountID uint64) ([]string, error)
	ActiveRoleCodes(ctx context.Context, accountID uint64) ([]string, error)
	FirstRole(ctx context.Context, tenantCode string, code string) (*model.Role, error)
	CreateRole(ctx context.Context, role *model.Role) error
	DeleteRole(ctx context.Context, roleID uint64) (int64, error)
	FirstPermission(ctx context.Context, code string) (*model.Permission, error)
	CreatePermission(ctx context.Context, permission *model.Permission) error
	AttachPermission(ctx context.Context, roleID uint64, permissionID uint64) error
	UpsertAccountRole(ctx context.Context, accountRole *model.AccountRole) error
	RevokeAccountRole(ctx context.Context, accountID uint64, roleID uint64, revokedBy string, revokedAt time.Time) (int64, error)
	AccountIDsWithRole(ctx context.Context, roleID uint64) ([]uint64, error)
}

type tableNames struct {
	accountRole    string
	role           string
	rolePermission string
	permission     string
}

type rbacRepository struct {
	db     *gorm.DB
	tables tableNames
}

func tableName(db *gorm.DB, value interface{}) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(value); err != nil {
		panic(fmt.Sprintf("failed to parse model %T: %v", value, err))
	}
	return stmt.Schema.Table
}

// PermissionCodes returns the distinct codes of active permissions reachable
// through the account's active role grants on active roles.
func (r *rbacRepository) PermissionCodes(ctx context.Context, accountID uint64) ([]string, error) {
	t := r.tables
	var codes []string
	err := r.db.WithContext(ctx).
		Table(t.accountRole).
		Distinct(t.permission+".code").
		Joins(fmt.Sprintf("JOIN %s ON %s.id = %s.role_id AND %s.active = ?", t.role, t.role, t.accountRole, t.role), true).
		Joins(fmt.Sprintf("JOIN %s ON %s.role_id = %s.id", t.rolePermission, t.rolePermission, t.role)).
		Joins(fmt.Sprintf("JOIN %s ON %s.id = %s.permission_id AND %s.active = ?", t.permission, t.permission, t.rolePermission, t.permission), true).
		Where(fmt.Sprintf("%s.account_id = ? AND %s.active = ?", t.accountRole, t.accountRole), accountID, true).
		Pluck(t.permission+".code", &codes).Error
	return codes, err
}

func (r *rbacRepository) ActiveRoleCodes(ctx context.Context, accountID uint64) ([]string, error) {
	t := r.tables
	var codes []string
	err := r.db.WithContext(ctx).
		Table(t.accountRole).
		Joins(fmt.Sprintf("JOIN %s ON %s.id = %s.role_id AND %s.active = ?", t.role, t.role, t.accountRole, t.role), true).
		Where(fmt.Sprintf("%s.account_id = ? AND %s.active = ?", t.accountRole, t.accountRole), accountID, true).
		Order(t.role+".code").
		Pluck(t.role+".code", &codes).Error
	return codes, err
}

func (r *rbacRepository) FirstRole(ctx context.Context, tenantCode string, code string) (*model.Role, error) {
	var role model.Role
	if err := r.db.WithContext(ctx).Where("tenant_code = ? AND code = ?", tenantCode, code).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *rbacRepository) CreateRole(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *rbacRepository) DeleteRole(ctx context.Context, roleID uint64) (int64, error) {
	ret := r.db.WithContext(ctx).Where("id = ? AND is_system = ?", roleID, false).Delete(&model.Role{})
	return ret.RowsAffected, ret.Error
}

func (r *rbacRepository) FirstPermission(ctx context.Context, code string) (*model.Permission, error) {
	var permission model.Permission
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&permission).Error; err != nil {
		return nil, err
	}
	return &permission, nil
}

func (r *rbacRepository) CreatePermission(ctx context.Context, permission *model.Permission) error {
	return r.db.WithContext(ctx).Create(permission).Error
}

func (r *rbacRepository) AttachPermission(ctx context.Context, roleID uint64, permissionID uint64) error {
	rolePermission := model.RolePermission{RoleID: roleID, PermissionID: permissionID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&rolePermission).Error
}

// UpsertAccountRole grants the role, reactivating a previously revoked grant.
func (r *rbacRepository) UpsertAccountRole(ctx context.Context, accountRole *model.AccountRole) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "role_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"active":     true,
				"granted_at": accountRole.GrantedAt,
				"granted_by": accountRole.GrantedBy,
				"revoked_at": nil,
				"revoked_by": "",
			}),
		}).
		Omit(clause.Associations).
		Create(accountRole).Error
}

func (r *rbacRepository) RevokeAccountRole(ctx context.Context, accountID uint64, roleID uint64, revokedBy string, revokedAt time.Time) (int64, error) {
	ret := r.db.WithContext(ctx).
		Model(&model.AccountRole{}).
		Where("account_id = ? AND role_id = ? AND active = ?", accountID, roleID, true).
		UpdateColumns(map[string]interface{}{
			"active":     false,
			"revoked_at": revokedAt,
			"revoked_by": revokedBy,
		})
	return ret.RowsAffected, ret.Error
}

func (r *rbacRepository) AccountIDsWithRole(ctx context.Context, roleID uint64) ([]uint64, error) {
	var accountIDs []uint64
	err := r.db.WithContext(ctx).
		Model(&model.AccountRole{}).
		Where("role_id = ? AND active = ?", roleID, true).
		Pluck("account_id", &accountIDs).Error
	return accountIDs, err
}

func NewRepository(db *gorm.DB) Repository {
	return &rbacRepository{
		db: db,
		tables: tableNames{
			accountRole:    tableName(db, &model.AccountRole{}),
			role:           tableName(db, &model.Role{}),
			rolePermission: tableName(db, &model.RolePermission{}),
			permission:     tableName(db, &model.Permission{}),
		},
	}
}
