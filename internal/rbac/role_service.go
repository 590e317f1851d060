package rbac

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

var (
	roleCodeRegex       = regexp.MustCompile(`^[A-Z0-9_]{1,50}$`)
	permissionCodeRegex = regexp.MustCompile(`^[a-z0-9_.-]{1,49}:[a-z0-9_.-]{1,20}$`)
)

type CreateRoleOptions struct {
	TenantCode  string
	Code        string
	Name        string
	Description string
	IsSystem    bool
}

type CreatePermissionOptions struct {
	Resource    string
	Action      string
	Name        string
	Description string
}

// RoleService administers roles, permissions and grants. Every change that
// can alter an account's permissions invalidates the affected cache entries.
type RoleService struct {
	repo     Repository
	resolver *Resolver
	now      func() time.Time
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (s *RoleService) CreateRole(ctx context.Context, opts CreateRoleOptions) (*model.Role, error) {
	code := strings.ToUpper(strings.TrimSpace(opts.Code))
	if !roleCodeRegex.MatchString(code) {
		return nil, ErrInvalidCode
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, ErrNameEmpty
	}
	role := model.Role{
		TenantCode:  opts.TenantCode,
		Code:        code,
		Name:        name,
		Description: opts.Description,
		IsSystem:    opts.IsSystem,
		Active:      true,
	}
	if err := s.repo.CreateRole(ctx, &role); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrRoleExists
		}
		return nil, err
	}
	return &role, nil
}

func (s *RoleService) GetRole(ctx context.Context, tenantCode string, code string) (*model.Role, error) {
	role, err := s.repo.FirstRole(ctx, tenantCode, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	return role, err
}

// DeleteRole removes a non-system role together with its grants.
func (s *RoleService) DeleteRole(ctx context.Context, tenantCode string, code string) error {
	role, err := s.GetRole(ctx, tenantCode, code)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return ErrSystemRole
	}
	holders, err := s.repo.AccountIDsWithRole(ctx, role.ID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteRole(ctx, role.ID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrRoleNotFound
	}
	s.resolver.Invalidate(ctx, holders...)
	return nil
}

// CreatePermission adds a catalog entry coded "resource:action".
func (s *RoleService) CreatePermission(ctx context.Context, opts CreatePermissionOptions) (*model.Permission, error) {
	resource := strings.ToLower(strings.TrimSpace(opts.Resource))
	action := strings.ToLower(strings.TrimSpace(opts.Action))
	code := resource + ":" + action
	if !permissionCodeRegex.MatchString(code) {
		return nil, ErrInvalidCode
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = code
	}
	permission := model.Permission{
		Code:        code,
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: opts.Description,
		Active:      true,
	}
	if err := s.repo.CreatePermission(ctx, &permission); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrPermissionExists
		}
		return nil, err
	}
	return &permission, nil
}

func (s *RoleService) AttachPermission(ctx context.Context, tenantCode string, roleCode string, permissionCode string) error {
	role, err := s.GetRole(ctx, tenantCode, roleCode)
	if err != nil {
		return err
	}
	permission, err := s.repo.FirstPermission(ctx, strings.ToLower(strings.TrimSpace(permissionCode)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPermissionNotFound
	}
	if err != nil {
		return err
	}
	if err := s.repo.AttachPermission(ctx, role.ID, permission.ID); err != nil {
		return err
	}
	holders, err := s.repo.AccountIDsWithRole(ctx, role.ID)
	if err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, holders...)
	return nil
}

// GrantRole grants the tenant's role to the account. Granting a revoked role
// reactivates the existing grant.
func (s *RoleService) GrantRole(ctx context.Context, account *model.Account, roleCode string, grantedBy string) error {
	role, err := s.GetRole(ctx, account.TenantCode, roleCode)
	if err != nil {
		return err
	}
	accountRole := model.AccountRole{
		AccountID: account.ID,
		RoleID:    role.ID,
		Active:    true,
		GrantedAt: s.now(),
		GrantedBy: grantedBy,
	}
	if err := s.repo.UpsertAccountRole(ctx, &accountRole); err != nil {
		return err
	}
	s.resolver.Invalidate(ctx, account.ID)
	slog.Info("Granted role", "tenant", account.TenantCode, "accountID", account.ID, "role", role.Code, "grantedBy", grantedBy)
	return nil
}

// RevokeRole deactivates the grant; the row is kept for history. It returns
// false when the account had no active grant of the role.
func (s *RoleService) RevokeRole(ctx context.Context, account *model.Account, roleCode string, revokedBy string) (bool, error) {
	role, err := s.GetRole(ctx, account.TenantCode, roleCode)
	if err != nil {
		return false, err
	}
	revoked, err := s.repo.RevokeAccountRole(ctx, account.ID, role.ID, revokedBy, s.now())
	if err != nil {
		return false, err
	}
	s.resolver.Invalidate(ctx, account.ID)
	if revoked > 0 {
		slog.Info("Revoked role", "tenant", account.TenantCode, "accountID", account.ID, "role", role.Code, "revokedBy", revokedBy)
	}
	return revoked > 0, nil
}

func NewRoleService(repo Repository, resolver *Resolver) *RoleService {
	return &RoleService{
		repo:     repo,
		resolver: resolver,
		now:      time.Now,
	}
}
