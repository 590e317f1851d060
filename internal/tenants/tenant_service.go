package tenants

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/tenantauth/model"
	"gorm.io/gorm"
)

var tenantCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{1,20}$`)

// TokenRevoker revokes every refresh token issued under a tenant.
type TokenRevoker interface {
	RevokeAllForTenant(ctx context.Context, tenantCode string) (int64, error)
}

type TenantService struct {
	tenantRepo TenantRepository
	revoker    TokenRevoker
}

// NormalizeCode trims and upper-cases a tenant code as supplied by clients.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *TenantService) CreateTenant(ctx context.Context, code string, name string) (*model.Tenant, error) {
	code = NormalizeCode(code)
	if !tenantCodePattern.MatchString(code) {
		return nil, ErrInvalidCode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameEmpty
	}

	tenant := model.Tenant{
		Code:   code,
		Name:   name,
		Active: true,
	}
	var mysqlErr *mysql.MySQLError
	if err := s.tenantRepo.Create(ctx, &tenant); err != nil {
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil, ErrTenantExists
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *TenantService) GetTenant(ctx context.Context, code string) (*model.Tenant, error) {
	tenant, err := s.tenantRepo.FirstByCode(ctx, NormalizeCode(code))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	return tenant, err
}

// GetActiveTenant returns ErrTenantInactive for deactivated tenants.
func (s *TenantService) GetActiveTenant(ctx context.Context, code string) (*model.Tenant, error) {
	tenant, err := s.GetTenant(ctx, code)
	if err != nil {
		return nil, err
	}
	if !tenant.Active {
		return nil, ErrTenantInactive
	}
	return tenant, nil
}

// DeactivateTenant soft-deactivates the tenant and revokes all refresh tokens
// issued under it.
func (s *TenantService) DeactivateTenant(ctx context.Context, code string) (int64, error) {
	code = NormalizeCode(code)
	affected, err := s.tenantRepo.SetActive(ctx, code, false)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		if _, err := s.GetTenant(ctx, code); err != nil {
			return 0, err
		}
	}
	return s.revoker.RevokeAllForTenant(ctx, code)
}

func NewTenantService(tenantRepo TenantRepository, revoker TokenRevoker) *TenantService {
	return &TenantService{
		tenantRepo: tenantRepo,
		revoker:    revoker,
	}
}
