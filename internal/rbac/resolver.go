package rbac

import (
	"context"
	"log/slog"

	"github.com/khanghh/tenantauth/internal/metrics"
)

// Resolver computes the effective permissions of accounts. A nil cache
// disables caching.
type Resolver struct {
	repo  Repository
	cache PermissionCache
}

// PermissionsFor returns the union of the active permissions of every active
// role granted to the account.
func (r *Resolver) PermissionsFor(ctx context.Context, accountID uint64) (PermissionSet, error) {
	if r.cache != nil {
		permissions, ok, err := r.cache.Get(ctx, accountID)
		switch {
		case err != nil:
			metrics.PermissionCacheLookups.WithLabelValues("error").Inc()
			slog.Warn("Permission cache lookup failed", "accountID", accountID, "error", err)
		case ok:
			metrics.PermissionCacheLookups.WithLabelValues("hit").Inc()
			return permissions, nil
		default:
			metrics.PermissionCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	codes, err := r.repo.PermissionCodes(ctx, accountID)
	if err != nil {
		return nil, err
	}
	permissions := NewPermissionSet(codes...)
	if r.cache != nil {
		if err := r.cache.Set(ctx, accountID, permissions); err != nil {
			slog.Warn("Failed to cache permissions", "accountID", accountID, "error", err)
		}
	}
	return permissions, nil
}

func (r *Resolver) HasPermission(ctx context.Context, accountID uint64, code string) (bool, error) {
	permissions, err := r.PermissionsFor(ctx, accountID)
	if err != nil {
		return false, err
	}
	return permissions.Has(code), nil
}

func (r *Resolver) RoleCodes(ctx context.Context, accountID uint64) ([]string, error) {
	return r.repo.ActiveRoleCodes(ctx, accountID)
}

// Invalidate drops cached permission sets so the next lookup hits the
// database.
func (r *Resolver) Invalidate(ctx context.Context, accountIDs ...uint64) {
	if r.cache == nil || len(accountIDs) == 0 {
		return
	}
	if err := r.cache.Invalidate(ctx, accountIDs...); err != nil {
		slog.Error("Failed to invalidate cached permissions", "accounts", len(accountIDs), "error", err)
	}
}

func NewResolver(repo Repository, cache PermissionCache) *Resolver {
	return &Resolver{
		repo:  repo,
		cache: cache,
	}
}
