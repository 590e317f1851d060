package rbac

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/khanghh/tenantauth/internal/store"
)

// PermissionCache caches resolved permission sets per account.
type PermissionCache interface {
	Get(ctx context.Context, accountID uint64) (PermissionSet, bool, error)
	Set(ctx context.Context, accountID uint64, permissions PermissionSet) error
	Invalidate(ctx context.Context, accountIDs ...uint64) error
}

type cachedPermissions struct {
	Codes    string `redis:"codes"`
	CachedAt int64  `redis:"cachedAt"`
}

type storePermissionCache struct {
	store store.Store[cachedPermissions]
	ttl   time.Duration
}

func cacheKey(accountID uint64) string {
	return strconv.FormatUint(accountID, 10)
}

func (c *storePermissionCache) Get(ctx context.Context, accountID uint64) (PermissionSet, bool, error) {
	cached, err := c.store.Get(ctx, cacheKey(accountID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cached.Codes == "" {
		return NewPermissionSet(), true, nil
	}
	return NewPermissionSet(strings.Split(cached.Codes, ",")...), true, nil
}

func (c *storePermissionCache) Set(ctx context.Context, accountID uint64, permissions PermissionSet) error {
	cached := cachedPermissions{
		Codes:    permissions.String(),
		CachedAt: time.Now().Unix(),
	}
	return c.store.Set(ctx, cacheKey(accountID), cached, c.ttl)
}

func (c *storePermissionCache) Invalidate(ctx context.Context, accountIDs ...uint64) error {
	keys := make([]string, len(accountIDs))
	for i, accountID := range accountIDs {
		keys[i] = cacheKey(accountID)
	}
	return c.store.DeleteMany(ctx, keys...)
}

// NewStorePermissionCache caches permission sets in storage under keyPrefix.
func NewStorePermissionCache(storage store.Storage, keyPrefix string, ttl time.Duration) PermissionCache {
	return &storePermissionCache{
		store: store.New[cachedPermissions](storage, keyPrefix),
		ttl:   ttl,
	}
}

type lruPermissionCache struct {
	lru *expirable.LRU[uint64, PermissionSet]
}

func (c *lruPermissionCache) Get(ctx context.Context, accountID uint64) (PermissionSet, bool, error) {
	permissions, ok := c.lru.Get(accountID)
	return permissions, ok, nil
}

func (c *lruPermissionCache) Set(ctx context.Context, accountID uint64, permissions PermissionSet) error {
	c.lru.Add(accountID, permissions)
	return nil
}

func (c *lruPermissionCache) Invalidate(ctx context.Context, accountIDs ...uint64) error {
	for _, accountID := range accountIDs {
		c.lru.Remove(accountID)
	}
	return nil
}

// NewLRUPermissionCache is the in-process cache used when redis is not
// configured. Invalidation only reaches the local process.
func NewLRUPermissionCache(size int, ttl time.Duration) PermissionCache {
	return &lruPermissionCache{
		lru: expirable.NewLRU[uint64, PermissionSet](size, nil, ttl),
	}
}
