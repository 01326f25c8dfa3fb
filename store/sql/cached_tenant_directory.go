package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tokengate/core"
)

const tenantCacheKeyPrefix = "go-tokengate::tenant::v1"

// CachedTenantDirectory fronts the tenant catalog with a read-through cache.
// Tenant rows change rarely and every exchange resolves one, so the cache
// absorbs nearly all directory reads.
type CachedTenantDirectory struct {
	base  core.TenantDirectory
	cache repositorycache.CacheService
}

func NewCachedTenantDirectory(base core.TenantDirectory, cacheService repositorycache.CacheService) (*CachedTenantDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base tenant directory is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: tenant cache service is required")
	}
	return &CachedTenantDirectory{base: base, cache: cacheService}, nil
}

// TenantCacheKey is the deterministic cache key contract for tenant reads:
// go-tokengate::tenant::v1::<domain> with the domain URL-path escaped.
func TenantCacheKey(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", fmt.Errorf("sqlstore: domain is required for tenant cache key")
	}
	return tenantCacheKeyPrefix + "::" + url.PathEscape(domain), nil
}

func (d *CachedTenantDirectory) FindByDomain(ctx context.Context, domain string) (core.Tenant, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: cached tenant directory is not configured")
	}
	normalized := strings.ToLower(strings.TrimSpace(domain))
	cacheKey, err := TenantCacheKey(normalized)
	if err != nil {
		return core.Tenant{}, err
	}
	return repositorycache.GetOrFetch(ctx, d.cache, cacheKey, func(ctx context.Context) (core.Tenant, error) {
		return d.base.FindByDomain(ctx, normalized)
	})
}

// Invalidate drops one domain from the cache after an out-of-band tenant
// change.
func (d *CachedTenantDirectory) Invalidate(ctx context.Context, domain string) error {
	if d == nil || d.cache == nil {
		return fmt.Errorf("sqlstore: cached tenant directory is not configured")
	}
	cacheKey, err := TenantCacheKey(domain)
	if err != nil {
		return err
	}
	return d.cache.Delete(ctx, cacheKey)
}

var _ core.TenantDirectory = (*CachedTenantDirectory)(nil)
