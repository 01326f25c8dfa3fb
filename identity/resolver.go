// Package identity maps provider-reported identities onto known tenants.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
)

// Resolver resolves email domains against the tenant directory. The directory
// is authoritative: an unknown domain terminates the enclosing exchange, it
// never provisions a tenant on the fly.
type Resolver struct {
	directory core.TenantDirectory
}

func NewResolver(directory core.TenantDirectory) *Resolver {
	return &Resolver{directory: directory}
}

func (r *Resolver) Resolve(ctx context.Context, identifier string) (core.Tenant, error) {
	if r == nil || r.directory == nil {
		return core.Tenant{}, fmt.Errorf("identity: tenant directory is not configured")
	}
	domain := strings.ToLower(strings.TrimSpace(identifier))
	if domain == "" {
		return core.Tenant{}, fmt.Errorf("%w: empty domain", core.ErrTenantNotFound)
	}
	tenant, err := r.directory.FindByDomain(ctx, domain)
	if err != nil {
		return core.Tenant{}, fmt.Errorf("%w: %s", core.ErrTenantNotFound, domain)
	}
	return tenant, nil
}

var _ core.TenantResolver = (*Resolver)(nil)
