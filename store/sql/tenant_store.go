package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/uptrace/bun"
)

// TenantStore reads the tenant catalog. The gateway only looks tenants up;
// Seed exists for operational backfills and tests.
type TenantStore struct {
	db *bun.DB
}

func (s *TenantStore) FindByDomain(ctx context.Context, domain string) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return core.Tenant{}, fmt.Errorf("%w: empty domain", core.ErrTenantNotFound)
	}

	record := &tenantRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("domain = ?", domain).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Tenant{}, fmt.Errorf("%w: %s", core.ErrTenantNotFound, domain)
		}
		return core.Tenant{}, err
	}
	return record.toDomain(), nil
}

func (s *TenantStore) Seed(ctx context.Context, tenants ...core.Tenant) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant store is not configured")
	}
	for _, tenant := range tenants {
		record := &tenantRecord{
			ID:     tenant.ID,
			Domain: strings.ToLower(strings.TrimSpace(tenant.Domain)),
			Name:   tenant.Name,
		}
		if record.Domain == "" {
			return fmt.Errorf("sqlstore: tenant domain is required")
		}
		if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
