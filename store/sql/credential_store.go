package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tokengate/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore persists canonical credentials in the api_tokens table.
// Upserts key on (managing_org_id, product, tenant_id, token_type): a repeat
// exchange rewrites the existing row in place, it never grows a second one.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func (s *CredentialStore) Upsert(ctx context.Context, credential core.Credential) (core.Credential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key := credential.Key()
	if err := key.Validate(); err != nil {
		return core.Credential{}, err
	}
	credential.Product = key.Product
	credential.TokenType = key.TokenType
	now := time.Now().UTC()
	if credential.LastUpdatedAt.IsZero() {
		credential.LastUpdatedAt = now
	}

	var stored core.Credential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &credentialRecord{}
		selectErr := tx.NewSelect().
			Model(existing).
			Where("managing_org_id = ?", key.ManagingOrgID).
			Where("product = ?", key.Product).
			Where("tenant_id = ?", key.TenantID).
			Where("token_type = ?", key.TokenType).
			Limit(1).
			Scan(ctx)
		switch {
		case selectErr == nil:
			credential.ID = existing.ID
			credential.CreatedAt = existing.CreatedAt
			credential.UpdatedAt = now
			record := newCredentialRecord(credential)
			if _, updateErr := tx.NewUpdate().
				Model(record).
				WherePK().
				Exec(ctx); updateErr != nil {
				return updateErr
			}
			stored = record.toDomain()
			return nil
		case errors.Is(selectErr, sql.ErrNoRows):
			credential.ID = uuid.NewString()
			credential.CreatedAt = now
			credential.UpdatedAt = now
			record := newCredentialRecord(credential)
			inserted, createErr := s.repo.CreateTx(ctx, tx, record)
			if createErr != nil {
				return createErr
			}
			stored = inserted.toDomain()
			return nil
		default:
			return selectErr
		}
	})
	if err != nil {
		return core.Credential{}, err
	}
	return stored, nil
}

func (s *CredentialStore) GetByKey(ctx context.Context, key core.CredentialKey) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if err := key.Validate(); err != nil {
		return core.Credential{}, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("managing_org_id", "=", fmt.Sprint(key.ManagingOrgID)),
		repository.SelectBy("product", "=", key.Product),
		repository.SelectBy("tenant_id", "=", fmt.Sprint(key.TenantID)),
		repository.SelectBy("token_type", "=", key.TokenType),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, fmt.Errorf("sqlstore: credential not found for %s/%s tenant %d", key.Product, key.TokenType, key.TenantID)
	}
	return records[0].toDomain(), nil
}
