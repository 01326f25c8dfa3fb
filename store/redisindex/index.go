// Package redisindex mirrors stored credentials into Redis as a
// schema-flexible secondary index. The relational store stays authoritative;
// the mirror exists for cheap lookups by consumers that cannot reach the
// primary database.
package redisindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tokengate/core"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tokengate:credential"

type IndexStore struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) (*IndexStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisindex: redis client is required")
	}
	return &IndexStore{client: client}, nil
}

// FromURL dials Redis from a redis:// URL and verifies connectivity.
func FromURL(ctx context.Context, rawURL string) (*IndexStore, error) {
	options, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("redisindex: parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisindex: ping redis: %w", err)
	}
	return New(client)
}

// Key returns the mirror hash key for one credential's natural key:
// tokengate:credential:<org>:<product>:<tenant>:<token_type>.
func Key(key core.CredentialKey) string {
	return strings.Join([]string{
		keyPrefix,
		strconv.FormatInt(key.ManagingOrgID, 10),
		strings.ToLower(strings.TrimSpace(key.Product)),
		strconv.FormatInt(key.TenantID, 10),
		strings.ToLower(strings.TrimSpace(key.TokenType)),
	}, ":")
}

func (s *IndexStore) Upsert(ctx context.Context, credential core.Credential) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisindex: index store is not configured")
	}
	key := credential.Key()
	if err := key.Validate(); err != nil {
		return err
	}

	fields := map[string]any{
		"id":                  credential.ID,
		"managing_org_id":     credential.ManagingOrgID,
		"product":             key.Product,
		"tenant_id":           credential.TenantID,
		"token_type":          key.TokenType,
		"access_token":        credential.AccessToken,
		"refresh_token":       credential.RefreshToken,
		"endpoint":            credential.Endpoint,
		"external_account_id": credential.ExternalAccountID,
		"item_id":             credential.ItemID,
		"user_email":          credential.UserEmail,
		"last_updated_at":     credential.LastUpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if credential.ExpiresAt != nil {
		fields["expires_at"] = credential.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if credential.RefreshExpiresAt != nil {
		fields["refresh_expires_at"] = credential.RefreshExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	if err := s.client.HSet(ctx, Key(key), fields).Err(); err != nil {
		return fmt.Errorf("redisindex: hset %s: %w", Key(key), err)
	}
	return nil
}

// Get reads one mirrored credential's fields, mostly for diagnostics.
func (s *IndexStore) Get(ctx context.Context, key core.CredentialKey) (map[string]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redisindex: index store is not configured")
	}
	fields, err := s.client.HGetAll(ctx, Key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisindex: hgetall %s: %w", Key(key), err)
	}
	return fields, nil
}

func (s *IndexStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ core.SecondaryIndex = (*IndexStore)(nil)
