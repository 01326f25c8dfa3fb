package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type memoryTenantResolver struct {
	tenants map[string]Tenant
}

func (r *memoryTenantResolver) Resolve(_ context.Context, identifier string) (Tenant, error) {
	tenant, ok := r.tenants[identifier]
	if !ok {
		return Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, identifier)
	}
	return tenant, nil
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	rows    map[CredentialKey]Credential
	upserts int
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{rows: map[CredentialKey]Credential{}}
}

func (s *memoryCredentialStore) Upsert(_ context.Context, credential Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := credential.Key()
	if existing, ok := s.rows[key]; ok {
		credential.ID = existing.ID
		credential.CreatedAt = existing.CreatedAt
	} else {
		credential.ID = fmt.Sprintf("cred-%d", len(s.rows)+1)
		credential.CreatedAt = credential.LastUpdatedAt
	}
	credential.UpdatedAt = credential.LastUpdatedAt
	s.rows[key] = credential
	return credential, nil
}

func (s *memoryCredentialStore) GetByKey(_ context.Context, key CredentialKey) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.rows[key]
	if !ok {
		return Credential{}, fmt.Errorf("core: credential not found")
	}
	return credential, nil
}

type recordingIndex struct {
	mu      sync.Mutex
	upserts []Credential
	err     error
}

func (i *recordingIndex) Upsert(_ context.Context, credential Credential) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.upserts = append(i.upserts, credential)
	return nil
}

func (i *recordingIndex) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.upserts)
}

func newTestService(t *testing.T, provider Provider, store *memoryCredentialStore, index SecondaryIndex) *Service {
	t.Helper()
	registry := NewProviderRegistry()
	if provider != nil {
		if err := registry.Register(provider); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	resolver := &memoryTenantResolver{tenants: map[string]Tenant{
		"acme.com": {ID: 7, Domain: "acme.com", Name: "Acme"},
	}}
	options := []Option{
		WithRegistry(registry),
		WithTenantResolver(resolver),
		WithCredentialStore(store),
		WithNowFunc(func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		}),
	}
	if index != nil {
		options = append(options, WithSecondaryIndex(index))
	}
	service, err := NewService(Config{}, options...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return service
}

func TestHandleCallbackPersistsAndMirrors(t *testing.T) {
	provider := &stubProvider{
		product: "google",
		caps:    ProviderCapabilities{HasRefreshToken: true, NeedsIdentityCall: true},
		exchangeToken: RawProviderToken{
			AccessToken:  "token-1",
			TokenType:    "Bearer",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		},
		identity: Identity{AccountID: "acct-1", Email: "jane@acme.com"},
	}
	store := newMemoryCredentialStore()
	index := &recordingIndex{}
	service := newTestService(t, provider, store, index)

	if err := service.HandleCallback(context.Background(), "google", CallbackEvent{Code: "code-1"}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	key := CredentialKey{ManagingOrgID: 1, Product: "google", TenantID: 7, TokenType: "bearer"}
	credential, err := store.GetByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if credential.AccessToken != "token-1" {
		t.Fatalf("unexpected access token %q", credential.AccessToken)
	}
	if credential.ExpiresAt == nil {
		t.Fatalf("expected absolute expiry to be stamped")
	}
	if index.count() != 1 {
		t.Fatalf("expected 1 mirror write, got %d", index.count())
	}
}

func TestHandleCallbackIdempotentUpsert(t *testing.T) {
	provider := &stubProvider{
		product:       "github",
		caps:          ProviderCapabilities{NeedsIdentityCall: true},
		exchangeToken: RawProviderToken{AccessToken: "first"},
		identity:      Identity{AccountID: "acct-2", Email: "jane@acme.com"},
	}
	store := newMemoryCredentialStore()
	service := newTestService(t, provider, store, nil)

	if err := service.HandleCallback(context.Background(), "github", CallbackEvent{Code: "c1"}); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	provider.exchangeToken = RawProviderToken{AccessToken: "second"}
	if err := service.HandleCallback(context.Background(), "github", CallbackEvent{Code: "c2"}); err != nil {
		t.Fatalf("second callback failed: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected a single row after repeated callbacks, got %d", len(store.rows))
	}
	key := CredentialKey{ManagingOrgID: 1, Product: "github", TenantID: 7, TokenType: "bearer"}
	credential, err := store.GetByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if credential.AccessToken != "second" {
		t.Fatalf("expected last write to win, got %q", credential.AccessToken)
	}
	if credential.ID != "cred-1" {
		t.Fatalf("expected row identity to be stable, got %q", credential.ID)
	}
}

func TestHandleCallbackTenantMissWritesNothing(t *testing.T) {
	provider := &stubProvider{
		product:       "zoom",
		caps:          ProviderCapabilities{NeedsIdentityCall: true},
		exchangeToken: RawProviderToken{AccessToken: "abc"},
		identity:      Identity{AccountID: "acct-3", Email: "jane@unknown.io"},
	}
	store := newMemoryCredentialStore()
	index := &recordingIndex{}
	service := newTestService(t, provider, store, index)

	err := service.HandleCallback(context.Background(), "zoom", CallbackEvent{Code: "c1"})
	if err == nil {
		t.Fatalf("expected tenant miss to fail the exchange")
	}
	if !IsGatewayTextCode(err, GatewayErrorTenantNotFound) {
		t.Fatalf("expected %s, got %v", GatewayErrorTenantNotFound, err)
	}
	if store.upserts != 0 {
		t.Fatalf("tenant miss must not write to the primary store, got %d upserts", store.upserts)
	}
	if index.count() != 0 {
		t.Fatalf("tenant miss must not write to the mirror, got %d", index.count())
	}
}

func TestHandleCallbackMirrorFailureIsNonFatal(t *testing.T) {
	provider := &stubProvider{
		product:       "ramp",
		caps:          ProviderCapabilities{NeedsIdentityCall: true},
		exchangeToken: RawProviderToken{AccessToken: "abc"},
		identity:      Identity{AccountID: "acct-4", Email: "jane@acme.com"},
	}
	store := newMemoryCredentialStore()
	index := &recordingIndex{err: errors.New("index unavailable")}
	service := newTestService(t, provider, store, index)

	if err := service.HandleCallback(context.Background(), "ramp", CallbackEvent{Code: "c1"}); err != nil {
		t.Fatalf("mirror failure must not fail the exchange: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected the primary write to land, got %d rows", len(store.rows))
	}
}

func TestHandleCallbackTeamScopedWritesTwoCredentials(t *testing.T) {
	provider := &stubProvider{
		product: "slack",
		caps:    ProviderCapabilities{TeamScoped: true, MultiCredential: true, NeedsIdentityCall: true},
		exchangeToken: RawProviderToken{
			AccessToken: "bot-token",
			TokenType:   "bot",
			TeamID:      "T0001",
			TeamName:    "Acme HQ",
			WebhookURL:  "https://hooks.example.com/T0001",
			AuthedUser:  &AuthedUserToken{AccessToken: "user-token", TokenType: "user"},
		},
		identity: Identity{Domain: "acme.com"},
	}
	store := newMemoryCredentialStore()
	index := &recordingIndex{}
	service := newTestService(t, provider, store, index)

	if err := service.HandleCallback(context.Background(), "slack", CallbackEvent{Code: "c1"}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if len(store.rows) != 2 {
		t.Fatalf("expected two rows (bot + authed user), got %d", len(store.rows))
	}
	if index.count() != 2 {
		t.Fatalf("expected two mirror writes, got %d", index.count())
	}

	bot, err := store.GetByKey(context.Background(), CredentialKey{ManagingOrgID: 1, Product: "slack", TenantID: 7, TokenType: "bot"})
	if err != nil {
		t.Fatalf("bot credential missing: %v", err)
	}
	if bot.Endpoint != "https://hooks.example.com/T0001" {
		t.Fatalf("expected webhook endpoint on the bot credential, got %q", bot.Endpoint)
	}
	if bot.ExternalAccountID != "T0001" {
		t.Fatalf("expected team id on the bot credential, got %q", bot.ExternalAccountID)
	}

	user, err := store.GetByKey(context.Background(), CredentialKey{ManagingOrgID: 1, Product: "slack", TenantID: 7, TokenType: "user"})
	if err != nil {
		t.Fatalf("authed-user credential missing: %v", err)
	}
	if user.AccessToken != "user-token" {
		t.Fatalf("unexpected authed-user token %q", user.AccessToken)
	}
}

func TestHandleCallbackProviderExchangeFailure(t *testing.T) {
	provider := &stubProvider{
		product:     "gusto",
		caps:        ProviderCapabilities{NeedsIdentityCall: true},
		exchangeErr: errors.New("token endpoint returned 502"),
	}
	store := newMemoryCredentialStore()
	service := newTestService(t, provider, store, nil)

	err := service.HandleCallback(context.Background(), "gusto", CallbackEvent{Code: "c1"})
	if !IsGatewayTextCode(err, GatewayErrorProviderExchangeFailed) {
		t.Fatalf("expected %s, got %v", GatewayErrorProviderExchangeFailed, err)
	}
	if store.upserts != 0 {
		t.Fatalf("failed exchange must not persist anything")
	}
}

func TestHandleCallbackRequiresCode(t *testing.T) {
	provider := &stubProvider{product: "github"}
	service := newTestService(t, provider, newMemoryCredentialStore(), nil)

	err := service.HandleCallback(context.Background(), "github", CallbackEvent{})
	if !IsGatewayTextCode(err, GatewayErrorBadInput) {
		t.Fatalf("expected %s, got %v", GatewayErrorBadInput, err)
	}
}

func TestHandleCallbackUnknownProvider(t *testing.T) {
	service := newTestService(t, nil, newMemoryCredentialStore(), nil)

	err := service.HandleCallback(context.Background(), "nope", CallbackEvent{Code: "c1"})
	if !IsGatewayTextCode(err, GatewayErrorProviderNotFound) {
		t.Fatalf("expected %s, got %v", GatewayErrorProviderNotFound, err)
	}
}

func TestConsentURL(t *testing.T) {
	provider := &stubProvider{product: "docusign", consentURL: "https://account.docusign.com/oauth/auth"}
	service := newTestService(t, provider, newMemoryCredentialStore(), nil)

	url, err := service.ConsentURL("docusign", "state-1")
	if err != nil {
		t.Fatalf("ConsentURL failed: %v", err)
	}
	if url != "https://account.docusign.com/oauth/auth?state=state-1" {
		t.Fatalf("unexpected consent url %q", url)
	}

	if _, err := service.ConsentURL("missing", "s"); !IsGatewayTextCode(err, GatewayErrorProviderNotFound) {
		t.Fatalf("expected %s, got %v", GatewayErrorProviderNotFound, err)
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := NewService(Config{}, WithCredentialStore(newMemoryCredentialStore())); err == nil {
		t.Fatalf("expected missing tenant resolver to be rejected")
	}
	resolver := &memoryTenantResolver{tenants: map[string]Tenant{}}
	if _, err := NewService(Config{}, WithTenantResolver(resolver)); err == nil {
		t.Fatalf("expected missing credential store to be rejected")
	}
}

func TestNewServiceMergesConfigLayers(t *testing.T) {
	store := newMemoryCredentialStore()
	resolver := &memoryTenantResolver{tenants: map[string]Tenant{}}
	service, err := NewService(
		Config{ManagingOrgID: 9, Scheduler: SchedulerConfig{PollInterval: 250 * time.Millisecond}},
		WithTenantResolver(resolver),
		WithCredentialStore(store),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	cfg := service.Config()
	if cfg.ManagingOrgID != 9 {
		t.Fatalf("runtime layer should override the default org, got %d", cfg.ManagingOrgID)
	}
	if cfg.Scheduler.PollInterval != 250*time.Millisecond {
		t.Fatalf("runtime scheduler override lost, got %v", cfg.Scheduler.PollInterval)
	}
	if cfg.ServiceName != "tokengate" {
		t.Fatalf("defaults should fill unset fields, got %q", cfg.ServiceName)
	}
	if cfg.Scheduler.CleanupMaxCount != DefaultCleanupMaxCount {
		t.Fatalf("defaults should fill unset scheduler fields, got %d", cfg.Scheduler.CleanupMaxCount)
	}
}
