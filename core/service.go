package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrProviderNotRegistered = errors.New("core: provider not registered")

// Service is the token-exchange coordinator: one entry point per provider
// callback that exchanges the authorization code, resolves the owning tenant,
// normalizes the raw token, and persists the result. Steps are strictly
// sequential and the first fatal failure short-circuits the rest; no partial
// credential is ever written.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	registry        *ProviderRegistry
	tenantResolver  TenantResolver
	credentialStore CredentialStore
	secondaryIndex  SecondaryIndex
	now             func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&builder)
	}

	provider, logger := glog.Resolve("tokengate", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("tokengate"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	resolved, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	if builder.tenantResolver == nil {
		return nil, fmt.Errorf("core: tenant resolver is required")
	}
	if builder.credentialStore == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}

	return &Service{
		config:          resolved,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		registry:        builder.registry,
		tenantResolver:  builder.tenantResolver,
		credentialStore: builder.credentialStore,
		secondaryIndex:  builder.secondaryIndex,
		now:             builder.now,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() *ProviderRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

// ConsentURL issues the provider's consent redirect target.
func (s *Service) ConsentURL(product string, state string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: service is nil")
	}
	provider, ok := s.registry.Get(product)
	if !ok {
		return "", s.mapError(fmt.Errorf("%w: %s", ErrProviderNotRegistered, product))
	}
	return provider.ConsentURL(strings.TrimSpace(state)), nil
}

// HandleCallback completes one OAuth authorization-code exchange end to end.
// The caller blocks until persistence completes or fails.
func (s *Service) HandleCallback(ctx context.Context, product string, event CallbackEvent) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := s.now()
	product = strings.TrimSpace(strings.ToLower(product))
	fields := map[string]any{"product": product}

	err := s.handleCallback(ctx, product, event, fields)
	s.observeOperation(ctx, startedAt, "token_exchange", err, fields)
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) handleCallback(ctx context.Context, product string, event CallbackEvent, fields map[string]any) error {
	provider, ok := s.registry.Get(product)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotRegistered, product)
	}
	if strings.TrimSpace(event.Code) == "" {
		return newGatewayError("core: authorization code is required", goerrors.CategoryBadInput, GatewayErrorBadInput)
	}

	token, err := provider.Exchange(ctx, event)
	if err != nil {
		return newGatewayError(
			fmt.Sprintf("core: provider exchange failed for %s: %v", product, err),
			goerrors.CategoryExternal,
			GatewayErrorProviderExchangeFailed,
		)
	}

	caps := provider.Capabilities()
	var identity Identity
	if caps.NeedsIdentityCall {
		identity, err = provider.Identity(ctx, token)
		if err != nil {
			return newGatewayError(
				fmt.Sprintf("core: identity lookup failed for %s: %v", product, err),
				goerrors.CategoryExternal,
				GatewayErrorIdentityLookupFailed,
			)
		}
	}

	domain := strings.TrimSpace(identity.Domain)
	if domain == "" {
		domain = EmailDomain(identity.Email)
	}
	fields["domain"] = domain

	tenant, err := s.tenantResolver.Resolve(ctx, domain)
	if err != nil {
		return newGatewayError(
			fmt.Sprintf("core: tenant not found for domain %q (product %s)", domain, product),
			goerrors.CategoryNotFound,
			GatewayErrorTenantNotFound,
		)
	}
	fields["tenant_id"] = tenant.ID

	now := s.now()
	seeds := provider.Normalize(now, token, identity)
	if len(seeds) == 0 {
		return newGatewayError(
			fmt.Sprintf("core: provider %s produced no credentials", product),
			goerrors.CategoryInternal,
			GatewayErrorInternal,
		)
	}

	for _, seed := range seeds {
		credential := Materialize(seed, tenant, s.config.ManagingOrgID, now)
		if err := credential.Key().Validate(); err != nil {
			return err
		}
		stored, upsertErr := s.credentialStore.Upsert(ctx, credential)
		if upsertErr != nil {
			return newGatewayError(
				fmt.Sprintf("core: persist credential for %s: %v", product, upsertErr),
				goerrors.CategoryInternal,
				GatewayErrorPersistenceFailed,
			)
		}
		fields["token_type"] = stored.TokenType

		s.mirrorCredential(ctx, stored)
	}
	return nil
}

// mirrorCredential writes the stored credential into the secondary index.
// The mirror is advisory: failures are logged and never fail the exchange.
func (s *Service) mirrorCredential(ctx context.Context, credential Credential) {
	if s == nil || s.secondaryIndex == nil {
		return
	}
	if err := s.secondaryIndex.Upsert(ctx, credential); err != nil {
		s.logWarn(ctx, "secondary index mirror failed", map[string]any{
			"product":    credential.Product,
			"tenant_id":  credential.TenantID,
			"token_type": credential.TokenType,
			"text_code":  GatewayErrorMirrorFailed,
			"error":      err.Error(),
		})
		s.recordCounter(ctx, "tokengate.mirror_failures.total", 1, map[string]string{
			"product": credential.Product,
		})
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}
