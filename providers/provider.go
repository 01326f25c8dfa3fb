// Package providers holds the shared OAuth2 plumbing behind every vendor
// integration: the token-endpoint client, the identity-call helper, and a
// descriptor-driven provider base the per-vendor packages configure.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tokengate/core"
)

// TokenMapper reshapes one decoded token-endpoint payload into the canonical
// raw token. The default mapper covers the plain OAuth2 response; vendors
// with nested shapes install their own.
type TokenMapper func(payload TokenPayload, event core.CallbackEvent) (core.RawProviderToken, error)

// IdentityFunc performs the vendor's "who am I" follow-up.
type IdentityFunc func(ctx context.Context, doer HTTPDoer, token core.RawProviderToken) (core.Identity, error)

// EnrichFunc runs after the code exchange and may call back into the vendor
// API to fill token fields the token endpoint itself does not return.
type EnrichFunc func(ctx context.Context, doer HTTPDoer, token core.RawProviderToken) (core.RawProviderToken, error)

// Settings is the per-vendor credential material supplied at wiring time.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   HTTPDoer
}

// Descriptor configures one vendor integration on top of the shared base.
type Descriptor struct {
	Product       string
	Capabilities  core.ProviderCapabilities
	Client        TokenClient
	MapToken      TokenMapper
	EnrichToken   EnrichFunc
	FetchIdentity IdentityFunc
}

// Base implements the provider contract for every OAuth2 vendor.
type Base struct {
	descriptor Descriptor
}

func New(descriptor Descriptor) (*Base, error) {
	descriptor.Product = strings.TrimSpace(strings.ToLower(descriptor.Product))
	if descriptor.Product == "" {
		return nil, fmt.Errorf("providers: product is required")
	}
	if strings.TrimSpace(descriptor.Client.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for %q", descriptor.Product)
	}
	if strings.TrimSpace(descriptor.Client.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for %q", descriptor.Product)
	}
	if descriptor.MapToken == nil {
		descriptor.MapToken = DefaultTokenMapper
	}
	if descriptor.Capabilities.NeedsIdentityCall && descriptor.FetchIdentity == nil {
		return nil, fmt.Errorf("providers: identity func is required for %q", descriptor.Product)
	}
	return &Base{descriptor: descriptor}, nil
}

func (p *Base) Product() string {
	if p == nil {
		return ""
	}
	return p.descriptor.Product
}

func (p *Base) Capabilities() core.ProviderCapabilities {
	if p == nil {
		return core.ProviderCapabilities{}
	}
	return p.descriptor.Capabilities
}

func (p *Base) ConsentURL(state string) string {
	if p == nil {
		return ""
	}
	return p.descriptor.Client.ConsentURL(state)
}

func (p *Base) Exchange(ctx context.Context, event core.CallbackEvent) (core.RawProviderToken, error) {
	if p == nil {
		return core.RawProviderToken{}, fmt.Errorf("providers: provider is nil")
	}
	payload, err := p.descriptor.Client.ExchangeCode(ctx, event.Code)
	if err != nil {
		return core.RawProviderToken{}, err
	}
	token, err := p.descriptor.MapToken(payload, event)
	if err != nil {
		return core.RawProviderToken{}, err
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return core.RawProviderToken{}, fmt.Errorf("providers: %s token payload missing access token", p.descriptor.Product)
	}
	if p.descriptor.EnrichToken != nil {
		token, err = p.descriptor.EnrichToken(ctx, p.descriptor.Client.httpDoer(), token)
		if err != nil {
			return core.RawProviderToken{}, err
		}
	}
	return token, nil
}

func (p *Base) Identity(ctx context.Context, token core.RawProviderToken) (core.Identity, error) {
	if p == nil {
		return core.Identity{}, fmt.Errorf("providers: provider is nil")
	}
	if p.descriptor.FetchIdentity == nil {
		return core.Identity{}, nil
	}
	return p.descriptor.FetchIdentity(ctx, p.descriptor.Client.httpDoer(), token)
}

func (p *Base) Normalize(now time.Time, token core.RawProviderToken, identity core.Identity) []core.CredentialSeed {
	if p == nil {
		return nil
	}
	return core.SeedsFromToken(p.descriptor.Product, p.descriptor.Capabilities, token, identity)
}

// DefaultTokenMapper covers the plain OAuth2 token response and carries the
// callback's extra parameters through for vendors that need them later.
func DefaultTokenMapper(payload TokenPayload, event core.CallbackEvent) (core.RawProviderToken, error) {
	token := core.RawProviderToken{
		AccessToken:      payload.AccessToken,
		TokenType:        payload.TokenType,
		RefreshToken:     payload.RefreshToken,
		ExpiresIn:        payload.ExpiresIn,
		RefreshExpiresIn: payload.RefreshExpiresIn,
		Scope:            payload.Scope,
		Raw:              payload.Raw,
	}
	if len(event.Extra) > 0 {
		token.Extra = make(map[string]string, len(event.Extra))
		for key, value := range event.Extra {
			token.Extra[key] = value
		}
	}
	return token, nil
}

var _ core.Provider = (*Base)(nil)
