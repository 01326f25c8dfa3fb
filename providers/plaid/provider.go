// Package plaid integrates Plaid Link. Plaid departs from the OAuth2 form
// flow: the callback carries a public token that is swapped via a JSON POST,
// and the exchange yields an item id alongside the access token. Linked items
// always belong to the owning organization, so the tenant domain is fixed at
// wiring time.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const exchangePath = "/item/public_token/exchange"

type Config struct {
	ClientID string
	Secret   string
	// BaseURL selects the Plaid environment (sandbox, development, production).
	BaseURL string
	// OwnerDomain is the tenant domain every linked item belongs to.
	OwnerDomain string
	HTTPClient  providers.HTTPDoer
}

type Provider struct {
	cfg        Config
	httpClient providers.HTTPDoer
}

func New(cfg Config) (*Provider, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.OwnerDomain = strings.TrimSpace(cfg.OwnerDomain)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("plaid: client id is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("plaid: secret is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://production.plaid.com"
	}
	if cfg.OwnerDomain == "" {
		return nil, fmt.Errorf("plaid: owner domain is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{cfg: cfg, httpClient: httpClient}, nil
}

func (p *Provider) Product() string { return "plaid" }

func (p *Provider) Capabilities() core.ProviderCapabilities {
	return core.ProviderCapabilities{NeedsIdentityCall: true}
}

// ConsentURL is empty: Plaid Link runs client side and posts the public
// token straight to the callback.
func (p *Provider) ConsentURL(string) string { return "" }

func (p *Provider) Exchange(ctx context.Context, event core.CallbackEvent) (core.RawProviderToken, error) {
	if p == nil {
		return core.RawProviderToken{}, fmt.Errorf("plaid: provider is nil")
	}
	publicToken := strings.TrimSpace(event.Code)
	if publicToken == "" {
		return core.RawProviderToken{}, fmt.Errorf("plaid: public token is required")
	}

	requestBody, err := json.Marshal(map[string]string{
		"client_id":    p.cfg.ClientID,
		"secret":       p.cfg.Secret,
		"public_token": publicToken,
	})
	if err != nil {
		return core.RawProviderToken{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+exchangePath, bytes.NewReader(requestBody))
	if err != nil {
		return core.RawProviderToken{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return core.RawProviderToken{}, fmt.Errorf("plaid: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if readErr != nil {
		return core.RawProviderToken{}, fmt.Errorf("plaid: read token response: %w", readErr)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.RawProviderToken{}, fmt.Errorf("plaid: decode token response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return core.RawProviderToken{}, fmt.Errorf(
			"plaid: token endpoint error (%d): %s",
			response.StatusCode,
			providers.ReadString(decoded, "error_message"),
		)
	}

	accessToken := providers.ReadString(decoded, "access_token")
	if accessToken == "" {
		return core.RawProviderToken{}, fmt.Errorf("plaid: token endpoint response missing access token")
	}
	return core.RawProviderToken{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ItemID:      providers.ReadString(decoded, "item_id"),
		Raw:         decoded,
	}, nil
}

func (p *Provider) Identity(context.Context, core.RawProviderToken) (core.Identity, error) {
	if p == nil {
		return core.Identity{}, fmt.Errorf("plaid: provider is nil")
	}
	return core.Identity{Domain: p.cfg.OwnerDomain}, nil
}

func (p *Provider) Normalize(now time.Time, token core.RawProviderToken, identity core.Identity) []core.CredentialSeed {
	return core.SeedsFromToken(p.Product(), p.Capabilities(), token, identity)
}

var _ core.Provider = (*Provider)(nil)
