// Package zendesk integrates Zendesk OAuth. Endpoints are subdomain-scoped.
package zendesk

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

type Config struct {
	providers.Settings
	// Subdomain is the account's Zendesk subdomain (<subdomain>.zendesk.com).
	Subdomain string
}

func New(cfg Config) (*providers.Base, error) {
	subdomain := strings.TrimSpace(strings.ToLower(cfg.Subdomain))
	if subdomain == "" {
		return nil, fmt.Errorf("zendesk: subdomain is required")
	}
	base := "https://" + subdomain + ".zendesk.com"
	meURL := base + "/api/v2/users/me.json"

	return providers.New(providers.Descriptor{
		Product: "zendesk",
		Capabilities: core.ProviderCapabilities{
			NeedsIdentityCall: true,
		},
		Client: providers.TokenClient{
			AuthURL:            base + "/oauth/authorizations/new",
			TokenURL:           base + "/oauth/tokens",
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
			ClientSecretInBody: true,
			RedirectURI:        cfg.RedirectURI,
			Scopes:             []string{"read"},
			HTTPClient:         cfg.HTTPClient,
		},
		FetchIdentity: func(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
			decoded, err := providers.GetJSON(ctx, doer, meURL, token.AccessToken)
			if err != nil {
				return core.Identity{}, err
			}
			user := providers.ReadObject(decoded, "user")
			if user == nil {
				return core.Identity{}, fmt.Errorf("zendesk: me response missing user")
			}
			email := providers.ReadString(user, "email")
			if strings.TrimSpace(email) == "" {
				return core.Identity{}, fmt.Errorf("zendesk: user record missing email")
			}
			return core.Identity{
				AccountID: providers.ReadString(user, "id"),
				Email:     email,
			}, nil
		},
	})
}
