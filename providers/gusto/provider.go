// Package gusto integrates Gusto OAuth. The external account is the first
// company the authenticating payroll admin manages.
package gusto

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL  = "https://api.gusto.com/oauth/authorize"
	tokenURL = "https://api.gusto.com/oauth/token"
	meURL    = "https://api.gusto.com/v1/me"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "gusto",
		Capabilities: core.ProviderCapabilities{
			HasRefreshToken:   true,
			NeedsIdentityCall: true,
		},
		Client: providers.TokenClient{
			AuthURL:            authURL,
			TokenURL:           tokenURL,
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
			ClientSecretInBody: true,
			RedirectURI:        cfg.RedirectURI,
			HTTPClient:         cfg.HTTPClient,
		},
		FetchIdentity: fetchIdentity,
	})
}

func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	decoded, err := providers.GetJSON(ctx, doer, meURL, token.AccessToken)
	if err != nil {
		return core.Identity{}, err
	}
	email := providers.ReadString(decoded, "email")
	if strings.TrimSpace(email) == "" {
		return core.Identity{}, fmt.Errorf("gusto: me response missing email")
	}

	accountID := ""
	if roles := providers.ReadObject(decoded, "roles"); roles != nil {
		if admin := providers.ReadObject(roles, "payroll_admin"); admin != nil {
			if companies := providers.ReadObjectSlice(admin, "companies"); len(companies) > 0 {
				accountID = providers.ReadString(companies[0], "id")
			}
		}
	}
	if accountID == "" {
		return core.Identity{}, fmt.Errorf("gusto: authenticating user manages no companies")
	}
	return core.Identity{AccountID: accountID, Email: email}, nil
}
