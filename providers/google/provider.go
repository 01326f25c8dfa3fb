// Package google integrates Google Workspace OAuth.
package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	tokenURL    = "https://oauth2.googleapis.com/token"
	userinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "google",
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
			Scopes:             []string{"openid", "email", "profile"},
			HTTPClient:         cfg.HTTPClient,
		},
		FetchIdentity: fetchIdentity,
	})
}

func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	decoded, err := providers.GetJSON(ctx, doer, userinfoURL, token.AccessToken)
	if err != nil {
		return core.Identity{}, err
	}
	identity := core.Identity{
		AccountID: providers.ReadString(decoded, "sub"),
		Email:     providers.ReadString(decoded, "email"),
		// Workspace accounts report the hosted domain directly.
		Domain: providers.ReadString(decoded, "hd"),
	}
	if strings.TrimSpace(identity.Email) == "" && strings.TrimSpace(identity.Domain) == "" {
		return core.Identity{}, fmt.Errorf("google: userinfo response missing email and hosted domain")
	}
	return identity, nil
}
