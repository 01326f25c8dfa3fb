// Package github integrates GitHub OAuth.
package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL  = "https://github.com/login/oauth/authorize"
	tokenURL = "https://github.com/login/oauth/access_token"
	userURL  = "https://api.github.com/user"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "github",
		Capabilities: core.ProviderCapabilities{
			NeedsIdentityCall: true,
		},
		Client: providers.TokenClient{
			AuthURL:            authURL,
			TokenURL:           tokenURL,
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
			ClientSecretInBody: true,
			RedirectURI:        cfg.RedirectURI,
			Scopes:             []string{"read:user", "user:email"},
			HTTPClient:         cfg.HTTPClient,
		},
		FetchIdentity: fetchIdentity,
	})
}

func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	decoded, err := providers.GetJSON(ctx, doer, userURL, token.AccessToken)
	if err != nil {
		return core.Identity{}, err
	}
	email := providers.ReadString(decoded, "email")
	if strings.TrimSpace(email) == "" {
		return core.Identity{}, fmt.Errorf("github: user profile has no public email")
	}
	return core.Identity{
		AccountID: providers.ReadString(decoded, "id"),
		Email:     email,
	}, nil
}
