// Package shipbob integrates ShipBob OAuth.
package shipbob

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL     = "https://auth.shipbob.com/connect/authorize"
	tokenURL    = "https://auth.shipbob.com/connect/token"
	userinfoURL = "https://auth.shipbob.com/connect/userinfo"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "shipbob",
		Capabilities: core.ProviderCapabilities{
			HasRefreshToken:   true,
			NeedsIdentityCall: true,
		},
		Client: providers.TokenClient{
			AuthURL:      authURL,
			TokenURL:     tokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       []string{"openid", "email", "orders_read", "inventory_read", "offline_access"},
			HTTPClient:   cfg.HTTPClient,
		},
		FetchIdentity: fetchIdentity,
	})
}

func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	decoded, err := providers.GetJSON(ctx, doer, userinfoURL, token.AccessToken)
	if err != nil {
		return core.Identity{}, err
	}
	email := providers.ReadString(decoded, "email")
	if strings.TrimSpace(email) == "" {
		return core.Identity{}, fmt.Errorf("shipbob: userinfo response missing email")
	}
	return core.Identity{
		AccountID: providers.ReadString(decoded, "sub"),
		Email:     email,
	}, nil
}
