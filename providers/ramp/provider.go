// Package ramp integrates Ramp OAuth. Ramp's API has no "current user" call,
// so the identity comes from the first user in the business.
package ramp

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL  = "https://app.ramp.com/v1/authorize"
	tokenURL = "https://api.ramp.com/developer/v1/token"
	usersURL = "https://api.ramp.com/developer/v1/users"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "ramp",
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
			Scopes:       []string{"users:read", "transactions:read"},
			HTTPClient:   cfg.HTTPClient,
		},
		FetchIdentity: fetchIdentity,
	})
}

func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	decoded, err := providers.GetJSON(ctx, doer, usersURL, token.AccessToken)
	if err != nil {
		return core.Identity{}, err
	}
	users := providers.ReadObjectSlice(decoded, "data")
	if len(users) == 0 {
		return core.Identity{}, fmt.Errorf("ramp: business has no users")
	}
	email := providers.ReadString(users[0], "email")
	if strings.TrimSpace(email) == "" {
		return core.Identity{}, fmt.Errorf("ramp: user record missing email")
	}
	return core.Identity{
		AccountID: providers.ReadString(users[0], "business_id"),
		Email:     email,
	}, nil
}
