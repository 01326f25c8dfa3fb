// Package quickbooks integrates Intuit QuickBooks OAuth. The company (realm)
// id arrives as a callback query parameter, not in the token response, and
// refresh tokens carry their own expiry.
package quickbooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL     = "https://appcenter.intuit.com/connect/oauth2"
	tokenURL    = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	userinfoURL = "https://accounts.platform.intuit.com/v1/openid_connect/userinfo"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "quickbooks",
		Capabilities: core.ProviderCapabilities{
			HasRefreshToken:   true,
			HasRefreshExpiry:  true,
			NeedsIdentityCall: true,
		},
		Client: providers.TokenClient{
			AuthURL:      authURL,
			TokenURL:     tokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			Scopes:       []string{"com.intuit.quickbooks.accounting", "openid", "email"},
			HTTPClient:   cfg.HTTPClient,
		},
		MapToken:      mapToken,
		FetchIdentity: fetchIdentity,
	})
}

func mapToken(payload providers.TokenPayload, event core.CallbackEvent) (core.RawProviderToken, error) {
	token, err := providers.DefaultTokenMapper(payload, event)
	if err != nil {
		return core.RawProviderToken{}, err
	}
	if strings.TrimSpace(event.Extra["realmId"]) == "" {
		return core.RawProviderToken{}, fmt.Errorf("quickbooks: callback missing realmId")
	}
	return token, nil
}

func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	decoded, err := providers.GetJSON(ctx, doer, userinfoURL, token.AccessToken)
	if err != nil {
		return core.Identity{}, err
	}
	email := providers.ReadString(decoded, "email")
	if strings.TrimSpace(email) == "" {
		return core.Identity{}, fmt.Errorf("quickbooks: userinfo response missing email")
	}
	return core.Identity{
		AccountID: token.Extra["realmId"],
		Email:     email,
	}, nil
}
