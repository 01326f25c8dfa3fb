// Package mailchimp integrates Mailchimp OAuth. The token endpoint does not
// name the datacenter-scoped API endpoint, so the exchange is followed by a
// metadata call that does.
package mailchimp

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL     = "https://login.mailchimp.com/oauth2/authorize"
	tokenURL    = "https://login.mailchimp.com/oauth2/token"
	metadataURL = "https://login.mailchimp.com/oauth2/metadata"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "mailchimp",
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
			HTTPClient:         cfg.HTTPClient,
		},
		EnrichToken:   enrichFromMetadata,
		FetchIdentity: identityFromToken,
	})
}

func enrichFromMetadata(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.RawProviderToken, error) {
	decoded, err := providers.GetJSON(ctx, doer, metadataURL, token.AccessToken)
	if err != nil {
		return core.RawProviderToken{}, fmt.Errorf("mailchimp: fetch account metadata: %w", err)
	}
	endpoint := providers.ReadString(decoded, "api_endpoint")
	if strings.TrimSpace(endpoint) == "" {
		return core.RawProviderToken{}, fmt.Errorf("mailchimp: metadata response missing api_endpoint")
	}
	token.Endpoint = endpoint

	if token.Extra == nil {
		token.Extra = map[string]string{}
	}
	token.Extra["account_name"] = providers.ReadString(decoded, "accountname")
	token.Extra["user_id"] = providers.ReadString(decoded, "user_id")
	if login := providers.ReadObject(decoded, "login"); login != nil {
		token.Extra["email"] = providers.ReadString(login, "email")
	}
	return token, nil
}

func identityFromToken(_ context.Context, _ providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	email := strings.TrimSpace(token.Extra["email"])
	if email == "" {
		return core.Identity{}, fmt.Errorf("mailchimp: metadata carried no login email")
	}
	return core.Identity{
		AccountID: token.Extra["user_id"],
		Email:     email,
	}, nil
}
