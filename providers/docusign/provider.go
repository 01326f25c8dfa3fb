// Package docusign integrates DocuSign OAuth.
package docusign

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL     = "https://account.docusign.com/oauth/auth"
	tokenURL    = "https://account.docusign.com/oauth/token"
	userinfoURL = "https://account.docusign.com/oauth/userinfo"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "docusign",
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
			Scopes:       []string{"signature"},
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
		return core.Identity{}, fmt.Errorf("docusign: userinfo response missing email")
	}
	accountID := ""
	if accounts := providers.ReadObjectSlice(decoded, "accounts"); len(accounts) > 0 {
		accountID = providers.ReadString(accounts[0], "account_id")
	}
	return core.Identity{AccountID: accountID, Email: email}, nil
}
