// Package slack integrates Slack OAuth v2. Installations are team-scoped and
// yield two credentials: the bot token and the authorizing user's token. The
// incoming-webhook URL granted at install time becomes the endpoint.
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tokengate/core"
	"github.com/goliatone/go-tokengate/providers"
)

const (
	authURL     = "https://slack.com/oauth/v2/authorize"
	tokenURL    = "https://slack.com/api/oauth.v2.access"
	identityURL = "https://slack.com/api/users.identity"
)

func New(cfg providers.Settings) (*providers.Base, error) {
	return providers.New(providers.Descriptor{
		Product: "slack",
		Capabilities: core.ProviderCapabilities{
			NeedsIdentityCall: true,
			TeamScoped:        true,
			MultiCredential:   true,
		},
		Client: providers.TokenClient{
			AuthURL:            authURL,
			TokenURL:           tokenURL,
			ClientID:           cfg.ClientID,
			ClientSecret:       cfg.ClientSecret,
			ClientSecretInBody: true,
			RedirectURI:        cfg.RedirectURI,
			Scopes:             []string{"incoming-webhook", "team:read"},
			HTTPClient:         cfg.HTTPClient,
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
	if token.TokenType == "" {
		token.TokenType = "bot"
	}

	if team := providers.ReadObject(payload.Raw, "team"); team != nil {
		token.TeamID = providers.ReadString(team, "id")
		token.TeamName = providers.ReadString(team, "name")
	}
	if strings.TrimSpace(token.TeamID) == "" {
		return core.RawProviderToken{}, fmt.Errorf("slack: token response missing team id")
	}
	if webhook := providers.ReadObject(payload.Raw, "incoming_webhook"); webhook != nil {
		token.WebhookURL = providers.ReadString(webhook, "url")
	}
	if authedUser := providers.ReadObject(payload.Raw, "authed_user"); authedUser != nil {
		if accessToken := providers.ReadString(authedUser, "access_token"); accessToken != "" {
			tokenType := providers.ReadString(authedUser, "token_type")
			if tokenType == "" {
				tokenType = "user"
			}
			token.AuthedUser = &core.AuthedUserToken{
				AccessToken: accessToken,
				TokenType:   tokenType,
			}
		}
	}
	return token, nil
}

// fetchIdentity resolves the authorizing user's email, which carries the
// tenant domain. The user token is required for users.identity; the bot token
// cannot see it.
func fetchIdentity(ctx context.Context, doer providers.HTTPDoer, token core.RawProviderToken) (core.Identity, error) {
	accessToken := token.AccessToken
	if token.AuthedUser != nil && strings.TrimSpace(token.AuthedUser.AccessToken) != "" {
		accessToken = token.AuthedUser.AccessToken
	}
	decoded, err := providers.GetJSON(ctx, doer, identityURL, accessToken)
	if err != nil {
		return core.Identity{}, err
	}
	if ok, found := decoded["ok"].(bool); found && !ok {
		return core.Identity{}, fmt.Errorf("slack: users.identity failed: %s", providers.ReadString(decoded, "error"))
	}
	user := providers.ReadObject(decoded, "user")
	if user == nil {
		return core.Identity{}, fmt.Errorf("slack: users.identity response missing user")
	}
	email := providers.ReadString(user, "email")
	if strings.TrimSpace(email) == "" {
		return core.Identity{}, fmt.Errorf("slack: users.identity response missing email")
	}
	return core.Identity{
		AccountID: providers.ReadString(user, "id"),
		Email:     email,
		TeamName:  token.TeamName,
	}, nil
}
