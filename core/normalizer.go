package core

import (
	"strings"
	"time"
)

// SeedsFromToken builds the canonical credential seed(s) for one provider
// callback, driven by the provider's capability set. Most providers yield
// exactly one seed; a multi-credential provider yields a second one for the
// delegated end-user token it carries alongside the service-level token.
func SeedsFromToken(product string, caps ProviderCapabilities, token RawProviderToken, identity Identity) []CredentialSeed {
	product = strings.TrimSpace(strings.ToLower(product))

	endpoint := strings.TrimSpace(token.Endpoint)
	if caps.TeamScoped && strings.TrimSpace(token.WebhookURL) != "" {
		endpoint = strings.TrimSpace(token.WebhookURL)
	}

	externalAccountID := strings.TrimSpace(identity.AccountID)
	itemID := strings.TrimSpace(token.ItemID)
	if caps.TeamScoped {
		externalAccountID = strings.TrimSpace(token.TeamID)
		itemID = strings.TrimSpace(token.TeamName)
	}

	seed := CredentialSeed{
		Product:           product,
		TokenType:         NormalizeTokenType(token.TokenType),
		AccessToken:       strings.TrimSpace(token.AccessToken),
		ExpiresIn:         token.ExpiresIn,
		Endpoint:          endpoint,
		ExternalAccountID: externalAccountID,
		ItemID:            itemID,
		UserEmail:         strings.TrimSpace(identity.Email),
	}
	if caps.HasRefreshToken {
		seed.RefreshToken = strings.TrimSpace(token.RefreshToken)
	}
	if caps.HasRefreshExpiry {
		seed.RefreshExpiresIn = token.RefreshExpiresIn
	}

	seeds := []CredentialSeed{seed}
	if caps.MultiCredential && token.AuthedUser != nil && strings.TrimSpace(token.AuthedUser.AccessToken) != "" {
		userSeed := seed
		userSeed.TokenType = NormalizeTokenType(token.AuthedUser.TokenType)
		userSeed.AccessToken = strings.TrimSpace(token.AuthedUser.AccessToken)
		userSeed.RefreshToken = ""
		userSeed.ExpiresIn = 0
		userSeed.RefreshExpiresIn = 0
		seeds = append(seeds, userSeed)
	}
	return seeds
}

// Materialize stamps a seed with the tenant, managing organization, and
// timestamps, converting relative expiries into absolute instants. A zero
// relative expiry means "absent/never" and leaves the absolute field nil.
func Materialize(seed CredentialSeed, tenant Tenant, managingOrgID int64, now time.Time) Credential {
	now = now.UTC()
	credential := Credential{
		ManagingOrgID:     managingOrgID,
		Product:           strings.TrimSpace(strings.ToLower(seed.Product)),
		TenantID:          tenant.ID,
		TokenType:         NormalizeTokenType(seed.TokenType),
		AccessToken:       seed.AccessToken,
		RefreshToken:      seed.RefreshToken,
		ExpiresIn:         seed.ExpiresIn,
		RefreshExpiresIn:  seed.RefreshExpiresIn,
		Endpoint:          seed.Endpoint,
		ExternalAccountID: seed.ExternalAccountID,
		ItemID:            seed.ItemID,
		UserEmail:         seed.UserEmail,
		LastUpdatedAt:     now,
	}
	if seed.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(seed.ExpiresIn) * time.Second)
		credential.ExpiresAt = &expiresAt
	}
	if seed.RefreshExpiresIn > 0 {
		refreshExpiresAt := now.Add(time.Duration(seed.RefreshExpiresIn) * time.Second)
		credential.RefreshExpiresAt = &refreshExpiresAt
	}
	return credential
}

func NormalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}
