package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxResponseBodyBytes       = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenClient talks to one provider's OAuth2 endpoints: consent-URL issuance
// and the authorization-code exchange. Client secrets travel via basic auth
// unless the provider insists on secret-in-body.
type TokenClient struct {
	AuthURL            string
	TokenURL           string
	ClientID           string
	ClientSecret       string
	ClientSecretInBody bool
	RedirectURI        string
	Scopes             []string
	RequestTimeout     time.Duration
	HTTPClient         HTTPDoer
}

// TokenPayload is the decoded token-endpoint response. Raw keeps every field
// the endpoint returned so provider-specific mappers can pick out their own
// shapes (nested team blocks, webhook URLs, realm ids).
type TokenPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	RefreshExpiresIn int64
	ErrorCode        string
	ErrorDescription string
	Raw              map[string]any
}

func (c *TokenClient) httpDoer() HTTPDoer {
	if c != nil && c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := defaultTokenRequestTimeout
	if c != nil && c.RequestTimeout > 0 {
		timeout = c.RequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

// ConsentURL builds the provider consent redirect for one state token.
func (c *TokenClient) ConsentURL(state string) string {
	if c == nil || strings.TrimSpace(c.AuthURL) == "" {
		return ""
	}
	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.ClientID)
	if redirectURI := strings.TrimSpace(c.RedirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	if len(c.Scopes) > 0 {
		values.Set("scope", strings.Join(c.Scopes, " "))
	}
	if state = strings.TrimSpace(state); state != "" {
		values.Set("state", state)
	}

	authURL := strings.TrimSpace(c.AuthURL)
	if strings.Contains(authURL, "?") {
		return authURL + "&" + values.Encode()
	}
	return authURL + "?" + values.Encode()
}

// ExchangeCode redeems an authorization code at the token endpoint.
func (c *TokenClient) ExchangeCode(ctx context.Context, code string) (TokenPayload, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	if c != nil && strings.TrimSpace(c.RedirectURI) != "" {
		form.Set("redirect_uri", strings.TrimSpace(c.RedirectURI))
	}
	return c.fetchToken(ctx, form)
}

func (c *TokenClient) fetchToken(ctx context.Context, form url.Values) (TokenPayload, error) {
	if c == nil {
		return TokenPayload{}, fmt.Errorf("providers: token client is nil")
	}
	if strings.TrimSpace(c.TokenURL) == "" {
		return TokenPayload{}, fmt.Errorf("providers: token url is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", c.ClientID)
	if c.ClientSecretInBody && strings.TrimSpace(c.ClientSecret) != "" {
		values.Set("client_secret", c.ClientSecret)
	}

	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		strings.TrimSpace(c.TokenURL),
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return TokenPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !c.ClientSecretInBody && strings.TrimSpace(c.ClientSecret) != "" {
		httpReq.SetBasicAuth(c.ClientID, c.ClientSecret)
	}

	response, err := c.httpDoer().Do(httpReq)
	if err != nil {
		return TokenPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return TokenPayload{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBodyBytes {
		return TokenPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return TokenPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return TokenPayload{}, fmt.Errorf(
			"providers: token endpoint error (%d): %s",
			response.StatusCode,
			describeTokenError(payload),
		)
	}
	if payload.ErrorCode != "" {
		return TokenPayload{}, fmt.Errorf("providers: token endpoint error: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return TokenPayload{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return payload, nil
}

func describeTokenError(payload TokenPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (TokenPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (TokenPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return TokenPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return TokenPayload{}, err
	}
	payload := TokenPayload{
		AccessToken:      ReadString(decoded, "access_token"),
		TokenType:        ReadString(decoded, "token_type"),
		RefreshToken:     ReadString(decoded, "refresh_token"),
		Scope:            ReadString(decoded, "scope"),
		ExpiresIn:        ReadInt64(decoded, "expires_in"),
		RefreshExpiresIn: ReadInt64(decoded, "x_refresh_token_expires_in"),
		ErrorCode:        ReadString(decoded, "error"),
		ErrorDescription: ReadString(decoded, "error_description"),
		Raw:              decoded,
	}
	// Some providers signal failure with ok=false instead of an error field.
	if value, found := decoded["ok"]; found {
		if ok, isBool := value.(bool); isBool && !ok && payload.ErrorCode == "" {
			payload.ErrorCode = ReadString(decoded, "error")
			if payload.ErrorCode == "" {
				payload.ErrorCode = "provider rejected the exchange"
			}
		}
	}
	return payload, nil
}

func parseTokenPayloadForm(body []byte) (TokenPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return TokenPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return TokenPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	raw := map[string]any{}
	for key := range values {
		raw[key] = values.Get(key)
	}
	return TokenPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
		Raw:              raw,
	}, nil
}

// ReadString pulls a trimmed string value out of a decoded JSON object.
func ReadString(decoded map[string]any, key string) string {
	if len(decoded) == 0 {
		return ""
	}
	return readAnyString(decoded[key])
}

// ReadInt64 pulls an integer value out of a decoded JSON object, tolerating
// the float/number/string shapes providers actually return.
func ReadInt64(decoded map[string]any, key string) int64 {
	if len(decoded) == 0 {
		return 0
	}
	return readAnyInt64(decoded[key])
}

// ReadObject pulls a nested JSON object out of a decoded payload.
func ReadObject(decoded map[string]any, key string) map[string]any {
	if len(decoded) == 0 {
		return nil
	}
	if nested, ok := decoded[key].(map[string]any); ok {
		return nested
	}
	return nil
}

// ReadObjectSlice pulls a list of JSON objects out of a decoded payload.
func ReadObjectSlice(decoded map[string]any, key string) []map[string]any {
	if len(decoded) == 0 {
		return nil
	}
	items, ok := decoded[key].([]any)
	if !ok {
		return nil
	}
	objects := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if object, isObject := item.(map[string]any); isObject {
			objects = append(objects, object)
		}
	}
	return objects
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
