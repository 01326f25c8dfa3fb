package providers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

type fakeDoer struct {
	requests  []*http.Request
	responses []*http.Response
	err       error
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.responses) == 0 {
		return jsonResponse(http.StatusOK, `{}`), nil
	}
	response := d.responses[0]
	d.responses = d.responses[1:]
	return response, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func formResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestConsentURL(t *testing.T) {
	client := &TokenClient{
		AuthURL:     "https://example.com/oauth/authorize",
		TokenURL:    "https://example.com/oauth/token",
		ClientID:    "client-1",
		RedirectURI: "https://gateway.internal/callback",
		Scopes:      []string{"read", "write"},
	}
	consent := client.ConsentURL("state-1")

	parsed, err := url.Parse(consent)
	if err != nil {
		t.Fatalf("consent url did not parse: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("expected response_type=code, got %q", query.Get("response_type"))
	}
	if query.Get("client_id") != "client-1" {
		t.Fatalf("unexpected client_id %q", query.Get("client_id"))
	}
	if query.Get("scope") != "read write" {
		t.Fatalf("unexpected scope %q", query.Get("scope"))
	}
	if query.Get("state") != "state-1" {
		t.Fatalf("unexpected state %q", query.Get("state"))
	}
}

func TestExchangeCodeJSON(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusOK, `{
		"access_token": "token-1",
		"token_type": "Bearer",
		"refresh_token": "refresh-1",
		"expires_in": 3600,
		"x_refresh_token_expires_in": 86400
	}`)}}
	client := &TokenClient{
		TokenURL:     "https://example.com/oauth/token",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		HTTPClient:   doer,
	}

	payload, err := client.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if payload.AccessToken != "token-1" {
		t.Fatalf("unexpected access token %q", payload.AccessToken)
	}
	if payload.ExpiresIn != 3600 || payload.RefreshExpiresIn != 86400 {
		t.Fatalf("unexpected expiries: %d / %d", payload.ExpiresIn, payload.RefreshExpiresIn)
	}

	req := doer.requests[0]
	if username, password, ok := req.BasicAuth(); !ok || username != "client-1" || password != "secret-1" {
		t.Fatalf("expected basic auth with client credentials")
	}
	body, _ := io.ReadAll(req.Body)
	form, _ := url.ParseQuery(string(body))
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "code-1" {
		t.Fatalf("unexpected form body %q", string(body))
	}
	if form.Get("client_secret") != "" {
		t.Fatalf("secret must not travel in the body under basic auth")
	}
}

func TestExchangeCodeSecretInBody(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusOK, `{"access_token":"t"}`)}}
	client := &TokenClient{
		TokenURL:           "https://example.com/oauth/token",
		ClientID:           "client-1",
		ClientSecret:       "secret-1",
		ClientSecretInBody: true,
		HTTPClient:         doer,
	}
	if _, err := client.ExchangeCode(context.Background(), "code-1"); err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	req := doer.requests[0]
	if _, _, ok := req.BasicAuth(); ok {
		t.Fatalf("expected no basic auth when the secret travels in the body")
	}
	body, _ := io.ReadAll(req.Body)
	form, _ := url.ParseQuery(string(body))
	if form.Get("client_secret") != "secret-1" {
		t.Fatalf("expected client_secret in the body, got %q", string(body))
	}
}

func TestExchangeCodeFormEncodedResponse(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{formResponse(http.StatusOK,
		"access_token=token-2&token_type=bearer&scope=read",
	)}}
	client := &TokenClient{TokenURL: "https://example.com/oauth/token", ClientID: "c", HTTPClient: doer}

	payload, err := client.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if payload.AccessToken != "token-2" || payload.Scope != "read" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestExchangeCodeErrorPayload(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusBadRequest,
		`{"error":"invalid_grant","error_description":"code expired"}`,
	)}}
	client := &TokenClient{TokenURL: "https://example.com/oauth/token", ClientID: "c", HTTPClient: doer}

	_, err := client.ExchangeCode(context.Background(), "code-1")
	if err == nil || !strings.Contains(err.Error(), "code expired") {
		t.Fatalf("expected error description to surface, got %v", err)
	}
}

func TestExchangeCodeOkFalse(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusOK,
		`{"ok":false,"error":"invalid_code"}`,
	)}}
	client := &TokenClient{TokenURL: "https://example.com/oauth/token", ClientID: "c", HTTPClient: doer}

	if _, err := client.ExchangeCode(context.Background(), "code-1"); err == nil {
		t.Fatalf("expected ok=false payload to fail the exchange")
	}
}

func TestExchangeCodeMissingAccessToken(t *testing.T) {
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusOK, `{"token_type":"bearer"}`)}}
	client := &TokenClient{TokenURL: "https://example.com/oauth/token", ClientID: "c", HTTPClient: doer}

	if _, err := client.ExchangeCode(context.Background(), "code-1"); err == nil {
		t.Fatalf("expected missing access token to fail the exchange")
	}
}

func TestReadHelpers(t *testing.T) {
	decoded := map[string]any{
		"s":      " value ",
		"n":      float64(42),
		"nested": map[string]any{"k": "v"},
		"items":  []any{map[string]any{"id": "one"}, "skipped"},
	}
	if got := ReadString(decoded, "s"); got != "value" {
		t.Fatalf("ReadString = %q", got)
	}
	if got := ReadInt64(decoded, "n"); got != 42 {
		t.Fatalf("ReadInt64 = %d", got)
	}
	if got := ReadString(decoded, "n"); got != "42" {
		t.Fatalf("ReadString over number = %q", got)
	}
	if nested := ReadObject(decoded, "nested"); nested == nil || nested["k"] != "v" {
		t.Fatalf("ReadObject = %v", nested)
	}
	if items := ReadObjectSlice(decoded, "items"); len(items) != 1 || items[0]["id"] != "one" {
		t.Fatalf("ReadObjectSlice = %v", items)
	}
}
