package plaid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-tokengate/core"
)

type scriptedDoer struct {
	response *http.Response
	request  *http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.request = req
	return d.response, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestExchangeSwapsPublicToken(t *testing.T) {
	doer := &scriptedDoer{response: jsonResponse(http.StatusOK,
		`{"access_token":"access-prod-1","item_id":"item-9","request_id":"r"}`,
	)}
	provider, err := New(Config{
		ClientID:    "client-1",
		Secret:      "secret-1",
		OwnerDomain: "acme.com",
		HTTPClient:  doer,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	token, err := provider.Exchange(context.Background(), core.CallbackEvent{Code: "public-sandbox-1"})
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if token.AccessToken != "access-prod-1" {
		t.Fatalf("unexpected access token %q", token.AccessToken)
	}
	if token.ItemID != "item-9" {
		t.Fatalf("item id not mapped: %q", token.ItemID)
	}

	body, _ := io.ReadAll(doer.request.Body)
	var sent map[string]string
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("request body was not JSON: %v", err)
	}
	if sent["public_token"] != "public-sandbox-1" || sent["client_id"] != "client-1" || sent["secret"] != "secret-1" {
		t.Fatalf("unexpected request body %v", sent)
	}
}

func TestExchangeSurfacesAPIError(t *testing.T) {
	doer := &scriptedDoer{response: jsonResponse(http.StatusBadRequest,
		`{"error_code":"INVALID_PUBLIC_TOKEN","error_message":"provided public token is expired"}`,
	)}
	provider, err := New(Config{ClientID: "c", Secret: "s", OwnerDomain: "acme.com", HTTPClient: doer})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = provider.Exchange(context.Background(), core.CallbackEvent{Code: "public-1"})
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected API error message to surface, got %v", err)
	}
}

func TestIdentityIsFixedOwnerDomain(t *testing.T) {
	provider, err := New(Config{ClientID: "c", Secret: "s", OwnerDomain: "acme.com"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	identity, err := provider.Identity(context.Background(), core.RawProviderToken{})
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if identity.Domain != "acme.com" {
		t.Fatalf("unexpected domain %q", identity.Domain)
	}
}

func TestNormalizeCarriesItemID(t *testing.T) {
	provider, err := New(Config{ClientID: "c", Secret: "s", OwnerDomain: "acme.com"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	seeds := provider.Normalize(time.Now().UTC(),
		core.RawProviderToken{AccessToken: "a", ItemID: "item-9"},
		core.Identity{Domain: "acme.com"},
	)
	if len(seeds) != 1 || seeds[0].ItemID != "item-9" {
		t.Fatalf("unexpected seeds %+v", seeds)
	}
}

func TestNewRejectsMissingOwnerDomain(t *testing.T) {
	if _, err := New(Config{ClientID: "c", Secret: "s"}); err == nil {
		t.Fatalf("expected missing owner domain to be rejected")
	}
}
