package core

import (
	"context"
	"testing"
	"time"
)

type stubProvider struct {
	product string
	caps    ProviderCapabilities

	consentURL string

	exchangeToken RawProviderToken
	exchangeErr   error

	identity    Identity
	identityErr error
}

func (p *stubProvider) Product() string                    { return p.product }
func (p *stubProvider) Capabilities() ProviderCapabilities { return p.caps }
func (p *stubProvider) ConsentURL(state string) string {
	return p.consentURL + "?state=" + state
}

func (p *stubProvider) Exchange(context.Context, CallbackEvent) (RawProviderToken, error) {
	return p.exchangeToken, p.exchangeErr
}

func (p *stubProvider) Identity(context.Context, RawProviderToken) (Identity, error) {
	return p.identity, p.identityErr
}

func (p *stubProvider) Normalize(now time.Time, token RawProviderToken, identity Identity) []CredentialSeed {
	return SeedsFromToken(p.product, p.caps, token, identity)
}

func TestProviderRegistryRegisterAndGet(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(&stubProvider{product: "Zoom"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := registry.Get("zoom"); !ok {
		t.Fatalf("expected lookup by lowercased product to succeed")
	}
	if _, ok := registry.Get(" ZOOM "); !ok {
		t.Fatalf("expected case-insensitive trimmed lookup to succeed")
	}
	if _, ok := registry.Get("github"); ok {
		t.Fatalf("expected miss for unregistered product")
	}
}

func TestProviderRegistryRejectsDuplicates(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(&stubProvider{product: "slack"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(&stubProvider{product: "SLACK"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestProviderRegistryRejectsInvalidProviders(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil provider to be rejected")
	}
	if err := registry.Register(&stubProvider{product: "  "}); err == nil {
		t.Fatalf("expected empty product to be rejected")
	}
}

func TestProviderRegistryProductsSorted(t *testing.T) {
	registry := NewProviderRegistry()
	for _, product := range []string{"zoom", "github", "mailchimp"} {
		if err := registry.Register(&stubProvider{product: product}); err != nil {
			t.Fatalf("Register(%s) failed: %v", product, err)
		}
	}
	products := registry.Products()
	want := []string{"github", "mailchimp", "zoom"}
	if len(products) != len(want) {
		t.Fatalf("expected %d products, got %d", len(want), len(products))
	}
	for i := range want {
		if products[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, products)
		}
	}
}
