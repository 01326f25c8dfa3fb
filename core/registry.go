package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	product := strings.TrimSpace(strings.ToLower(provider.Product()))
	if product == "" {
		return fmt.Errorf("core: provider product is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[product]; exists {
		return fmt.Errorf("core: provider already registered: %s", product)
	}
	r.providers[product] = provider
	return nil
}

func (r *ProviderRegistry) Get(product string) (Provider, bool) {
	id := strings.TrimSpace(strings.ToLower(product))
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	provider, ok := r.providers[id]
	r.mu.RUnlock()
	return provider, ok
}

func (r *ProviderRegistry) Products() []string {
	r.mu.RLock()
	products := make([]string, 0, len(r.providers))
	for product := range r.providers {
		products = append(products, product)
	}
	r.mu.RUnlock()
	sort.Strings(products)
	return products
}
