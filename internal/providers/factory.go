package providers

import (
	"net/http"
	"sync"

	"lens_gateway/internal/models"
)

// AdapterCreator builds an adapter around the shared HTTP client
type AdapterCreator func(client *http.Client) Adapter

// Table maps provider types to adapters
type Table struct {
	mu       sync.RWMutex
	client   *http.Client
	adapters map[models.ProviderType]Adapter
}

// NewTable creates a table with every built-in vendor registered. A nil
// client selects NewHTTPClient(0).
func NewTable(client *http.Client) *Table {
	if client == nil {
		client = NewHTTPClient(0)
	}

	t := &Table{
		client:   client,
		adapters: make(map[models.ProviderType]Adapter),
	}

	t.Register(models.ProviderTypeOpenAI, NewOpenAIAdapter)
	t.Register(models.ProviderTypeAzureOpenAI, NewAzureOpenAIAdapter)
	t.Register(models.ProviderTypeAnthropic, NewAnthropicAdapter)
	t.Register(models.ProviderTypeGoogle, NewGoogleAdapter)
	t.Register(models.ProviderTypeXAI, NewXAIAdapter)
	t.Register(models.ProviderTypeMistral, NewMistralAdapter)

	return t
}

// Register installs (or replaces) the adapter for a provider type
func (t *Table) Register(providerType models.ProviderType, creator AdapterCreator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.adapters[providerType] = creator(t.client)
}

// Lookup returns the adapter for a provider type, or *UnsupportedTypeError
func (t *Table) Lookup(providerType models.ProviderType) (Adapter, error) {
	t.mu.RLock()
	adapter, ok := t.adapters[providerType]
	t.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedTypeError{Type: providerType}
	}
	return adapter, nil
}
