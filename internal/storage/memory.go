package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"lens_gateway/internal/models"
)

// MemoryStore is an in-process provider registry, seeded from a YAML file or
// built directly in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[string]*models.Provider
	enc       *Encryption
}

// NewMemoryStore creates a store holding the given providers
func NewMemoryStore(enc *Encryption, providers ...*models.Provider) *MemoryStore {
	s := &MemoryStore{
		providers: make(map[string]*models.Provider, len(providers)),
		enc:       enc,
	}
	for _, p := range providers {
		s.Put(p)
	}
	return s
}

// Put stores a copy of p, generating an id when it has none
func (s *MemoryStore) Put(p *models.Provider) {
	cp := *p
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.mu.Lock()
	s.providers[cp.ID] = &cp
	s.mu.Unlock()
}

// Replace swaps in the providers held by next
func (s *MemoryStore) Replace(next *MemoryStore) {
	next.mu.RLock()
	providers := make(map[string]*models.Provider, len(next.providers))
	for id, p := range next.providers {
		providers[id] = p
	}
	next.mu.RUnlock()

	s.mu.Lock()
	s.providers = providers
	s.mu.Unlock()
}

// Len returns the number of providers held
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.providers)
}

// GetByID retrieves a provider by ID
func (s *MemoryStore) GetByID(_ context.Context, id string) (*models.Provider, error) {
	s.mu.RLock()
	p, ok := s.providers[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrProviderNotFound
	}
	return reveal(s.enc, p)
}

// List returns all providers ordered by name, then id
func (s *MemoryStore) List(_ context.Context) ([]*models.Provider, error) {
	out := s.Snapshot()
	for i, p := range out {
		revealed, err := reveal(s.enc, p)
		if err != nil {
			return nil, err
		}
		out[i] = revealed
	}
	return out, nil
}

// Snapshot returns copies of all providers ordered by name, then id, with
// credentials exactly as stored.
func (s *MemoryStore) Snapshot() []*models.Provider {
	s.mu.RLock()
	out := make([]*models.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// seedFile is the YAML layout of PROVIDERS_FILE.
type seedFile struct {
	Providers []seedProvider `yaml:"providers"`
}

// seedProvider accepts config and credentials either as a mapping or as a
// JSON string, mirroring the two forms a registry may hold.
type seedProvider struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Status      string `yaml:"status"`
	Config      any    `yaml:"config"`
	Credentials any    `yaml:"credentials"`
}

// LoadMemoryStore reads providers from a YAML file
func LoadMemoryStore(path string, enc *Encryption) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}
	return ParseMemoryStore(data, enc)
}

// ParseMemoryStore builds a store from YAML seed data
func ParseMemoryStore(data []byte, enc *Encryption) (*MemoryStore, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	store := NewMemoryStore(enc)
	seen := make(map[string]bool, len(seed.Providers))

	for i, sp := range seed.Providers {
		if sp.ID != "" && seen[sp.ID] {
			return nil, fmt.Errorf("providers[%d]: duplicate id %q", i, sp.ID)
		}
		seen[sp.ID] = true

		config, err := seedSettings(sp.Config)
		if err != nil {
			return nil, fmt.Errorf("providers[%d].config: %w", i, err)
		}
		credentials, err := seedSettings(sp.Credentials)
		if err != nil {
			return nil, fmt.Errorf("providers[%d].credentials: %w", i, err)
		}

		status := models.ProviderStatus(sp.Status)
		if status == "" {
			status = models.ProviderStatusActive
		}

		store.Put(&models.Provider{
			ID:          sp.ID,
			Name:        sp.Name,
			Type:        models.ProviderType(sp.Type),
			Status:      status,
			Config:      config,
			Credentials: credentials,
		})
	}

	return store, nil
}

func seedSettings(v any) (models.RawSettings, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return models.RawSettings(b), nil
}
