package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"lens_gateway/internal/logging"
	"lens_gateway/internal/models"
	"lens_gateway/internal/providers"
)

// stubAdapter answers every call with a canned response and records what it
// was asked.
type stubAdapter struct {
	providerType models.ProviderType
	response     *providers.Response
	connection   *providers.ConnectionResult
	err          error
	advance      func() // called during each request, e.g. to move a clock

	mu       sync.Mutex
	requests []providers.Request
	tests    int
}

func (s *stubAdapter) Type() models.ProviderType { return s.providerType }

func (s *stubAdapter) DefaultModel(providers.Settings) string { return "stub-default" }

func (s *stubAdapter) Execute(_ context.Context, req providers.Request, _ providers.Settings) (*providers.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.advance != nil {
		s.advance()
	}
	if s.err != nil {
		return nil, s.err
	}
	resp := *s.response
	return &resp, nil
}

func (s *stubAdapter) TestConnection(context.Context, providers.Settings) (*providers.ConnectionResult, error) {
	s.mu.Lock()
	s.tests++
	s.mu.Unlock()
	if s.advance != nil {
		s.advance()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.connection, nil
}

func (s *stubAdapter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests) + s.tests
}

// stubSource serves one adapter for every known provider type.
type stubSource struct {
	adapter providers.Adapter
}

func (s stubSource) Lookup(t models.ProviderType) (providers.Adapter, error) {
	if !t.Valid() {
		return nil, &providers.UnsupportedTypeError{Type: t}
	}
	return s.adapter, nil
}

type memorySink struct {
	mu      sync.Mutex
	records []*logging.ExecutionRecord
	err     error
}

func (m *memorySink) Enqueue(_ context.Context, rec *logging.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

type memoryBilling struct {
	mu    sync.Mutex
	spend map[string]float64
	err   error
}

func (m *memoryBilling) AddUsage(_ context.Context, providerID string, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spend == nil {
		m.spend = make(map[string]float64)
	}
	m.spend[providerID] += cost
	return m.err
}

func (m *memoryBilling) MonthlySpend(_ context.Context, providerID string, _ time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spend[providerID], nil
}

func activeProvider(t models.ProviderType) *models.Provider {
	return &models.Provider{
		ID:          "p1",
		Name:        "Primary",
		Type:        t,
		Status:      models.ProviderStatusActive,
		Credentials: models.MustRawSettings(map[string]any{"api_key": "sk-x"}),
	}
}

var errUpstream = errors.New("upstream exploded")
