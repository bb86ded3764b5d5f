package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/hookpace/hookpace/internal/domain"
)

// MemRegistry is a mutex-guarded in-memory Registry. It backs unit tests and
// deployments without a DATABASE_URL, where destinations are configured over
// the API and live for the process lifetime.
type MemRegistry struct {
	mu           sync.RWMutex
	destinations map[string]domain.Destination

	// Optional error overrides — set in tests to simulate failure paths.
	ListErr   error
	UpsertErr error
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{destinations: make(map[string]domain.Destination)}
}

func (m *MemRegistry) List(_ context.Context) ([]domain.Destination, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Destination, 0, len(m.destinations))
	for _, d := range m.destinations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemRegistry) Get(_ context.Context, id string) (*domain.Destination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.destinations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *MemRegistry) Upsert(_ context.Context, d domain.Destination) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destinations[d.ID] = d
	return nil
}

func (m *MemRegistry) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.destinations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.destinations, id)
	return nil
}

// compile-time check that MemRegistry implements Registry
var _ Registry = (*MemRegistry)(nil)
