package config

import (
	"fmt"
	"sync"
)

// Section is a typed group of related settings registered with the Manager.
// Sections serialize themselves to and from plain maps so the store stays
// format-agnostic.
type Section interface {
	// ID returns the stable section identifier used as the storage key.
	ID() string

	// Title returns the human-readable section title.
	Title() string

	// Data returns the current configuration data.
	Data() map[string]interface{}

	// SetData updates the configuration from the provided data.
	SetData(data map[string]interface{}) error

	// Validate validates the current configuration.
	Validate() error
}

// Manager coordinates configuration sections and their persistence.
type Manager struct {
	store    Store
	sections map[string]Section
	order    []string
	mu       sync.RWMutex
}

// NewManager creates a manager backed by the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// RegisterSection registers a section with the manager.
// Registering two sections with the same ID is a programming error.
func (m *Manager) RegisterSection(section Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := section.ID()
	if _, exists := m.sections[id]; exists {
		return fmt.Errorf("config: section %q already registered", id)
	}
	m.sections[id] = section
	m.order = append(m.order, id)
	return nil
}

// GetSection returns the registered section with the given ID.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	section, ok := m.sections[id]
	return section, ok
}

// Sections returns all registered sections in registration order.
func (m *Manager) Sections() []Section {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Section, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sections[id])
	}
	return out
}

// LoadAll hydrates every registered section from the store and validates it.
func (m *Manager) LoadAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		section := m.sections[id]
		data, err := m.store.GetSection(id)
		if err != nil {
			return fmt.Errorf("config: load section %q: %w", id, err)
		}
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("config: apply section %q: %w", id, err)
		}
		if err := section.Validate(); err != nil {
			return fmt.Errorf("config: validate section %q: %w", id, err)
		}
	}
	return nil
}

// SaveAll writes every registered section back to the store and persists it.
func (m *Manager) SaveAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if err := m.store.SetSection(id, m.sections[id].Data()); err != nil {
			return fmt.Errorf("config: store section %q: %w", id, err)
		}
	}
	return m.store.Save()
}
