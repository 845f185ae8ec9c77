package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockWhitelist is an in-memory mock implementation of the whitelist
// Synchronizer interface, recording calls for assertions.
type MockWhitelist struct {
	members map[string]uuid.UUID
	Added   []string
	Removed []string
	FailAll bool
	mu      sync.Mutex
}

// NewMockWhitelist creates a new mock whitelist instance
func NewMockWhitelist() *MockWhitelist {
	return &MockWhitelist{
		members: make(map[string]uuid.UUID),
	}
}

// AddMember records an allow-list addition
func (m *MockWhitelist) AddMember(ctx context.Context, name string, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll {
		return false, nil
	}
	m.members[name] = id
	m.Added = append(m.Added, name)
	return true, nil
}

// RemoveMember records an allow-list removal
func (m *MockWhitelist) RemoveMember(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAll {
		return false, nil
	}
	delete(m.members, name)
	m.Removed = append(m.Removed, name)
	return true, nil
}

// ListMembers returns the mock allow-list
func (m *MockWhitelist) ListMembers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.members))
	for name := range m.members {
		names = append(names, name)
	}
	return names, nil
}

// Contains reports whether a name is on the mock allow-list
func (m *MockWhitelist) Contains(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.members[name]
	return exists
}
