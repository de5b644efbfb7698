package session

import (
	"sync"

	"igengage/pkg/instagram"
)

// MemoryStore is an in-process Store for tests and one-off runs
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte

	// Error injection for testing
	LoadError error
	SaveError error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Name implements Store
func (m *MemoryStore) Name() string { return "memory" }

// Load implements Store
func (m *MemoryStore) Load(account string) (*instagram.Session, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	key, err := accountKey(account)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return instagram.UnmarshalSession(blob)
}

// Save implements Store
func (m *MemoryStore) Save(s *instagram.Session) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	if s == nil {
		return ErrInvalidAccount
	}
	key, err := accountKey(s.Account)
	if err != nil {
		return err
	}
	blob, err := s.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[key] = blob
	m.mu.Unlock()
	return nil
}

// Delete implements Store
func (m *MemoryStore) Delete(account string) error {
	key, err := accountKey(account)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, key)
	return nil
}

// Count returns the number of stored sessions
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
