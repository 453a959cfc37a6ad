// Package kvstore provides the origin-scoped key/value store backing the
// token catalog. Writes replace whole values; the batch Apply operation is
// all-or-nothing so multi-key state stays consistent.
package kvstore

import "sync"

type Store interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Delete(key string) error
	// Apply performs the puts and deletes as a single atomic write.
	Apply(put map[string]string, del []string) error
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu   sync.Mutex
	data map[string]string

	// FailNext forces the next mutating call to return this error, then
	// resets. Lets tests exercise all-or-nothing write behavior.
	FailNext error
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

func (m *MemStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemStore) Put(key, value string) error {
	return m.Apply(map[string]string{key: value}, nil)
}

func (m *MemStore) Delete(key string) error {
	return m.Apply(nil, []string{key})
}

func (m *MemStore) Apply(put map[string]string, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	for k, v := range put {
		m.data[k] = v
	}
	for _, k := range del {
		delete(m.data, k)
	}
	return nil
}
