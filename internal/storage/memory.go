package storage

import "sync"

// Memory is a volatile in-process backend. Useful for tests and for running
// the tree without durability.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Get(path string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[path].Clone(), nil
}

func (m *Memory) Put(path string, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[path] = record.Clone()
	return nil
}

func (m *Memory) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, path)
	return nil
}

func (m *Memory) ListAll() ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
