package localstore

import (
	"context"
	"sync"
)

// Memory keeps values in a map. A positive Quota caps the total stored bytes
// (keys plus values), like a browser's storage quota.
type Memory struct {
	mu    sync.Mutex
	data  map[string]string
	Quota int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Quota > 0 {
		used := len(key) + len(value)
		for k, v := range m.data {
			if k != key {
				used += len(k) + len(v)
			}
		}
		if used > m.Quota {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
