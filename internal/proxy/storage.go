package proxy

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// Entry is a stored response. Entries are never mutated after Put.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Partition is one named cache holding responses by request key.
type Partition struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func (p *Partition) Get(key string) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	return e, ok
}

func (p *Partition) Put(key string, e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = e
}

func (p *Partition) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}

func (p *Partition) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CacheStorage is the set of named partitions.
type CacheStorage struct {
	mu         sync.Mutex
	partitions map[string]*Partition
	order      []string
}

func NewCacheStorage() *CacheStorage {
	return &CacheStorage{partitions: make(map[string]*Partition)}
}

// Open returns the named partition, creating it if needed.
func (s *CacheStorage) Open(name string) *Partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.partitions[name]; ok {
		return p
	}
	p := &Partition{entries: make(map[string]*Entry)}
	s.partitions[name] = p
	s.order = append(s.order, name)
	return p
}

func (s *CacheStorage) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.partitions[name]
	return ok
}

// Names lists partitions in creation order.
func (s *CacheStorage) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *CacheStorage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partitions[name]; !ok {
		return false
	}
	delete(s.partitions, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Match looks key up in every partition, oldest first.
func (s *CacheStorage) Match(key string) (*Entry, bool) {
	s.mu.Lock()
	parts := make([]*Partition, 0, len(s.order))
	for _, name := range s.order {
		parts = append(parts, s.partitions[name])
	}
	s.mu.Unlock()

	for _, p := range parts {
		if e, ok := p.Get(key); ok {
			return e, true
		}
	}
	return nil, false
}
