package backend

import (
	"errors"
	"sort"
	"sync"
)

// Error values for consistent error handling by callers.
var (
	ErrNotFound      = errors.New("backend not configured")
	ErrInvalidName   = errors.New("invalid backend name")
	ErrDuplicateName = errors.New("duplicate backend name")
)

// Store defines read access to configured backends.
type Store interface {
	// Describe returns the descriptor for name.
	Describe(name string) (Descriptor, error)
	// List returns all descriptors sorted by name.
	List() []Descriptor
	// Names returns all backend names sorted.
	Names() []string
	// Has reports whether name is configured.
	Has(name string) bool
	// Len returns the number of configured backends.
	Len() int
}

// Loader produces a fresh Store. A Loader may return a usable store
// together with a non-nil error describing a soft failure.
type Loader func() (Store, error)

// InMemoryStore holds descriptors in memory.
type InMemoryStore struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewInMemoryStore creates a store holding the given descriptors.
func NewInMemoryStore(descriptors ...Descriptor) (*InMemoryStore, error) {
	s := &InMemoryStore{
		descriptors: make(map[string]Descriptor, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := s.Add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers a descriptor. Names must be unique.
func (s *InMemoryStore) Add(d Descriptor) error {
	if d.Name == "" {
		return ErrInvalidName
	}
	if err := d.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.descriptors[d.Name]; exists {
		return ErrDuplicateName
	}
	s.descriptors[d.Name] = d.clone()
	return nil
}

// Describe returns a descriptor by name.
func (s *InMemoryStore) Describe(name string) (Descriptor, error) {
	if name == "" {
		return Descriptor{}, ErrInvalidName
	}

	s.mu.RLock()
	d, ok := s.descriptors[name]
	s.mu.RUnlock()

	if !ok {
		return Descriptor{}, ErrNotFound
	}
	return d.clone(), nil
}

// Has reports whether name is configured.
func (s *InMemoryStore) Has(name string) bool {
	s.mu.RLock()
	_, ok := s.descriptors[name]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of descriptors.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.descriptors)
}

// Names returns all backend names in sorted order.
func (s *InMemoryStore) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.descriptors))
	for name := range s.descriptors {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// List returns all descriptors in stable order.
func (s *InMemoryStore) List() []Descriptor {
	names := s.Names()

	result := make([]Descriptor, 0, len(names))
	s.mu.RLock()
	for _, name := range names {
		if d, ok := s.descriptors[name]; ok {
			result = append(result, d.clone())
		}
	}
	s.mu.RUnlock()

	return result
}
