// Package memory provides an in-memory localstore.Store for testing.
package memory

import (
	"sync"

	"github.com/stepauth/stepauth-go/localstore"
)

// Store implements localstore.Store with an in-memory map.
// Err, when set, is returned by every operation to simulate a restricted
// storage context.
type Store struct {
	mu   sync.RWMutex
	data map[string]string

	Err error
}

var _ localstore.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	if s.Err != nil {
		return "", false, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set writes the value for key.
func (s *Store) Set(key, value string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
