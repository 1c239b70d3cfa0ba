// Package objectstore provides the node-local object store. Task results
// and externally published values live here; the dependency manager
// watches it to decide when waiting tasks become ready.
package objectstore

import (
	"sync"

	"github.com/me/nodelet/pkg/model"
)

// Store is an in-memory ObjectID → value store. The scheduler goroutine
// writes; workers read concurrently, so access is mutex-guarded.
type Store struct {
	mu      sync.RWMutex
	objects map[model.ObjectID]any
}

// New creates an empty object store.
func New() *Store {
	return &Store{objects: make(map[model.ObjectID]any)}
}

// Put stores a value under id, overwriting any previous value.
func (s *Store) Put(id model.ObjectID, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = value
}

// Get returns the value stored under id, if present.
func (s *Store) Get(id model.ObjectID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.objects[id]
	return v, ok
}

// Contains reports whether id is local.
func (s *Store) Contains(id model.ObjectID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

// Len returns the number of local objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
