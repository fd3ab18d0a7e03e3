package mapsession

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a view ID is unknown.
var ErrNotFound = errors.New("mapsession: view not found")

// Registry tracks open sessions by ID.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewRegistry creates an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Put stores v under id, replacing any previous entry.
func (r *Registry[T]) Put(id string, v T) {
	r.mu.Lock()
	r.items[id] = v
	r.mu.Unlock()
}

// Get returns the entry registered under id.
func (r *Registry[T]) Get(id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

// Remove deletes and returns the entry registered under id.
func (r *Registry[T]) Remove(id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	delete(r.items, id)
	return v, nil
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// IDs returns every registered ID in no particular order.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	return ids
}
