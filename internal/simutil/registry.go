package simutil

import "sync"

// Registry is a map guarded by a single reader/writer lock. Readers share the
// lock; every mutation, including whole-map sweeps, holds it exclusively.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// NewRegistry returns an empty registry.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]V)}
}

// Load returns the value stored under key.
func (r *Registry[K, V]) Load(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.entries[key]
	return value, ok
}

// Store sets the value under key.
func (r *Registry[K, V]) Store(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Delete removes key and returns the value it held.
func (r *Registry[K, V]) Delete(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return value, ok
}

// Len reports the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Read runs fn with shared access. fn must not modify the map or call back
// into the registry.
func (r *Registry[K, V]) Read(fn func(entries map[K]V)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.entries)
}

// Mutate runs fn with exclusive access. fn must not call back into the
// registry.
func (r *Registry[K, V]) Mutate(fn func(entries map[K]V)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.entries)
}

// Clear drops every entry and reports how many were removed.
func (r *Registry[K, V]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = make(map[K]V)
	return n
}
