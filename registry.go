package dx12

import (
	"errors"
	"fmt"
	"hash/crc32"
	"slices"
	"sync"
)

// Registry holds named objects keyed by the CRC-32 (IEEE) of their name.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[uint32]T
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[uint32]T)}
}

// Key returns the key of name.
func Key(name string) uint32 { return crc32.ChecksumIEEE([]byte(name)) }

// Register stores v under name. If the key is taken the stored value is
// kept and returned with false.
func (r *Registry[T]) Register(name string, v T) (T, bool) {
	k := Key(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.items[k]; ok {
		return old, false
	}
	r.items[k] = v
	return v, true
}

// Get returns the value stored under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	return r.Lookup(Key(name))
}

// Lookup returns the value stored under key.
func (r *Registry[T]) Lookup(key uint32) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Remove deletes name and returns the removed value.
func (r *Registry[T]) Remove(name string) (T, bool) {
	k := Key(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[k]
	delete(r.items, k)
	return v, ok
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Keys returns the keys in ascending order.
func (r *Registry[T]) Keys() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]uint32, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ReleaseAll releases every value with a Release method and empties the
// registry.
func (r *Registry[T]) ReleaseAll() error {
	r.mu.Lock()
	items := r.items
	r.items = make(map[uint32]T)
	r.mu.Unlock()

	var errs []error
	for k, v := range items {
		if rel, ok := any(v).(interface{ Release() error }); ok {
			if err := rel.Release(); err != nil {
				errs = append(errs, fmt.Errorf("entry %#08x: %w", k, err))
			}
		}
	}
	return errors.Join(errs...)
}
