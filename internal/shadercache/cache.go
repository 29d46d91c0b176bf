// Package shadercache keeps translated shader code in a bounded LRU so a
// WGSL module compiled for several pipelines is parsed once.
package shadercache

import (
	"hash/crc32"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 64

// Key identifies one entry point of one source text.
func Key(stage, entry, source string) uint32 {
	h := crc32.NewIEEE()
	_, _ = h.Write([]byte(stage))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(entry))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	return h.Sum32()
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
}

type node[V any] struct {
	key        uint32
	value      V
	prev, next *node[V]
}

// Cache is a fixed-capacity LRU. The head of the list is the most recently
// used entry.
//
// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint32]*node[V]
	head     *node[V]
	tail     *node[V]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New returns an empty cache holding at most capacity entries.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{capacity: capacity, entries: make(map[uint32]*node[V], capacity)}
}

// Get returns the value under key and marks it most recently used.
func (c *Cache[V]) Get(key uint32) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.moveToFront(n)
	c.hits.Add(1)
	return n.value, true
}

// Put stores value under key, evicting the least recently used entries
// beyond capacity.
func (c *Cache[V]) Put(key uint32, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.entries[key]; ok {
		n.value = value
		c.moveToFront(n)
		return
	}
	for len(c.entries) >= c.capacity && c.tail != nil {
		old := c.tail
		c.unlink(old)
		delete(c.entries, old.key)
		c.evictions.Add(1)
	}
	n := &node[V]{key: key, value: value}
	c.pushFront(n)
	c.entries[key] = n
}

// GetOrCompile returns the cached value or runs compile and caches its
// result. Failed compilations are not cached. Two goroutines missing the
// same key may both compile; the later result wins.
func (c *Cache[V]) GetOrCompile(key uint32, compile func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compile()
	if err != nil {
		return v, err
	}
	c.Put(key, v)
	return v, nil
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.Len(),
	}
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.head, c.tail = nil, nil
	c.mu.Unlock()
}

func (c *Cache[V]) pushFront(n *node[V]) {
	n.prev, n.next = nil, c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *Cache[V]) moveToFront(n *node[V]) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}
