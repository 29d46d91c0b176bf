package shadercache

import (
	"errors"
	"sync"
	"testing"
)

func TestKey(t *testing.T) {
	a := Key("vertex", "vs", "src")
	if a != Key("vertex", "vs", "src") {
		t.Error("Key is not deterministic")
	}
	for _, k := range []uint32{Key("pixel", "vs", "src"), Key("vertex", "ps", "src"), Key("vertex", "vs", "src2"), Key("vertexv", "s", "src")} {
		if k == a {
			t.Errorf("Key collision with %#x", a)
		}
	}
}

func TestLRUEviction(t *testing.T) {
	c := New[string](2)
	c.Put(1, "one")
	c.Put(2, "two")
	if _, ok := c.Get(1); !ok {
		t.Fatal("Get(1) missed")
	}
	c.Put(3, "three")

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry 2 survived")
	}
	if v, ok := c.Get(1); !ok || v != "one" {
		t.Errorf("Get(1) = %q, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	c.Put(1, "uno")
	if v, _ := c.Get(1); v != "uno" {
		t.Errorf("update lost: %q", v)
	}

	s := c.Stats()
	if s.Hits != 3 || s.Misses != 1 || s.Evictions != 1 || s.Len != 2 {
		t.Errorf("Stats() = %+v", s)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Error("Clear left entries")
	}
	c.Put(4, "four")
	if v, ok := c.Get(4); !ok || v != "four" {
		t.Error("cache unusable after Clear")
	}
}

func TestDefaultCapacity(t *testing.T) {
	c := New[int](0)
	for i := range DefaultCapacity + 5 {
		c.Put(uint32(i), i) //nolint:gosec // G115: small test keys
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", c.Len(), DefaultCapacity)
	}
	if c.Stats().Evictions != 5 {
		t.Errorf("Evictions = %d, want 5", c.Stats().Evictions)
	}
}

func TestGetOrCompile(t *testing.T) {
	c := New[string](4)
	calls := 0
	compile := func() (string, error) {
		calls++
		return "hlsl", nil
	}
	for range 3 {
		v, err := c.GetOrCompile(7, compile)
		if err != nil || v != "hlsl" {
			t.Fatalf("GetOrCompile = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("compiled %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCompile(8, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if _, ok := c.Get(8); ok {
		t.Error("failed compilation was cached")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](8)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				key := uint32((g + i) % 16) //nolint:gosec // G115: small test keys
				if _, ok := c.Get(key); !ok {
					c.Put(key, i)
				}
			}
		}()
	}
	wg.Wait()
	if c.Len() > 8 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
