package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Hardware before the software reference device.
	backendPriority = []string{BackendWGPU, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Get creates the backend registered under name.
func Get(name string) (gpucore.Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return b, nil
}

// Default returns the best available backend that exposes at least one
// adapter. Priority order: wgpu > software, then any other registered name.
func Default() (gpucore.Backend, error) {
	order := append([]string(nil), backendPriority...)
	for _, name := range Available() {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	var lastErr error = ErrBackendNotAvailable
	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		b, err := Get(name)
		if err != nil {
			lastErr = err
			continue
		}
		adapters, err := b.EnumerateAdapters()
		if err == nil && len(adapters) > 0 {
			return b, nil
		}
		b.Close()
		if err == nil {
			err = fmt.Errorf("%w: %q", ErrNoAdapters, name)
		}
		lastErr = err
	}
	return nil, lastErr
}
