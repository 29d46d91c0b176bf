package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/dx12/gpucore"
)

// fakeBackend is a gpucore.Backend with a fixed adapter count.
type fakeBackend struct {
	name     string
	adapters int
	closed   bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) EnumerateAdapters() ([]gpucore.AdapterInfo, error) {
	out := make([]gpucore.AdapterInfo, f.adapters)
	for i := range out {
		out[i] = gpucore.AdapterInfo{Name: f.name, Backend: f.name}
	}
	return out, nil
}

func (f *fakeBackend) Open(int) (gpucore.Device, error) { return nil, gpucore.ErrNotSupported }

func (f *fakeBackend) Close() { f.closed = true }

func withRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := factories
	factories = make(map[string]Factory)
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		factories = saved
		registryMu.Unlock()
	})
}

func TestRegisterAndGet(t *testing.T) {
	withRegistry(t)

	Register("zeta", func() (gpucore.Backend, error) { return &fakeBackend{name: "zeta", adapters: 1}, nil })
	Register("alpha", func() (gpucore.Backend, error) { return &fakeBackend{name: "alpha", adapters: 1}, nil })

	if got := Available(); !slices.Equal(got, []string{"alpha", "zeta"}) {
		t.Errorf("Available() = %v, want [alpha zeta]", got)
	}
	if !IsRegistered("zeta") {
		t.Error("IsRegistered(zeta) = false")
	}

	b, err := Get("zeta")
	if err != nil {
		t.Fatalf("Get(zeta) error = %v", err)
	}
	if b.Name() != "zeta" {
		t.Errorf("Name() = %q, want zeta", b.Name())
	}

	Unregister("zeta")
	if _, err := Get("zeta"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Get after Unregister error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestGetFactoryError(t *testing.T) {
	withRegistry(t)
	boom := errors.New("no driver")
	Register(BackendWGPU, func() (gpucore.Backend, error) { return nil, boom })

	if _, err := Get(BackendWGPU); !errors.Is(err, boom) {
		t.Errorf("Get error = %v, want wrapped %v", err, boom)
	}
}

func TestDefaultPriority(t *testing.T) {
	withRegistry(t)

	var hw *fakeBackend
	Register(BackendWGPU, func() (gpucore.Backend, error) {
		hw = &fakeBackend{name: BackendWGPU}
		return hw, nil
	})
	Register(BackendSoftware, func() (gpucore.Backend, error) {
		return &fakeBackend{name: BackendSoftware, adapters: 1}, nil
	})

	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b.Name() != BackendSoftware {
		t.Errorf("Default() = %q, want %q when wgpu has no adapters", b.Name(), BackendSoftware)
	}
	if hw == nil || !hw.closed {
		t.Error("adapterless wgpu backend was not closed")
	}

	Register(BackendWGPU, func() (gpucore.Backend, error) {
		return &fakeBackend{name: BackendWGPU, adapters: 2}, nil
	})
	b, err = Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if b.Name() != BackendWGPU {
		t.Errorf("Default() = %q, want %q", b.Name(), BackendWGPU)
	}
}

func TestDefaultNothingUsable(t *testing.T) {
	withRegistry(t)
	if _, err := Default(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Default() on empty registry error = %v", err)
	}

	Register("custom", func() (gpucore.Backend, error) { return &fakeBackend{name: "custom"}, nil })
	if _, err := Default(); !errors.Is(err, ErrNoAdapters) {
		t.Errorf("Default() error = %v, want ErrNoAdapters", err)
	}
}
