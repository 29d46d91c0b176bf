package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dx12/backend"
	"github.com/gogpu/dx12/gpucore"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.Backend, error) {
		return New()
	})
}

// Backend is the hal implementation of gpucore.Backend.
type Backend struct {
	mu       sync.Mutex
	instance hal.Instance
	adapters []hal.ExposedAdapter
	closed   bool
}

// New opens the native hal backend of the platform.
func New() (*Backend, error) {
	api, ok := hal.GetBackend(nativeBackend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNativeUnavailable, nativeBackend)
	}
	return NewWithAPI(api)
}

// NewWithAPI creates a backend over any hal API, such as hal/noop in tests.
func NewWithAPI(api hal.Backend) (*Backend, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNativeUnavailable, err)
	}
	return &Backend{
		instance: instance,
		adapters: instance.EnumerateAdapters(nil),
	}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendWGPU }

// EnumerateAdapters lists the adapters the instance exposes.
func (b *Backend) EnumerateAdapters() ([]gpucore.AdapterInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	out := make([]gpucore.AdapterInfo, len(b.adapters))
	for i := range b.adapters {
		out[i] = adapterInfo(&b.adapters[i])
	}
	return out, nil
}

// Open opens a device on the adapter at index.
func (b *Backend) Open(index int) (gpucore.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	if index < 0 || index >= len(b.adapters) {
		return nil, fmt.Errorf("%w: adapter %d of %d", gpucore.ErrInvalidArgument, index, len(b.adapters))
	}
	exposed := &b.adapters[index]
	openDev, err := exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open %q: %w", exposed.Info.Name, err)
	}
	return newDevice(adapterInfo(exposed), openDev.Device, openDev.Queue, false)
}

// Close destroys the instance. Devices opened from it must be destroyed
// first.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.adapters = nil
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
}

// NewFromProvider wraps the device of a gogpu application. The provider must
// also implement gpucontext.HalProvider. The returned device does not own
// the hal device; Destroy releases only the objects created through it.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	hp, ok := provider.(gpucontext.HalProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALAccess)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALAccess)
	}
	info := gpucore.AdapterInfo{Name: "gogpu shared device", Backend: backend.BackendWGPU}
	return newDevice(info, device, queue, true)
}

func adapterInfo(a *hal.ExposedAdapter) gpucore.AdapterInfo {
	info := gpucore.AdapterInfo{
		Name:    a.Info.Name,
		Vendor:  a.Info.Vendor,
		Backend: backend.BackendWGPU,
	}
	switch a.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		info.DeviceType = gpucore.DeviceTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		info.DeviceType = gpucore.DeviceTypeIntegrated
	default:
		info.DeviceType = gpucore.DeviceTypeOther
	}
	return info
}
