package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/backend"
	"github.com/gogpu/dx12/gpucore"
)

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Backend, error) {
		return New(), nil
	})
}

// DefaultDisplayModes is the mode list reported when no option overrides it.
// 1920x1080 appears at two refresh rates, as a real output would list it.
var DefaultDisplayModes = []gpucore.DisplayMode{
	{Width: 640, Height: 480, RefreshNumerator: 60, RefreshDenominator: 1, Format: gpucore.FormatRGBA8Unorm},
	{Width: 800, Height: 600, RefreshNumerator: 60, RefreshDenominator: 1, Format: gpucore.FormatRGBA8Unorm},
	{Width: 1280, Height: 720, RefreshNumerator: 60, RefreshDenominator: 1, Format: gpucore.FormatRGBA8Unorm},
	{Width: 1920, Height: 1080, RefreshNumerator: 60, RefreshDenominator: 1, Format: gpucore.FormatRGBA8Unorm},
	{Width: 1920, Height: 1080, RefreshNumerator: 144, RefreshDenominator: 1, Format: gpucore.FormatRGBA8Unorm},
}

// Option configures a software Backend.
type Option func(*Backend)

// WithAdapters replaces the default single adapter with one adapter per name.
func WithAdapters(names ...string) Option {
	return func(b *Backend) {
		b.adapters = b.adapters[:0]
		for _, n := range names {
			b.adapters = append(b.adapters, gpucore.AdapterInfo{
				Name:       n,
				Vendor:     "gogpu",
				DeviceType: gpucore.DeviceTypeSoftware,
				Backend:    backend.BackendSoftware,
			})
		}
	}
}

// WithDisplayModes replaces the reported display modes.
func WithDisplayModes(modes ...gpucore.DisplayMode) Option {
	return func(b *Backend) {
		b.modes = append([]gpucore.DisplayMode(nil), modes...)
	}
}

// Backend is the software implementation of gpucore.Backend.
type Backend struct {
	mu       sync.Mutex
	adapters []gpucore.AdapterInfo
	modes    []gpucore.DisplayMode
	closed   bool
}

// New creates a software backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		adapters: []gpucore.AdapterInfo{{
			Name:       "Software Reference Adapter",
			Vendor:     "gogpu",
			DeviceType: gpucore.DeviceTypeSoftware,
			Backend:    backend.BackendSoftware,
		}},
		modes: DefaultDisplayModes,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendSoftware }

// EnumerateAdapters lists the configured adapters.
func (b *Backend) EnumerateAdapters() ([]gpucore.AdapterInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	return append([]gpucore.AdapterInfo(nil), b.adapters...), nil
}

// Open creates a device on the adapter at index.
func (b *Backend) Open(index int) (gpucore.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	if index < 0 || index >= len(b.adapters) {
		return nil, fmt.Errorf("%w: adapter %d of %d", gpucore.ErrInvalidArgument, index, len(b.adapters))
	}
	return NewDevice(b.adapters[index], b.modes), nil
}

// Close marks the backend closed.
func (b *Backend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}
