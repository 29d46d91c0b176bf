package dx12

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/dx12/backend"
	"github.com/gogpu/dx12/gpucore"

	// The software reference backend is always available.
	_ "github.com/gogpu/dx12/backend/software"
)

// Device is the context object every other wrapper is created from. It owns
// the backend device and the adapter enumeration results.
//
// Device methods are safe for concurrent use.
type Device struct {
	native   gpucore.Device
	backend  gpucore.Backend
	info     gpucore.AdapterInfo
	adapters []gpucore.AdapterInfo
	modes    []gpucore.DisplayMode
	logger   *slog.Logger
	opts     deviceOptions
	budget   *memoryBudget

	mu       sync.Mutex
	released bool
}

// NewDevice opens a device. Without options it uses the first registered
// backend that exposes an adapter and opens adapter 0.
func NewDevice(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		logger: o.logger,
		opts:   o,
		budget: newMemoryBudget(o.budgetMB),
	}

	if o.native != nil {
		d.native = o.native
		d.adapters = []gpucore.AdapterInfo{o.native.Info()}
	} else {
		b, err := openBackend(o.backend)
		if err != nil {
			return nil, err
		}
		adapters, err := b.EnumerateAdapters()
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("dx12: enumerate adapters: %w", err)
		}
		if o.adapter < 0 || o.adapter >= len(adapters) {
			b.Close()
			return nil, fmt.Errorf("%w: adapter %d of %d on %q", ErrIndexOutOfRange, o.adapter, len(adapters), b.Name())
		}
		native, err := b.Open(o.adapter)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("dx12: open adapter %q: %w", adapters[o.adapter].Name, err)
		}
		d.backend, d.native, d.adapters = b, native, adapters
	}
	d.info = d.native.Info()

	modes, err := d.native.DisplayModes(o.format)
	if err != nil {
		d.closeNative()
		return nil, fmt.Errorf("dx12: display modes: %w", err)
	}
	d.modes = uniqueModes(modes)

	if d.logger != nil {
		propagateLogger(d.native, d.logger)
	} else {
		follow(d)
	}
	d.log().Info("dx12: adapter selected",
		"name", d.info.Name,
		"backend", d.info.Backend,
		"type", d.info.DeviceType.String(),
		"modes", len(d.modes))
	return d, nil
}

func openBackend(name string) (gpucore.Backend, error) {
	if name == "" {
		b, err := backend.Default()
		if err != nil {
			return nil, fmt.Errorf("dx12: select backend: %w", err)
		}
		return b, nil
	}
	b, err := backend.Get(name)
	if err != nil {
		return nil, fmt.Errorf("dx12: %w", err)
	}
	return b, nil
}

// uniqueModes sorts modes by resolution and keeps one entry per resolution,
// the one with the highest refresh rate.
func uniqueModes(modes []gpucore.DisplayMode) []gpucore.DisplayMode {
	out := slices.Clone(modes)
	slices.SortStableFunc(out, func(a, b gpucore.DisplayMode) int {
		if c := cmp.Compare(a.Width, b.Width); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Height, b.Height); c != 0 {
			return c
		}
		return cmp.Compare(b.RefreshRate(), a.RefreshRate())
	})
	return slices.CompactFunc(out, func(a, b gpucore.DisplayMode) bool {
		return a.Width == b.Width && a.Height == b.Height
	})
}

func (d *Device) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return Logger()
}

func (d *Device) checkAlive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("device: %w", ErrReleased)
	}
	return nil
}

// Native returns the backend device.
func (d *Device) Native() gpucore.Device { return d.native }

// Adapter returns the adapter the device was opened on.
func (d *Device) Adapter() gpucore.AdapterInfo { return d.info }

// Adapters returns every adapter the backend enumerated.
func (d *Device) Adapters() []gpucore.AdapterInfo { return slices.Clone(d.adapters) }

// DisplayModes returns the supported resolutions, one entry each, ordered by
// width then height.
func (d *Device) DisplayModes() []gpucore.DisplayMode { return slices.Clone(d.modes) }

// DisplayFormat returns the configured back buffer format.
func (d *Device) DisplayFormat() gpucore.Format { return d.opts.format }

// FrameCount returns the configured number of swap chain buffers.
func (d *Device) FrameCount() uint32 { return d.opts.frameCount }

// FenceTimeout returns the bound applied to fence waits without a deadline.
func (d *Device) FenceTimeout() time.Duration { return d.opts.fenceTimeout }

// HeapCapacities returns the configured default heap capacities.
func (d *Device) HeapCapacities() HeapCapacities { return d.opts.heaps }

// MemoryStats returns the resource memory accounting.
func (d *Device) MemoryStats() MemoryStats { return d.budget.stats() }

// Release destroys the backend device and every object still alive on it.
// Release is idempotent.
func (d *Device) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	d.mu.Unlock()

	if s := d.budget.stats(); s.ResourceCount > 0 {
		d.log().Warn("dx12: device released with live resources",
			"count", s.ResourceCount, "bytes", s.UsedBytes)
	}
	unfollow(d)
	d.closeNative()
	return nil
}

func (d *Device) closeNative() {
	d.native.Destroy()
	if d.backend != nil {
		d.backend.Close()
	}
}
