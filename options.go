package dx12

import (
	"log/slog"
	"time"

	"github.com/gogpu/dx12/gpucore"
)

// Option configures a Device during creation.
//
// Example:
//
//	// First usable backend, first adapter
//	dev, err := dx12.NewDevice()
//
//	// Software reference device with a tighter fence timeout
//	dev, err := dx12.NewDevice(
//	    dx12.WithBackend("software"),
//	    dx12.WithFenceTimeout(time.Second),
//	)
type Option func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	backend      string
	adapter      int
	native       gpucore.Device
	logger       *slog.Logger
	fenceTimeout time.Duration
	budgetMB     int
	frameCount   uint32
	format       gpucore.Format
	heaps        HeapCapacities
}

// HeapCapacities are the default capacities used by helpers that create
// their own descriptor heaps.
type HeapCapacities struct {
	CBVSRVUAV uint32
	RTV       uint32
	DSV       uint32
}

// Defaults applied when an option is absent.
const (
	// DefaultFenceTimeout bounds fence waits whose context has no deadline.
	DefaultFenceTimeout = 5 * time.Second

	// DefaultFrameCount is the default number of swap chain buffers.
	DefaultFrameCount = 2

	// DefaultMemoryBudgetMB is the default resource memory budget.
	DefaultMemoryBudgetMB = 512

	// MinMemoryBudgetMB is the smallest budget accepted; smaller values fall
	// back to the default.
	MinMemoryBudgetMB = 16
)

// defaultOptions returns the default device options.
func defaultOptions() deviceOptions {
	return deviceOptions{
		fenceTimeout: DefaultFenceTimeout,
		budgetMB:     DefaultMemoryBudgetMB,
		frameCount:   DefaultFrameCount,
		format:       gpucore.FormatRGBA8Unorm,
		heaps:        HeapCapacities{CBVSRVUAV: 1024, RTV: 16, DSV: 8},
	}
}

// WithBackend selects a registered backend by name. The empty name picks
// the first backend that exposes an adapter.
func WithBackend(name string) Option {
	return func(o *deviceOptions) {
		o.backend = name
	}
}

// WithAdapter selects the adapter index on the chosen backend.
func WithAdapter(index int) Option {
	return func(o *deviceOptions) {
		o.adapter = index
	}
}

// WithNativeDevice wraps an already opened device instead of opening one.
// The Device takes ownership and destroys it on Release.
func WithNativeDevice(native gpucore.Device) Option {
	return func(o *deviceOptions) {
		o.native = native
	}
}

// WithLogger sets a device-specific logger. Devices without one follow the
// package logger set by SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithFenceTimeout bounds fence waits whose context carries no deadline.
// Zero or negative values keep DefaultFenceTimeout.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *deviceOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithMemoryBudget sets the resource memory budget in megabytes. Values
// below MinMemoryBudgetMB select DefaultMemoryBudgetMB.
func WithMemoryBudget(mb int) Option {
	return func(o *deviceOptions) {
		o.budgetMB = mb
	}
}

// WithFrameCount sets the default number of swap chain buffers.
func WithFrameCount(n uint32) Option {
	return func(o *deviceOptions) {
		if n > 0 {
			o.frameCount = n
		}
	}
}

// WithDisplayFormat sets the back buffer format.
func WithDisplayFormat(f gpucore.Format) Option {
	return func(o *deviceOptions) {
		o.format = f
	}
}

// WithHeapCapacities overrides the default heap capacities. Zero fields
// keep their defaults.
func WithHeapCapacities(c HeapCapacities) Option {
	return func(o *deviceOptions) {
		if c.CBVSRVUAV > 0 {
			o.heaps.CBVSRVUAV = c.CBVSRVUAV
		}
		if c.RTV > 0 {
			o.heaps.RTV = c.RTV
		}
		if c.DSV > 0 {
			o.heaps.DSV = c.DSV
		}
	}
}
