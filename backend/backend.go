package backend

import (
	"errors"

	"github.com/gogpu/dx12/gpucore"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the pure Go reference device.
	BackendSoftware = "software"

	// BackendWGPU is the name of the gogpu/wgpu hal device (DX12 on
	// Windows, Vulkan elsewhere).
	BackendWGPU = "wgpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapters is returned when a backend exposes no adapters.
	ErrNoAdapters = errors.New("backend: no adapters")
)

// Factory creates a new backend instance. A factory may fail when the
// native API is missing on the host.
type Factory func() (gpucore.Backend, error)
