package wgpu

import "errors"

var (
	// ErrNativeUnavailable is returned when the platform hal backend is not
	// compiled in or fails to start.
	ErrNativeUnavailable = errors.New("wgpu: native backend unavailable")

	// ErrNoHALAccess is returned by NewFromProvider when the provider does
	// not expose hal.Device and hal.Queue.
	ErrNoHALAccess = errors.New("wgpu: provider does not expose HAL types")

	// ErrBackendClosed is returned when using a closed backend.
	ErrBackendClosed = errors.New("wgpu: backend closed")

	// ErrDeviceDestroyed is returned when using a destroyed device.
	ErrDeviceDestroyed = errors.New("wgpu: device destroyed")
)
