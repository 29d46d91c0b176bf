package software

import "errors"

// Software backend errors.
var (
	// ErrBackendClosed is returned when using a closed backend.
	ErrBackendClosed = errors.New("software: backend closed")

	// ErrDeviceDestroyed is returned when using a destroyed device.
	ErrDeviceDestroyed = errors.New("software: device destroyed")

	// ErrOutOfRange is returned for copies and views outside a resource.
	ErrOutOfRange = errors.New("software: range outside resource")

	// ErrNotBound is returned when a draw misses a required binding.
	ErrNotBound = errors.New("software: required binding missing")
)
