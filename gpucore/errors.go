package gpucore

import "errors"

// Native errors shared by all backends.
var (
	// ErrUnknownID is returned when an ID does not name a live object.
	ErrUnknownID = errors.New("gpucore: unknown object id")

	// ErrInvalidArgument is returned for malformed descriptors.
	ErrInvalidArgument = errors.New("gpucore: invalid argument")

	// ErrUnknownFormat is returned when a format name cannot be parsed.
	ErrUnknownFormat = errors.New("gpucore: unknown format")

	// ErrNotMappable is returned when mapping a default heap resource.
	ErrNotMappable = errors.New("gpucore: resource is not CPU mappable")

	// ErrInvalidBarrier is returned when a barrier's before state does not
	// match the tracked state of the resource.
	ErrInvalidBarrier = errors.New("gpucore: invalid resource barrier")

	// ErrInvalidState is returned when a command uses a resource in a state
	// that does not allow it.
	ErrInvalidState = errors.New("gpucore: resource in invalid state")

	// ErrListClosed is returned when recording into a closed command list.
	ErrListClosed = errors.New("gpucore: command list is closed")

	// ErrListNotClosed is returned when executing a command list that is
	// still recording.
	ErrListNotClosed = errors.New("gpucore: command list is not closed")

	// ErrUnsupportedShader is returned when a shader carries no source form
	// the backend can consume.
	ErrUnsupportedShader = errors.New("gpucore: no supported shader source")

	// ErrDeviceRemoved is returned after the device hit an unrecoverable
	// execution error.
	ErrDeviceRemoved = errors.New("gpucore: device removed")

	// ErrWaitTimeout is returned when a fence wait expires.
	ErrWaitTimeout = errors.New("gpucore: fence wait timed out")

	// ErrNotSupported is returned for operations a backend cannot perform.
	ErrNotSupported = errors.New("gpucore: not supported")
)
