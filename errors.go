package dx12

import "errors"

// Descriptor heap errors.
var (
	// ErrInvalidCapacity is returned when a heap is created with zero slots.
	ErrInvalidCapacity = errors.New("dx12: descriptor heap capacity must be positive")

	// ErrInvalidHeapFlags is returned for shader-visible RTV or DSV heaps.
	ErrInvalidHeapFlags = errors.New("dx12: heap type cannot be shader visible")

	// ErrInvalidCount is returned when allocating zero descriptors.
	ErrInvalidCount = errors.New("dx12: descriptor count must be positive")

	// ErrHeapFull is returned when an allocation exceeds the heap capacity.
	ErrHeapFull = errors.New("dx12: descriptor heap is full")

	// ErrHeapNotShaderVisible is returned when binding a CPU-only heap.
	ErrHeapNotShaderVisible = errors.New("dx12: descriptor heap is not shader visible")

	// ErrWrongHeapType is returned when a view is created in a heap of
	// another type.
	ErrWrongHeapType = errors.New("dx12: wrong descriptor heap type")

	// ErrDescriptorNotOwned is returned when freeing a handle the pool did
	// not hand out.
	ErrDescriptorNotOwned = errors.New("dx12: descriptor not owned by pool")

	// ErrDoubleFree is returned when freeing a pool handle twice.
	ErrDoubleFree = errors.New("dx12: descriptor freed twice")
)

// Resource errors.
var (
	// ErrResourceNotCreated is the panic value of accessors called on a
	// resource that was never created or has been released.
	ErrResourceNotCreated = errors.New("dx12: resource not created")

	// ErrIndexOutOfRange is returned for element or slot indices past the end.
	ErrIndexOutOfRange = errors.New("dx12: index out of range")

	// ErrInvalidSize is returned for zero strides, counts or dimensions.
	ErrInvalidSize = errors.New("dx12: invalid resource size")

	// ErrDataSize is returned when written data does not fit an element.
	ErrDataSize = errors.New("dx12: data does not fit element")

	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the
	// device memory budget.
	ErrMemoryBudgetExceeded = errors.New("dx12: memory budget exceeded")

	// ErrNoView is returned when binding a resource with no shader-visible view.
	ErrNoView = errors.New("dx12: resource has no shader-visible view")

	// ErrShaderResourceDenied is returned when creating a shader view of a
	// depth stencil.
	ErrShaderResourceDenied = errors.New("dx12: resource denies shader resource views")

	// ErrReleased is returned when using an object after Release.
	ErrReleased = errors.New("dx12: object released")
)

// Synchronization errors.
var (
	// ErrFenceValueNotMonotonic is returned when signaling a value that is
	// not greater than the last signaled value.
	ErrFenceValueNotMonotonic = errors.New("dx12: fence value must increase")

	// ErrFenceTimeout is returned when a fence wait exceeds its deadline.
	ErrFenceTimeout = errors.New("dx12: fence wait timed out")

	// ErrListInFlight is returned when resetting a list the GPU may still
	// be executing.
	ErrListInFlight = errors.New("dx12: command list is in flight")

	// ErrListNotRecording is returned by recording calls outside the
	// Recording state.
	ErrListNotRecording = errors.New("dx12: command list is not recording")

	// ErrListNotClosed is returned when executing a list that is not Closed.
	ErrListNotClosed = errors.New("dx12: command list is not closed")

	// ErrUploaderSubmitted is returned when recording into an uploader that
	// has already been submitted.
	ErrUploaderSubmitted = errors.New("dx12: uploader already submitted")
)

// Frame errors.
var (
	// ErrAlreadyRendering is returned by StartRendering inside a
	// StartRendering/FinishRendering bracket.
	ErrAlreadyRendering = errors.New("dx12: already rendering")

	// ErrNotRendering is returned by FinishRendering without a matching
	// StartRendering.
	ErrNotRendering = errors.New("dx12: not rendering")

	// ErrNoBuffers is returned when rendering into a frame buffer that no
	// swap chain has attached buffers to.
	ErrNoBuffers = errors.New("dx12: frame buffer has no back buffers")

	// ErrNotPresentable is returned by Present when the current back buffer
	// is not in the PRESENT state.
	ErrNotPresentable = errors.New("dx12: back buffer is not presentable")

	// ErrEntryPointNotFound is returned when a shader lacks the requested
	// entry point.
	ErrEntryPointNotFound = errors.New("dx12: shader entry point not found")
)
