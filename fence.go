package dx12

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// Fence is a monotonic 64-bit completion counter shared between the CPU and
// the queues.
type Fence struct {
	dev *Device
	id  gpucore.FenceID

	mu       sync.Mutex
	last     uint64
	final    uint64 // completed value at Release
	released bool
}

// NewFence creates a fence whose completed value starts at initial.
func NewFence(dev *Device, initial uint64) (*Fence, error) {
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	id, err := dev.native.CreateFence(initial)
	if err != nil {
		return nil, fmt.Errorf("dx12: create fence: %w", err)
	}
	return &Fence{dev: dev, id: id, last: initial}, nil
}

// Completed returns the value the fence has reached. A released fence
// keeps reporting the value it had reached when it was released.
func (f *Fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return f.final
	}
	return f.dev.native.FenceCompletedValue(f.id)
}

// LastSignaled returns the highest value handed to a signal so far.
func (f *Fence) LastSignaled() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Signal sets the fence to v from the CPU side.
func (f *Fence) Signal(v uint64) error {
	return f.advance(v, func() error {
		return f.dev.native.SignalFence(f.id, v)
	})
}

// advance runs signal if v is a valid next value and records v on success.
func (f *Fence) advance(v uint64, signal func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return fmt.Errorf("fence: %w", ErrReleased)
	}
	if v <= f.last {
		return fmt.Errorf("%w: %d after %d", ErrFenceValueNotMonotonic, v, f.last)
	}
	if err := signal(); err != nil {
		return fmt.Errorf("dx12: signal fence to %d: %w", v, err)
	}
	f.last = v
	return nil
}

// Wait blocks until the fence reaches v. A ctx without deadline is bounded
// by the device fence timeout.
func (f *Fence) Wait(ctx context.Context, v uint64) error {
	if f.Completed() >= v {
		return nil
	}
	f.mu.Lock()
	released := f.released
	f.mu.Unlock()
	if released {
		return fmt.Errorf("fence: %w", ErrReleased)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.dev.FenceTimeout())
		defer cancel()
	}
	err := f.dev.native.WaitFence(ctx, f.id, v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gpucore.ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: value %d, completed %d", ErrFenceTimeout, v, f.Completed())
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("dx12: wait fence: %w", err)
	}
}

// Release destroys the native fence.
func (f *Fence) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.released = true
	f.final = f.dev.native.FenceCompletedValue(f.id)
	f.dev.native.DestroyFence(f.id)
	return nil
}
