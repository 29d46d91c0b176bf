package dx12

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// CommandQueue submits command lists and signals fences in submission
// order. It owns a fence used by Flush.
type CommandQueue struct {
	dev   *Device
	id    gpucore.QueueID
	label string
	fence *Fence

	mu       sync.Mutex
	pending  []*CommandList
	retiring []retiree
	released bool
}

// retiree is cleanup deferred until the queue fence passes value.
type retiree struct {
	value uint64
	fn    func()
}

// NewCommandQueue creates a direct queue.
func NewCommandQueue(dev *Device, label string) (*CommandQueue, error) {
	if err := dev.checkAlive(); err != nil {
		return nil, err
	}
	id, err := dev.native.CreateCommandQueue(label)
	if err != nil {
		return nil, fmt.Errorf("dx12: create queue %q: %w", label, err)
	}
	f, err := NewFence(dev, 0)
	if err != nil {
		dev.native.DestroyCommandQueue(id)
		return nil, err
	}
	return &CommandQueue{dev: dev, id: id, label: label, fence: f}, nil
}

// Fence returns the queue-owned fence.
func (q *CommandQueue) Fence() *Fence { return q.fence }

// Label returns the debug label.
func (q *CommandQueue) Label() string { return q.label }

// Execute submits Closed lists in order. Either every list is submitted or
// none is.
func (q *CommandQueue) Execute(lists ...*CommandList) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return fmt.Errorf("queue %q: %w", q.label, ErrReleased)
	}
	natives := make([]gpucore.CommandList, len(lists))
	for i, l := range lists {
		if l.dev != q.dev {
			return fmt.Errorf("dx12: list %q belongs to another device: %w", l.label, gpucore.ErrInvalidArgument)
		}
		if err := l.checkClosed(); err != nil {
			return err
		}
		natives[i] = l.native
	}
	if err := q.dev.native.ExecuteCommandLists(q.id, natives); err != nil {
		return fmt.Errorf("dx12: execute on %q: %w", q.label, err)
	}
	for _, l := range lists {
		l.markSubmitted()
	}
	q.pending = append(q.pending, lists...)
	return nil
}

// Signal signals f to its next value after all submitted work and returns
// that value.
func (q *CommandQueue) Signal(f *Fence) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v := f.LastSignaled() + 1
	if err := q.signalLocked(f, v); err != nil {
		return 0, err
	}
	return v, nil
}

// SignalValue signals f to v after all submitted work. v must exceed every
// value signaled on f before.
func (q *CommandQueue) SignalValue(f *Fence, v uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.signalLocked(f, v)
}

func (q *CommandQueue) signalLocked(f *Fence, v uint64) error {
	if q.released {
		return fmt.Errorf("queue %q: %w", q.label, ErrReleased)
	}
	err := f.advance(v, func() error {
		return q.dev.native.QueueSignal(q.id, f.id, v)
	})
	if err != nil {
		return err
	}
	for _, l := range q.pending {
		l.attach(f, v)
	}
	q.pending = q.pending[:0]
	return nil
}

// Wait holds back work executed on q after this call until f reaches v.
// The calling goroutine does not block.
func (q *CommandQueue) Wait(f *Fence, v uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return fmt.Errorf("queue %q: %w", q.label, ErrReleased)
	}
	if err := q.dev.native.QueueWait(q.id, f.id, v); err != nil {
		return fmt.Errorf("dx12: queue %q wait for %d: %w", q.label, v, err)
	}
	return nil
}

// Flush waits for all work submitted so far and runs the cleanup that
// was waiting on it.
func (q *CommandQueue) Flush(ctx context.Context) error {
	v, err := q.Signal(q.fence)
	if err != nil {
		return err
	}
	if err := q.fence.Wait(ctx, v); err != nil {
		return err
	}
	q.collect()
	return nil
}

// retireAfter runs fn once the queue fence reached v: now if it already
// has, otherwise from a later Flush or Release.
func (q *CommandQueue) retireAfter(v uint64, fn func()) {
	if q.fence.Completed() >= v {
		fn()
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		q.dev.log().Warn("dx12: cleanup dropped, queue released before completion",
			"queue", q.label, "value", v)
		return
	}
	q.retiring = append(q.retiring, retiree{value: v, fn: fn})
}

// collect runs the deferred cleanup whose fence value passed.
func (q *CommandQueue) collect() {
	done := q.fence.Completed()
	q.mu.Lock()
	var due []func()
	kept := q.retiring[:0]
	for _, r := range q.retiring {
		if r.value <= done {
			due = append(due, r.fn)
		} else {
			kept = append(kept, r)
		}
	}
	q.retiring = kept
	q.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

// Release drains the queue, bounded by the device fence timeout, runs the
// deferred cleanup and destroys the queue. A drain that times out is
// reported but the queue is destroyed anyway.
func (q *CommandQueue) Release() error {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return nil
	}
	var (
		v   uint64
		err error
	)
	busy := len(q.pending) > 0 || len(q.retiring) > 0 || q.fence.Completed() < q.fence.LastSignaled()
	if busy {
		v = q.fence.LastSignaled() + 1
		err = q.signalLocked(q.fence, v)
	}
	q.released = true
	q.mu.Unlock()

	if busy && err == nil {
		err = q.fence.Wait(context.Background(), v)
	}
	q.dev.native.DestroyCommandQueue(q.id)
	if err != nil && busy && q.fence.Completed() >= v {
		err = nil
	}
	q.collect()

	q.mu.Lock()
	if n := len(q.retiring); n > 0 {
		q.dev.log().Warn("dx12: queue released with unfinished work", "queue", q.label, "cleanups", n)
	}
	q.retiring = nil
	q.mu.Unlock()
	return errors.Join(err, q.fence.Release())
}
