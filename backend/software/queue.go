package software

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// queue runs submitted work in order on a dedicated goroutine.
type queue struct {
	id    gpucore.QueueID
	label string

	mu      sync.Mutex
	work    chan func()
	stopped bool
	done    chan struct{}

	// quit ends fence waits of a stopping queue.
	quit   context.Context
	cancel context.CancelFunc
}

func newQueue(id gpucore.QueueID, label string) *queue {
	quit, cancel := context.WithCancel(context.Background())
	q := &queue{
		id:     id,
		label:  label,
		work:   make(chan func(), 64),
		done:   make(chan struct{}),
		quit:   quit,
		cancel: cancel,
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.done)
	for fn := range q.work {
		fn()
	}
}

// submit enqueues fn. Work enqueued before stop still runs.
func (q *queue) submit(fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return fmt.Errorf("%w: queue %q stopped", ErrDeviceDestroyed, q.label)
	}
	q.work <- fn
	return nil
}

// stop runs the remaining work and ends the worker. Pending fence waits
// are abandoned.
func (q *queue) stop() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.work)
	}
	q.mu.Unlock()
	q.cancel()
	<-q.done
}

// CreateCommandQueue creates a direct queue and starts its worker.
func (d *Device) CreateCommandQueue(label string) (gpucore.QueueID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.QueueID(d.newID())
	d.queues[id] = newQueue(id, label)
	return id, nil
}

func (d *Device) lookupQueue(id gpucore.QueueID) (*queue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	q, ok := d.queues[id]
	if !ok {
		return nil, fmt.Errorf("%w: queue %d", gpucore.ErrUnknownID, id)
	}
	return q, nil
}

// ExecuteCommandLists validates the lists against the current resource
// states and, if every list passes, queues their work. A rejected
// submission changes no state.
func (d *Device) ExecuteCommandLists(qid gpucore.QueueID, lists []gpucore.CommandList) error {
	q, err := d.lookupQueue(qid)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		return nil
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	sim := &simulation{dev: d, pending: make(map[*resource]gpucore.ResourceState)}
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok || cl.dev != d {
			return fmt.Errorf("%w: command list from another device", gpucore.ErrInvalidArgument)
		}
		if !cl.Closed() {
			return fmt.Errorf("execute %q: %w", cl.Label(), gpucore.ErrListNotClosed)
		}
		if err := cl.Err(); err != nil {
			return fmt.Errorf("execute %q: %w", cl.Label(), err)
		}
		if err := sim.run(cl.Ops()); err != nil {
			d.log().Warn("software: submission rejected", "list", cl.Label(), "err", err)
			return fmt.Errorf("execute %q: %w", cl.Label(), err)
		}
	}

	actions := sim.actions
	if err := q.submit(func() {
		d.memMu.Lock()
		for _, a := range actions {
			a()
		}
		d.memMu.Unlock()
		d.submissions.Add(1)
	}); err != nil {
		return err
	}
	sim.commit()
	return nil
}

// QueueSignal sets the fence to value once prior submissions on the queue
// have run.
func (d *Device) QueueSignal(qid gpucore.QueueID, fid gpucore.FenceID, value uint64) error {
	q, err := d.lookupQueue(qid)
	if err != nil {
		return err
	}
	f, err := d.lookupFence(fid)
	if err != nil {
		return err
	}
	return q.submit(func() { f.set(value) })
}

// QueueWait stalls the queue worker until the fence reaches value.
func (d *Device) QueueWait(qid gpucore.QueueID, fid gpucore.FenceID, value uint64) error {
	q, err := d.lookupQueue(qid)
	if err != nil {
		return err
	}
	f, err := d.lookupFence(fid)
	if err != nil {
		return err
	}
	return q.submit(func() {
		if err := f.wait(q.quit, value); err != nil {
			d.log().Warn("software: queue wait abandoned", "queue", q.label, "fence", fid, "value", value)
		}
	})
}

// DestroyCommandQueue drains and stops the queue.
func (d *Device) DestroyCommandQueue(id gpucore.QueueID) {
	d.mu.Lock()
	q, ok := d.queues[id]
	delete(d.queues, id)
	d.mu.Unlock()
	if ok {
		q.stop()
	}
}
