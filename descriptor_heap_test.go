package dx12

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dx12/gpucore"
)

func newHeap(t *testing.T, dev *Device, typ HeapType, capacity uint32, flags HeapFlags) *DescriptorHeap {
	t.Helper()
	h, err := NewDescriptorHeap(dev, typ, capacity, flags)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })
	return h
}

func TestDescriptorHeapCapacityFour(t *testing.T) {
	dev := newTestDevice(t)
	heap := newHeap(t, dev, HeapTypeCBVSRVUAV, 4, HeapFlagShaderVisible)

	a, err := heap.Allocate(1)
	require.NoError(t, err)
	b, err := heap.Allocate(2)
	require.NoError(t, err)
	c, err := heap.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 3}, []uint32{a.Index, b.Index, c.Index})

	_, err = heap.Allocate(1)
	assert.ErrorIs(t, err, ErrHeapFull)
	assert.Equal(t, uint32(4), heap.Allocated(), "failed allocation must not move the cursor")
	assert.Zero(t, heap.Remaining())
}

func TestDescriptorHeapHandles(t *testing.T) {
	dev := newTestDevice(t)
	visible := newHeap(t, dev, HeapTypeCBVSRVUAV, 8, HeapFlagShaderVisible)
	cpuOnly := newHeap(t, dev, HeapTypeRTV, 8, HeapFlagNone)

	for _, heap := range []*DescriptorHeap{visible, cpuOnly} {
		first, err := heap.Allocate(1)
		require.NoError(t, err)
		inc := heap.Increment()
		require.NotZero(t, inc)

		prev := first
		for i := uint32(1); i < 5; i++ {
			h, err := heap.Allocate(1)
			require.NoError(t, err)
			assert.Equal(t, i, h.Index)
			assert.Equal(t, first.CPU+gpucore.CPUAddress(i*inc), h.CPU)
			assert.Greater(t, h.CPU, prev.CPU, "allocator must be monotonic")
			if heap.ShaderVisible() {
				assert.Equal(t, first.GPU+gpucore.GPUAddress(i*inc), h.GPU)
			} else {
				assert.Zero(t, h.GPU)
			}
			again, err := heap.HandleFromIndex(i)
			require.NoError(t, err)
			assert.Equal(t, h, again)
			assert.Equal(t, h, first.Offset(i))
			prev = h
		}
		_, err = heap.HandleFromIndex(5)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}

func TestNewDescriptorHeapErrors(t *testing.T) {
	dev := newTestDevice(t)
	tests := []struct {
		name     string
		typ      HeapType
		capacity uint32
		flags    HeapFlags
		want     error
	}{
		{"zero capacity", HeapTypeCBVSRVUAV, 0, HeapFlagNone, ErrInvalidCapacity},
		{"visible rtv", HeapTypeRTV, 2, HeapFlagShaderVisible, ErrInvalidHeapFlags},
		{"visible dsv", HeapTypeDSV, 2, HeapFlagShaderVisible, ErrInvalidHeapFlags},
		{"unknown type", HeapType(9), 2, HeapFlagNone, gpucore.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewDescriptorHeap(dev, tt.typ, tt.capacity, tt.flags)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, h)
		})
	}
}

func TestDescriptorHeapAccessors(t *testing.T) {
	dev := newTestDevice(t)
	heap := newHeap(t, dev, HeapTypeCBVSRVUAV, 4, HeapFlagShaderVisible)

	assert.Equal(t, "DescriptorHeap type:CBV_SRV_UAV capacity:4 flags:SHADER_VISIBLE", heap.Label())
	assert.Equal(t, HeapTypeCBVSRVUAV, heap.Type())
	assert.Equal(t, HeapFlagShaderVisible, heap.Flags())
	assert.Equal(t, uint32(4), heap.Capacity())
	assert.True(t, heap.ShaderVisible())

	_, err := heap.Allocate(0)
	assert.ErrorIs(t, err, ErrInvalidCount)
	_, err = heap.Allocate(5)
	assert.ErrorIs(t, err, ErrHeapFull)
}

func TestDescriptorHeapReset(t *testing.T) {
	dev := newTestDevice(t)
	heap := newHeap(t, dev, HeapTypeCBVSRVUAV, 2, HeapFlagNone)

	first, err := heap.Allocate(2)
	require.NoError(t, err)
	heap.Reset()
	assert.Zero(t, heap.Allocated())
	again, err := heap.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, first.CPU, again.CPU)
}

func TestDescriptorHeapRelease(t *testing.T) {
	dev := newTestDevice(t)
	heap, err := NewDescriptorHeap(dev, HeapTypeCBVSRVUAV, 2, HeapFlagNone)
	require.NoError(t, err)

	require.NoError(t, heap.Release())
	require.NoError(t, heap.Release())
	_, err = heap.Allocate(1)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestDescriptorHeapSetToCommandList(t *testing.T) {
	dev := newTestDevice(t)
	cpuOnly := newHeap(t, dev, HeapTypeCBVSRVUAV, 2, HeapFlagNone)
	first := newHeap(t, dev, HeapTypeCBVSRVUAV, 2, HeapFlagShaderVisible)
	second := newHeap(t, dev, HeapTypeCBVSRVUAV, 2, HeapFlagShaderVisible)
	sampler := newHeap(t, dev, HeapTypeSampler, 2, HeapFlagShaderVisible)

	cl := recordingList(t, dev)
	assert.ErrorIs(t, cpuOnly.SetToCommandList(cl), ErrHeapNotShaderVisible)

	require.NoError(t, first.SetToCommandList(cl))
	require.NoError(t, sampler.SetToCommandList(cl))
	require.NoError(t, second.SetToCommandList(cl))
	assert.Same(t, second, cl.BoundHeap(HeapTypeCBVSRVUAV), "second heap of a type replaces the first")
	assert.Same(t, sampler, cl.BoundHeap(HeapTypeSampler))

	require.NoError(t, cl.Close(), "one heap per type reaches the native list")
	assert.ErrorIs(t, first.SetToCommandList(cl), ErrListNotRecording)
}

func TestDescriptorPool(t *testing.T) {
	dev := newTestDevice(t)
	heap := newHeap(t, dev, HeapTypeCBVSRVUAV, 8, HeapFlagShaderVisible)
	_, err := heap.Allocate(2)
	require.NoError(t, err)

	pool, err := NewDescriptorPool(heap, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Available())
	assert.Equal(t, uint32(5), heap.Allocated())

	a, err := pool.Acquire()
	require.NoError(t, err)
	b, err := pool.Acquire()
	require.NoError(t, err)
	c, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3, 4}, []uint32{a.Index, b.Index, c.Index})

	_, err = pool.Acquire()
	assert.ErrorIs(t, err, ErrHeapFull)

	require.NoError(t, pool.Free(b))
	assert.ErrorIs(t, pool.Free(b), ErrDoubleFree)
	again, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, b, again)

	outside, err := heap.HandleFromIndex(0)
	require.NoError(t, err)
	assert.ErrorIs(t, pool.Free(outside), ErrDescriptorNotOwned)

	_, err = NewDescriptorPool(heap, 4)
	assert.ErrorIs(t, err, ErrHeapFull)
}
