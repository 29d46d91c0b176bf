package software

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dx12/gpucore"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	dev, err := New().Open(0)
	require.NoError(t, err)
	t.Cleanup(dev.Destroy)
	return dev.(*Device)
}

// submit closes cl, executes it and waits for the queue to drain.
func submit(t *testing.T, d *Device, q gpucore.QueueID, cl gpucore.CommandList) {
	t.Helper()
	require.NoError(t, cl.Close())
	require.NoError(t, d.ExecuteCommandLists(q, []gpucore.CommandList{cl}))
	flush(t, d, q)
}

func flush(t *testing.T, d *Device, q gpucore.QueueID) {
	t.Helper()
	f, err := d.CreateFence(0)
	require.NoError(t, err)
	defer d.DestroyFence(f)
	require.NoError(t, d.QueueSignal(q, f, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.WaitFence(ctx, f, 1))
}

func texture(t *testing.T, d *Device, w, h uint32, format gpucore.Format, flags gpucore.ResourceFlags, initial gpucore.ResourceState) gpucore.ResourceID {
	t.Helper()
	id, err := d.CreateCommittedResource(gpucore.MemoryDefault, &gpucore.ResourceDesc{
		Label: "tex", Dimension: gpucore.DimensionTexture2D,
		Width: uint64(w), Height: h, MipLevels: 1, Format: format, Flags: flags,
	}, initial, nil)
	require.NoError(t, err)
	return id
}

func buffer(t *testing.T, d *Device, mem gpucore.MemoryKind, size uint64) gpucore.ResourceID {
	t.Helper()
	initial := gpucore.StateGenericRead
	switch mem {
	case gpucore.MemoryReadback:
		initial = gpucore.StateCopyDest
	case gpucore.MemoryDefault:
		initial = gpucore.StateCommon
	}
	id, err := d.CreateCommittedResource(mem, &gpucore.ResourceDesc{
		Label: "buf", Dimension: gpucore.DimensionBuffer, Width: size,
	}, initial, nil)
	require.NoError(t, err)
	return id
}

func TestBackendAdapters(t *testing.T) {
	b := New(WithAdapters("a", "b"))
	infos, err := b.EnumerateAdapters()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[1].Name)
	assert.Equal(t, gpucore.DeviceTypeSoftware, infos[0].DeviceType)

	_, err = b.Open(2)
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)

	b.Close()
	_, err = b.EnumerateAdapters()
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestDisplayModes(t *testing.T) {
	d := newTestDevice(t)
	modes, err := d.DisplayModes(gpucore.FormatBGRA8Unorm)
	require.NoError(t, err)
	require.Len(t, modes, len(DefaultDisplayModes))
	for _, m := range modes {
		assert.Equal(t, gpucore.FormatBGRA8Unorm, m.Format)
	}
	_, err = d.DisplayModes(gpucore.FormatD24UnormS8Uint)
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)
}

func TestTextureUploadReadback(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)

	const w, h = 3, 2
	pitch := uint32(gpucore.AlignUp(w*4, gpucore.TextureDataPitchAlignment))
	fp := gpucore.Footprint{Format: gpucore.FormatRGBA8Unorm, Width: w, Height: h, RowPitch: pitch}

	upload := buffer(t, d, gpucore.MemoryUpload, fp.Size())
	mem, err := d.Map(upload)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w*4; x++ {
			mem[y*int(pitch)+x] = byte(y*16 + x)
		}
	}
	d.Unmap(upload)

	tex := texture(t, d, w, h, gpucore.FormatRGBA8Unorm, 0, gpucore.StateCopyDest)
	readback := buffer(t, d, gpucore.MemoryReadback, fp.Size())

	cl, err := d.CreateCommandList("copy")
	require.NoError(t, err)
	cl.CopyBufferToTexture(tex, upload, fp)
	cl.ResourceBarrier(gpucore.Barrier{Resource: tex, Before: gpucore.StateCopyDest, After: gpucore.StateCopySource})
	cl.CopyTextureToBuffer(readback, fp, tex)
	submit(t, d, q, cl)

	out, err := d.Map(readback)
	require.NoError(t, err)
	defer d.Unmap(readback)
	for y := 0; y < h; y++ {
		assert.Equal(t, mem[y*int(pitch):y*int(pitch)+w*4], out[y*int(pitch):y*int(pitch)+w*4], "row %d", y)
	}

	st, ok := d.ResourceState(tex)
	require.True(t, ok)
	assert.Equal(t, gpucore.StateCopySource, st)
	assert.Equal(t, uint64(2), d.Stats().Copies)
	assert.Equal(t, uint64(1), d.Stats().Barriers)
}

func TestBarrierMismatchRejectsSubmission(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	tex := texture(t, d, 4, 4, gpucore.FormatRGBA8Unorm, gpucore.ResourceFlagAllowRenderTarget, gpucore.StatePixelShaderResource)

	cl, err := d.CreateCommandList("bad")
	require.NoError(t, err)
	cl.ResourceBarrier(
		gpucore.Barrier{Resource: tex, Before: gpucore.StatePixelShaderResource, After: gpucore.StateRenderTarget},
		gpucore.Barrier{Resource: tex, Before: gpucore.StatePixelShaderResource, After: gpucore.StateCopySource},
	)
	require.NoError(t, cl.Close())
	err = d.ExecuteCommandLists(q, []gpucore.CommandList{cl})
	assert.ErrorIs(t, err, gpucore.ErrInvalidBarrier)

	st, _ := d.ResourceState(tex)
	assert.Equal(t, gpucore.StatePixelShaderResource, st, "rejected submission must not change state")
}

func TestSelfTransitionFailsAtClose(t *testing.T) {
	d := newTestDevice(t)
	tex := texture(t, d, 4, 4, gpucore.FormatRGBA8Unorm, 0, gpucore.StateCopyDest)
	cl, err := d.CreateCommandList("self")
	require.NoError(t, err)
	cl.ResourceBarrier(gpucore.Barrier{Resource: tex, Before: gpucore.StateCopyDest, After: gpucore.StateCopyDest})
	assert.ErrorIs(t, cl.Close(), gpucore.ErrInvalidBarrier)
}

func TestExecuteOpenList(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	cl, err := d.CreateCommandList("open")
	require.NoError(t, err)
	err = d.ExecuteCommandLists(q, []gpucore.CommandList{cl})
	assert.ErrorIs(t, err, gpucore.ErrListNotClosed)
}

func TestClearRenderTarget(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)

	heap, err := d.CreateDescriptorHeap(&gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeRTV, Capacity: 1})
	require.NoError(t, err)
	rtv, _, err := d.DescriptorHeapStart(heap)
	require.NoError(t, err)

	tex := texture(t, d, 2, 2, gpucore.FormatRGBA8Unorm, gpucore.ResourceFlagAllowRenderTarget, gpucore.StateRenderTarget)
	require.NoError(t, d.CreateRenderTargetView(rtv, tex))

	fp := gpucore.Footprint{Format: gpucore.FormatRGBA8Unorm, Width: 2, Height: 2, RowPitch: 256}
	readback := buffer(t, d, gpucore.MemoryReadback, fp.Size())

	cl, err := d.CreateCommandList("clear")
	require.NoError(t, err)
	cl.ClearRenderTargetView(rtv, [4]float32{0, 0.5, 0, 1})
	cl.ResourceBarrier(gpucore.Barrier{Resource: tex, Before: gpucore.StateRenderTarget, After: gpucore.StateCopySource})
	cl.CopyTextureToBuffer(readback, fp, tex)
	submit(t, d, q, cl)

	out, err := d.Map(readback)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 128, 0, 255, 0, 128, 0, 255}, out[:8])
	assert.Equal(t, []byte{0, 128, 0, 255}, out[256:260])
}

func TestClearRequiresRenderTargetState(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	heap, err := d.CreateDescriptorHeap(&gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeRTV, Capacity: 1})
	require.NoError(t, err)
	rtv, _, _ := d.DescriptorHeapStart(heap)
	tex := texture(t, d, 2, 2, gpucore.FormatRGBA8Unorm, gpucore.ResourceFlagAllowRenderTarget, gpucore.StatePixelShaderResource)
	require.NoError(t, d.CreateRenderTargetView(rtv, tex))

	cl, err := d.CreateCommandList("clear")
	require.NoError(t, err)
	cl.ClearRenderTargetView(rtv, [4]float32{1, 1, 1, 1})
	require.NoError(t, cl.Close())
	assert.ErrorIs(t, d.ExecuteCommandLists(q, []gpucore.CommandList{cl}), gpucore.ErrInvalidState)
}

func TestDepthClearEncoding(t *testing.T) {
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0x00}, encodeDepth(gpucore.FormatD24UnormS8Uint, 1, 0))
	assert.Equal(t, []byte{0, 0, 0, 7}, encodeDepth(gpucore.FormatD24UnormS8Uint, 0, 7))
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, encodeDepth(gpucore.FormatD32Float, 1, 0))
	assert.Equal(t, []byte{3, 2, 1, 4}, encodeColor(gpucore.FormatBGRA8Unorm, [4]float32{1.0 / 255, 2.0 / 255, 3.0 / 255, 4.0 / 255}))
}

func TestWaitFenceTimeout(t *testing.T) {
	d := newTestDevice(t)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.WaitFence(ctx, f, 1), gpucore.ErrWaitTimeout)

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	err = d.WaitFence(ctx, f, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, gpucore.ErrWaitTimeout)
}

func TestQueueSignalFollowsSubmission(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	for v := uint64(1); v <= 3; v++ {
		cl, err := d.CreateCommandList("noop")
		require.NoError(t, err)
		require.NoError(t, cl.Close())
		require.NoError(t, d.ExecuteCommandLists(q, []gpucore.CommandList{cl}))
		require.NoError(t, d.QueueSignal(q, f, v))
	}
	require.NoError(t, d.WaitFence(context.Background(), f, 3))
	assert.Equal(t, uint64(3), d.FenceCompletedValue(f))
	assert.Equal(t, uint64(3), d.Stats().Submissions)
}

func TestFenceNeverMovesBackwards(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	gate, err := d.CreateFence(0)
	require.NoError(t, err)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	// The queue signal of 1 stays queued behind the gate while the CPU
	// signals 2.
	require.NoError(t, d.QueueWait(q, gate, 1))
	require.NoError(t, d.QueueSignal(q, f, 1))
	require.NoError(t, d.SignalFence(f, 2))
	assert.Equal(t, uint64(2), d.FenceCompletedValue(f))

	require.NoError(t, d.SignalFence(gate, 1))
	flush(t, d, q)
	assert.Equal(t, uint64(2), d.FenceCompletedValue(f))
}

func TestQueueWaitHoldsLaterWork(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	gate, err := d.CreateFence(0)
	require.NoError(t, err)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, d.QueueWait(q, gate, 1))
	require.NoError(t, d.QueueSignal(q, f, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.WaitFence(ctx, f, 1), gpucore.ErrWaitTimeout)

	require.NoError(t, d.SignalFence(gate, 1))
	require.NoError(t, d.WaitFence(context.Background(), f, 1))
	assert.ErrorIs(t, d.QueueWait(q, gpucore.FenceID(999), 1), gpucore.ErrUnknownID)
}

func TestDestroyQueueAbandonsWait(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	gate, err := d.CreateFence(0)
	require.NoError(t, err)
	f, err := d.CreateFence(0)
	require.NoError(t, err)

	require.NoError(t, d.QueueWait(q, gate, 1))
	require.NoError(t, d.QueueSignal(q, f, 1))
	d.DestroyCommandQueue(q)
	assert.Equal(t, uint64(1), d.FenceCompletedValue(f))
}

func TestDrawRequiresBindings(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	cl, err := d.CreateCommandList("draw")
	require.NoError(t, err)
	cl.DrawInstanced(3, 1, 0, 0)
	require.NoError(t, cl.Close())
	assert.ErrorIs(t, d.ExecuteCommandLists(q, []gpucore.CommandList{cl}), ErrNotBound)
}

func TestNonVisibleHeapCannotBeSet(t *testing.T) {
	d := newTestDevice(t)
	heap, err := d.CreateDescriptorHeap(&gpucore.DescriptorHeapDesc{Type: gpucore.HeapTypeCBVSRVUAV, Capacity: 4})
	require.NoError(t, err)
	cl, err := d.CreateCommandList("heaps")
	require.NoError(t, err)
	cl.SetDescriptorHeaps(heap)
	assert.ErrorIs(t, cl.Close(), gpucore.ErrInvalidArgument)
}

func TestConstantBufferViewAlignment(t *testing.T) {
	d := newTestDevice(t)
	heap, err := d.CreateDescriptorHeap(&gpucore.DescriptorHeapDesc{
		Type: gpucore.HeapTypeCBVSRVUAV, Capacity: 2, Flags: gpucore.HeapFlagShaderVisible,
	})
	require.NoError(t, err)
	cpu, _, err := d.DescriptorHeapStart(heap)
	require.NoError(t, err)
	cb := buffer(t, d, gpucore.MemoryUpload, 512)

	assert.NoError(t, d.CreateConstantBufferView(cpu, cb, 256, 256))
	assert.ErrorIs(t, d.CreateConstantBufferView(cpu, cb, 0, 100), gpucore.ErrInvalidArgument)
	assert.ErrorIs(t, d.CreateConstantBufferView(cpu, cb, 256, 512), ErrOutOfRange)
}

func TestSwapChainPresent(t *testing.T) {
	d := newTestDevice(t)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	sc, err := d.CreateSwapChain(q, &gpucore.SwapChainDesc{
		Label: "chain", Width: 8, Height: 8, BufferCount: 3, Format: gpucore.FormatRGBA8Unorm,
	})
	require.NoError(t, err)

	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, i%3, d.CurrentBackBufferIndex(sc))
		buf, err := d.SwapChainBuffer(sc, d.CurrentBackBufferIndex(sc))
		require.NoError(t, err)

		cl, err := d.CreateCommandList("frame")
		require.NoError(t, err)
		cl.ResourceBarrier(gpucore.Barrier{Resource: buf, Before: gpucore.StatePresent, After: gpucore.StateRenderTarget})
		cl.ResourceBarrier(gpucore.Barrier{Resource: buf, Before: gpucore.StateRenderTarget, After: gpucore.StatePresent})
		submit(t, d, q, cl)
		require.NoError(t, d.Present(sc, 1))
	}
	flush(t, d, q)
	assert.Equal(t, uint64(4), d.Stats().Presents)

	buf, err := d.SwapChainBuffer(sc, d.CurrentBackBufferIndex(sc))
	require.NoError(t, err)
	cl, err := d.CreateCommandList("leave in rt")
	require.NoError(t, err)
	cl.ResourceBarrier(gpucore.Barrier{Resource: buf, Before: gpucore.StatePresent, After: gpucore.StateRenderTarget})
	submit(t, d, q, cl)
	assert.ErrorIs(t, d.Present(sc, 1), gpucore.ErrInvalidState)

	_, err = d.CreateSwapChain(q, &gpucore.SwapChainDesc{Width: 8, Height: 8, BufferCount: 1, Format: gpucore.FormatRGBA8Unorm})
	assert.ErrorIs(t, err, gpucore.ErrInvalidArgument)
}

func TestDestroyedDevice(t *testing.T) {
	d := NewDevice(gpucore.AdapterInfo{Name: "x"}, nil)
	q, err := d.CreateCommandQueue("direct")
	require.NoError(t, err)
	d.Destroy()
	_, err = d.CreateFence(0)
	assert.ErrorIs(t, err, ErrDeviceDestroyed)
	_, err = d.lookupQueue(q)
	assert.ErrorIs(t, err, ErrDeviceDestroyed)
	d.Destroy()
}
