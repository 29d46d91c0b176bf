package dx12

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dx12/gpucore"
)

type frameFixture struct {
	dev *Device
	q   *CommandQueue
	fb  *FrameBuffer
	sc  *SwapChain
}

func newFrameFixture(t *testing.T, w, h, count uint32) *frameFixture {
	t.Helper()
	dev := newTestDevice(t)
	q := newTestQueue(t, dev)
	fb, err := NewFrameBuffer(dev, HeadlessWindow{W: w, H: h}, count)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fb.Release() })
	sc, err := NewSwapChain(dev, q, fb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Release() })
	return &frameFixture{dev: dev, q: q, fb: fb, sc: sc}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFrameLoop(t *testing.T) {
	f := newFrameFixture(t, 8, 4, 3)
	ctx := testContext(t)

	cl, err := NewCommandList(f.dev, "frame")
	require.NoError(t, err)
	defer cl.Release()

	for frame := uint32(0); frame < 5; frame++ {
		assert.Equal(t, frame%3, f.fb.BufferIndex(), "frame %d", frame)

		require.NoError(t, cl.Reset())
		require.NoError(t, f.fb.StartRendering(cl))
		assert.True(t, f.fb.Rendering())
		st, err := f.fb.BufferState(f.fb.BufferIndex())
		require.NoError(t, err)
		assert.Equal(t, gpucore.StateRenderTarget, st)
		require.NoError(t, f.fb.FinishRendering(cl))
		require.NoError(t, cl.Close())

		require.NoError(t, f.q.Execute(cl))
		require.NoError(t, f.sc.Present(1))
		require.NoError(t, f.q.Flush(ctx))
		require.NoError(t, f.sc.BeginFrame())

		for i := range f.fb.Count() {
			st, err := f.fb.BufferState(i)
			require.NoError(t, err)
			assert.Equal(t, gpucore.StatePresent, st, "buffer %d after frame %d", i, frame)
		}
	}
	assert.Equal(t, uint32(2), f.fb.BufferIndex())

	stats := softwareStats(t, f.dev)
	assert.Equal(t, uint64(5), stats.Presents)
	assert.Equal(t, uint64(10), stats.Clears, "color and depth per frame")

	gray := bytes.Repeat([]byte{128, 128, 128, 255}, 8*4)
	for i := range f.fb.Count() {
		buf, err := f.fb.BackBuffer(i)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("BackBuffer %d", i), buf.Name())
		px, err := buf.Readback(ctx, f.q)
		require.NoError(t, err)
		assert.Equal(t, gray, px, "buffer %d", i)
		assert.Equal(t, gpucore.StatePresent, buf.State())
	}
}

func TestFrameBufferClearColor(t *testing.T) {
	f := newFrameFixture(t, 2, 2, 2)
	ctx := testContext(t)
	f.fb.SetClearColor([4]float32{1, 0, 0.25, 1})

	cl := recordingList(t, f.dev)
	require.NoError(t, f.fb.StartRendering(cl))
	require.NoError(t, f.fb.FinishRendering(cl))
	run(t, f.q, cl)

	buf, err := f.fb.CurrentBackBuffer()
	require.NoError(t, err)
	px, err := buf.Readback(ctx, f.q)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{255, 0, 64, 255}, 4), px)
}

func TestFrameBufferMisuse(t *testing.T) {
	f := newFrameFixture(t, 4, 4, 2)

	idle, err := NewCommandList(f.dev, "idle")
	require.NoError(t, err)
	assert.ErrorIs(t, f.fb.StartRendering(idle), ErrListNotRecording)
	assert.False(t, f.fb.Rendering())

	cl := recordingList(t, f.dev)
	assert.ErrorIs(t, f.fb.FinishRendering(cl), ErrNotRendering)
	assert.Empty(t, nativeOps(t, cl))

	require.NoError(t, f.fb.StartRendering(cl))
	recorded := len(nativeOps(t, cl))
	assert.ErrorIs(t, f.fb.StartRendering(cl), ErrAlreadyRendering)
	assert.ErrorIs(t, f.fb.UpdateBufferIndex(1), ErrAlreadyRendering)
	assert.Len(t, nativeOps(t, cl), recorded, "rejected calls record nothing")

	assert.ErrorIs(t, f.sc.Present(0), ErrNotPresentable)

	require.NoError(t, f.fb.FinishRendering(cl))
	assert.ErrorIs(t, f.fb.FinishRendering(cl), ErrNotRendering)
	assert.ErrorIs(t, f.fb.UpdateBufferIndex(2), ErrIndexOutOfRange)
	require.NoError(t, cl.Close())
}

func TestPresentChecksSubmittedState(t *testing.T) {
	f := newFrameFixture(t, 4, 4, 2)

	start := recordingList(t, f.dev)
	require.NoError(t, f.fb.StartRendering(start))
	run(t, f.q, start)

	finish := recordingList(t, f.dev)
	require.NoError(t, f.fb.FinishRendering(finish))
	require.NoError(t, finish.Close())

	// The buffer is tracked as PRESENT, but the finishing list never ran.
	err := f.sc.Present(0)
	require.ErrorIs(t, err, ErrNotPresentable)
	assert.ErrorIs(t, err, gpucore.ErrInvalidState)
	assert.Equal(t, uint32(0), f.sc.CurrentBufferIndex())

	require.NoError(t, f.q.Execute(finish))
	require.NoError(t, f.sc.Present(0))
	assert.Equal(t, uint32(1), f.sc.CurrentBufferIndex())
}

func TestFrameBufferWithoutSwapChain(t *testing.T) {
	dev := newTestDevice(t)
	fb, err := NewFrameBuffer(dev, HeadlessWindow{W: 4, H: 4}, 0)
	require.NoError(t, err)
	defer fb.Release()

	assert.Equal(t, uint32(DefaultFrameCount), fb.Count())
	assert.Equal(t, dev.DisplayFormat(), fb.Format())
	assert.Equal(t, uint32(4), fb.Depth().Desc().Height)

	cl := recordingList(t, dev)
	assert.ErrorIs(t, fb.StartRendering(cl), ErrNoBuffers)
	_, err = fb.CurrentBackBuffer()
	assert.ErrorIs(t, err, ErrNoBuffers)

	_, err = NewFrameBuffer(dev, HeadlessWindow{W: 0, H: 4}, 2)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestSwapChainRelease(t *testing.T) {
	f := newFrameFixture(t, 4, 4, 2)
	require.NoError(t, f.sc.Release())
	require.NoError(t, f.sc.Release())

	assert.ErrorIs(t, f.sc.Present(0), ErrReleased)
	cl := recordingList(t, f.dev)
	assert.ErrorIs(t, f.fb.StartRendering(cl), ErrNoBuffers)
}

func TestRenderTarget(t *testing.T) {
	dev := newTestDevice(t)
	q := newTestQueue(t, dev)
	ctx := testContext(t)

	rt, err := NewRenderTarget(dev, 3, 2)
	require.NoError(t, err)
	defer rt.Release()
	assert.Equal(t, gpucore.StatePixelShaderResource, rt.State())
	assert.Equal(t, gpucore.StateDepthWrite, rt.Depth().State())

	cl := recordingList(t, dev)
	assert.ErrorIs(t, rt.FinishRendering(cl), ErrNotRendering)
	require.NoError(t, rt.StartRendering(cl))
	assert.Equal(t, gpucore.StateRenderTarget, rt.State())
	assert.ErrorIs(t, rt.StartRendering(cl), ErrAlreadyRendering)
	require.NoError(t, rt.FinishRendering(cl))
	run(t, q, cl)

	assert.Equal(t, gpucore.StatePixelShaderResource, rt.State())
	px, err := rt.Readback(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0, 128, 0, 255}, 6), px)

	heap := newHeap(t, dev, HeapTypeCBVSRVUAV, 2, HeapFlagShaderVisible)
	bind := recordingList(t, dev)
	assert.ErrorIs(t, rt.SetToCommandList(bind, 0), ErrNoView)
	_, err = rt.CreateView(heap)
	require.NoError(t, err)
	require.NoError(t, heap.SetToCommandList(bind))
	require.NoError(t, rt.SetToCommandList(bind, 0))
	require.NoError(t, bind.Close())
}

func TestRenderTargetClearColor(t *testing.T) {
	dev := newTestDevice(t)
	q := newTestQueue(t, dev)

	rt, err := NewRenderTarget(dev, 1, 1)
	require.NoError(t, err)
	defer rt.Release()
	rt.SetClearColor([4]float32{0, 0, 1, 0.5})

	cl := recordingList(t, dev)
	require.NoError(t, rt.StartRendering(cl))
	require.NoError(t, rt.FinishRendering(cl))
	run(t, q, cl)

	px, err := rt.Readback(testContext(t), q)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 128}, px)
}

func TestAbandonedFrame(t *testing.T) {
	f := newFrameFixture(t, 4, 4, 2)
	ctx := testContext(t)

	// Reset throws the open frame away.
	cl := recordingList(t, f.dev)
	require.NoError(t, f.fb.StartRendering(cl))
	require.NoError(t, cl.Reset())
	assert.False(t, f.fb.Rendering())
	st, err := f.fb.BufferState(0)
	require.NoError(t, err)
	assert.Equal(t, gpucore.StatePresent, st)

	// A failed Close does the same.
	cb, err := NewConstantBuffer(f.dev, 16, 1)
	require.NoError(t, err)
	defer cb.Release()
	require.NoError(t, f.fb.StartRendering(cl))
	require.NoError(t, cl.CopyBufferRegion(cb.Base(), 0, cb.Base(), 0, 0))
	assert.ErrorIs(t, cl.Close(), gpucore.ErrInvalidArgument)
	assert.Equal(t, ListIdle, cl.State())
	assert.False(t, f.fb.Rendering())

	// So does releasing an unsubmitted list.
	dropped := recordingList(t, f.dev)
	require.NoError(t, f.fb.StartRendering(dropped))
	require.NoError(t, dropped.Release())
	assert.False(t, f.fb.Rendering())
	st, err = f.fb.BufferState(0)
	require.NoError(t, err)
	assert.Equal(t, gpucore.StatePresent, st)

	require.NoError(t, cl.Reset())
	require.NoError(t, f.fb.StartRendering(cl))
	require.NoError(t, f.fb.FinishRendering(cl))
	require.NoError(t, cl.Close())
	require.NoError(t, f.q.Execute(cl))
	require.NoError(t, f.sc.Present(1))
	require.NoError(t, f.q.Flush(ctx))
	assert.Equal(t, uint64(1), softwareStats(t, f.dev).Presents)
}

func TestAbandonedFinishReopensFrame(t *testing.T) {
	f := newFrameFixture(t, 4, 4, 2)
	ctx := testContext(t)

	start := recordingList(t, f.dev)
	require.NoError(t, f.fb.StartRendering(start))
	run(t, f.q, start)

	finish := recordingList(t, f.dev)
	require.NoError(t, f.fb.FinishRendering(finish))
	require.NoError(t, finish.Reset())
	assert.True(t, f.fb.Rendering(), "the executed StartRendering still holds")
	st, err := f.fb.BufferState(0)
	require.NoError(t, err)
	assert.Equal(t, gpucore.StateRenderTarget, st)

	require.NoError(t, f.fb.FinishRendering(finish))
	run(t, f.q, finish)
	require.NoError(t, f.sc.Present(1))
	require.NoError(t, f.q.Flush(ctx))
	assert.False(t, f.fb.Rendering())
}

func TestRenderTargetAbandoned(t *testing.T) {
	dev := newTestDevice(t)
	q := newTestQueue(t, dev)

	rt, err := NewRenderTarget(dev, 2, 2)
	require.NoError(t, err)
	defer rt.Release()

	dropped := recordingList(t, dev)
	require.NoError(t, rt.StartRendering(dropped))
	require.NoError(t, dropped.Release())
	assert.Equal(t, gpucore.StatePixelShaderResource, rt.State())

	cl := recordingList(t, dev)
	require.NoError(t, rt.StartRendering(cl))
	require.NoError(t, rt.FinishRendering(cl))
	run(t, q, cl)
	assert.Equal(t, gpucore.StatePixelShaderResource, rt.State())
}
