package dx12

import (
	"context"
	"fmt"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/image"
)

// Pixels is a decoded RGBA8 image, rows packed without padding.
type Pixels = image.Pixels

// Texture is a 2D texture in default memory.
type Texture struct {
	GpuResource
}

func newTexture(dev *Device, label string, width, height uint32, format gpucore.Format,
	flags gpucore.ResourceFlags, state gpucore.ResourceState, clear *gpucore.ClearValue,
) (*Texture, error) {
	t := &Texture{}
	if err := t.create(dev, label, width, height, format, flags, state, clear); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Texture) create(dev *Device, label string, width, height uint32, format gpucore.Format,
	flags gpucore.ResourceFlags, state gpucore.ResourceState, clear *gpucore.ClearValue,
) error {
	desc := gpucore.ResourceDesc{
		Label:     label,
		Dimension: gpucore.DimensionTexture2D,
		Width:     uint64(width),
		Height:    height,
		MipLevels: 1,
		Format:    format,
		Flags:     flags,
	}
	return t.createCommitted(dev, gpucore.MemoryDefault, desc, 0, 1, 1, state, clear)
}

// NewRenderTexture creates a render-target-capable texture that starts in
// PIXEL_SHADER_RESOURCE with color as its optimized clear value.
func NewRenderTexture(dev *Device, width, height uint32, format gpucore.Format, color [4]float32) (*Texture, error) {
	t := &Texture{}
	if err := t.createRenderTexture(dev, fmt.Sprintf("RenderTexture %dx%d", width, height), width, height, format, color); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Texture) createRenderTexture(dev *Device, label string, width, height uint32, format gpucore.Format, color [4]float32) error {
	if format.IsDepth() {
		return fmt.Errorf("dx12: render texture format %s: %w", format, gpucore.ErrInvalidArgument)
	}
	return t.create(dev, label, width, height, format,
		gpucore.ResourceFlagAllowRenderTarget, gpucore.StatePixelShaderResource,
		&gpucore.ClearValue{Format: format, Color: color})
}

// Kind returns KindTexture.
func (t *Texture) Kind() ResourceKind { return KindTexture }

// Width returns the width in texels.
func (t *Texture) Width() uint32 { return uint32(t.desc.Width) } //nolint:gosec // G115: created from uint32

// Height returns the height in texels.
func (t *Texture) Height() uint32 { return t.desc.Height }

// Format returns the texel format.
func (t *Texture) Format() gpucore.Format { return t.desc.Format }

// CreateView writes a shader resource view into a new slot of heap.
func (t *Texture) CreateView(heap *DescriptorHeap) (Handle, error) {
	t.mustExist()
	if t.desc.Flags.Has(gpucore.ResourceFlagDenyShaderResource) {
		return Handle{}, fmt.Errorf("%w: %q", ErrShaderResourceDenied, t.Name())
	}
	if heap.Type() != HeapTypeCBVSRVUAV {
		return Handle{}, fmt.Errorf("%w: SRV in %s heap", ErrWrongHeapType, heap.Type())
	}
	h, err := heap.Allocate(1)
	if err != nil {
		return Handle{}, err
	}
	if err := t.dev.native.CreateShaderResourceView(h.CPU, t.id); err != nil {
		return Handle{}, fmt.Errorf("dx12: shader resource view of %q: %w", t.Name(), err)
	}
	t.setView(h, 1)
	return h, nil
}

// footprint returns the buffer layout used to copy the texture, rows
// aligned to the native pitch alignment.
func (t *Texture) footprint() gpucore.Footprint {
	row := uint64(t.Width()) * uint64(t.Format().BytesPerPixel())
	return gpucore.Footprint{
		Format:   t.Format(),
		Width:    t.Width(),
		Height:   t.Height(),
		RowPitch: uint32(gpucore.AlignUp(row, gpucore.TextureDataPitchAlignment)), //nolint:gosec // G115: bounded by texture width
	}
}

// Readback copies the texture to the CPU through q and returns its texels
// tightly packed. The texture is returned to its current state afterwards.
// If ctx ends before the copy completed, the staging buffer is freed by a
// later Flush or Release of q.
func (t *Texture) Readback(ctx context.Context, q *CommandQueue) ([]byte, error) {
	t.mustExist()
	fp := t.footprint()

	staging := &GpuResource{}
	err := staging.createCommitted(t.dev, gpucore.MemoryReadback, bufferDesc("readback "+t.Name()),
		fp.Size(), 1, 1, gpucore.StateCopyDest, nil)
	if err != nil {
		return nil, err
	}
	cl, err := NewCommandList(t.dev, "readback")
	if err != nil {
		_ = staging.release()
		return nil, err
	}
	free := func() {
		_ = cl.Release()
		_ = staging.release()
	}

	prev := t.State()
	err = recordSteps(
		cl.Reset,
		func() error { return cl.Transition(&t.GpuResource, gpucore.StateCopySource) },
		func() error { return cl.CopyTextureToBuffer(staging, fp, &t.GpuResource) },
		func() error { return cl.Transition(&t.GpuResource, prev) },
		cl.Close,
	)
	if err == nil {
		err = q.Execute(cl)
	}
	if err != nil {
		free()
		return nil, err
	}
	// A queue that refuses the signal was released, and releasing drained
	// the copy.
	v, err := q.Signal(q.Fence())
	if err != nil {
		free()
		return nil, err
	}
	if err := q.Fence().Wait(ctx, v); err != nil {
		q.retireAfter(v, free)
		return nil, err
	}
	q.collect()
	defer free()

	row := uint64(fp.Width) * uint64(fp.Format.BytesPerPixel())
	out := make([]byte, row*uint64(fp.Height))
	err = staging.mapped(func(src []byte) error {
		for y := uint64(0); y < uint64(fp.Height); y++ {
			copy(out[y*row:(y+1)*row], src[y*uint64(fp.RowPitch):])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTexture decodes an image file and uploads it, blocking until the GPU
// copy completed. The texture ends in PIXEL_SHADER_RESOURCE.
func LoadTexture(ctx context.Context, dev *Device, path string) (*Texture, error) {
	q, err := NewCommandQueue(dev, "texture load")
	if err != nil {
		return nil, err
	}
	defer q.Release()

	up, err := NewUploader(dev, q)
	if err != nil {
		return nil, err
	}
	textures, err := up.LoadTextures(ctx, path)
	if err != nil {
		_ = up.Abort()
		return nil, err
	}
	task, err := up.Submit()
	if err != nil {
		_ = up.Abort()
		return nil, err
	}
	if err := task.Wait(ctx); err != nil {
		// Releasing q drains it and runs the abandoned task's cleanup.
		task.Abandon()
		_ = q.Release()
		return nil, err
	}
	return textures[0], nil
}
