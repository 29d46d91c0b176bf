package dx12

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/image"
)

// Uploader batches texture and buffer uploads into one command list. Submit
// executes the batch and returns an UploadTask tracking one fence value.
type Uploader struct {
	dev   *Device
	queue *CommandQueue
	cl    *CommandList

	mu        sync.Mutex
	staging   []*GpuResource
	created   []releaser
	submitted bool
}

// NewUploader creates an uploader submitting on q.
func NewUploader(dev *Device, q *CommandQueue) (*Uploader, error) {
	cl, err := NewCommandList(dev, "uploader")
	if err != nil {
		return nil, err
	}
	if err := cl.Reset(); err != nil {
		_ = cl.Release()
		return nil, err
	}
	return &Uploader{dev: dev, queue: q, cl: cl}, nil
}

func (u *Uploader) begin() error {
	if u.submitted {
		return ErrUploaderSubmitted
	}
	return nil
}

// stage creates an upload buffer of size bytes filled by fill.
func (u *Uploader) stage(label string, size uint64, fill func([]byte)) (*GpuResource, error) {
	s := &GpuResource{}
	err := s.createCommitted(u.dev, gpucore.MemoryUpload, bufferDesc("staging "+label), size, 1, 1, gpucore.StateGenericRead, nil)
	if err != nil {
		return nil, err
	}
	err = s.mapped(func(dst []byte) error {
		fill(dst)
		return nil
	})
	if err != nil {
		_ = s.release()
		return nil, err
	}
	u.staging = append(u.staging, s)
	return s, nil
}

// UploadTexture records the upload of px into a new RGBA8 texture. The
// texture is usable once the task returned by Submit completed.
func (u *Uploader) UploadTexture(px *Pixels, label string) (*Texture, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.begin(); err != nil {
		return nil, err
	}
	if px == nil || px.Width <= 0 || px.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %q", ErrInvalidSize, label)
	}
	//nolint:gosec // G115: decoded image sizes fit uint32
	tex, err := newTexture(u.dev, label, uint32(px.Width), uint32(px.Height), gpucore.FormatRGBA8Unorm,
		gpucore.ResourceFlagNone, gpucore.StateCopyDest, nil)
	if err != nil {
		return nil, err
	}
	fp := tex.footprint()
	row := px.RowBytes()
	src, err := u.stage(label, fp.Size(), func(dst []byte) {
		for y := range px.Height {
			copy(dst[y*int(fp.RowPitch):], px.Data[y*row:(y+1)*row])
		}
	})
	if err != nil {
		_ = tex.Release()
		return nil, err
	}
	err = recordSteps(
		func() error { return u.cl.CopyBufferToTexture(&tex.GpuResource, src, fp) },
		func() error { return u.cl.Transition(&tex.GpuResource, gpucore.StatePixelShaderResource) },
	)
	if err != nil {
		_ = tex.Release()
		return nil, err
	}
	u.created = append(u.created, tex)
	return tex, nil
}

// UploadBuffer records the upload of data into a new default-memory buffer
// of stride-sized elements, left in state final.
func (u *Uploader) UploadBuffer(data []byte, stride uint32, final gpucore.ResourceState, label string) (*GpuResource, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.begin(); err != nil {
		return nil, err
	}
	if stride == 0 || len(data) == 0 || len(data)%int(stride) != 0 {
		return nil, fmt.Errorf("%w: %d bytes with stride %d", ErrDataSize, len(data), stride)
	}
	buf := &GpuResource{}
	//nolint:gosec // G115: element counts fit uint32
	err := buf.createCommitted(u.dev, gpucore.MemoryDefault, bufferDesc(label), uint64(stride),
		uint32(len(data)/int(stride)), 1, gpucore.StateCopyDest, nil)
	if err != nil {
		return nil, err
	}
	src, err := u.stage(label, uint64(len(data)), func(dst []byte) { copy(dst, data) })
	if err != nil {
		_ = buf.release()
		return nil, err
	}
	err = recordSteps(
		func() error { return u.cl.CopyBufferRegion(buf, 0, src, 0, uint64(len(data))) },
		func() error { return u.cl.Transition(buf, final) },
	)
	if err != nil {
		_ = buf.release()
		return nil, err
	}
	u.created = append(u.created, buf)
	return buf, nil
}

// LoadTextures decodes the files concurrently and records their uploads in
// path order.
func (u *Uploader) LoadTextures(ctx context.Context, paths ...string) ([]*Texture, error) {
	images := make([]*Pixels, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			px, err := image.Load(p)
			if err != nil {
				return fmt.Errorf("dx12: load %s: %w", p, err)
			}
			images[i] = px
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Texture, len(paths))
	for i, px := range images {
		tex, err := u.UploadTexture(px, filepath.Base(paths[i]))
		if err != nil {
			return nil, err
		}
		out[i] = tex
	}
	return out, nil
}

// Pending returns the number of recorded uploads.
func (u *Uploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.created)
}

// Submit closes and executes the batch and signals the queue fence.
func (u *Uploader) Submit() (*UploadTask, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.begin(); err != nil {
		return nil, err
	}
	if err := u.cl.Close(); err != nil {
		return nil, err
	}
	if err := u.queue.Execute(u.cl); err != nil {
		return nil, err
	}
	fence := u.queue.Fence()
	v, err := u.queue.Signal(fence)
	if err != nil {
		return nil, err
	}
	u.submitted = true
	u.dev.log().Debug("dx12: uploads submitted", "count", len(u.created), "fence", v)
	return &UploadTask{queue: u.queue, value: v, staging: u.staging, created: u.created, cl: u.cl}, nil
}

// Abort releases everything recorded so far without submitting.
func (u *Uploader) Abort() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.begin(); err != nil {
		return err
	}
	u.submitted = true
	for _, s := range u.staging {
		_ = s.release()
	}
	for _, r := range u.created {
		_ = r.Release()
	}
	u.staging, u.created = nil, nil
	return u.cl.Release()
}

type releaser interface{ Release() error }

// UploadTask is a submitted upload batch.
type UploadTask struct {
	queue   *CommandQueue
	value   uint64
	staging []*GpuResource
	created []releaser
	cl      *CommandList

	once sync.Once
	err  error
}

// Value returns the fence value the batch completes at.
func (t *UploadTask) Value() uint64 { return t.value }

// Done reports whether the batch completed.
func (t *UploadTask) Done() bool { return t.queue.Fence().Completed() >= t.value }

// Wait blocks until the batch completed and then frees the staging memory.
// The staging memory is freed once, by the first successful Wait.
func (t *UploadTask) Wait(ctx context.Context) error {
	if err := t.queue.Fence().Wait(ctx, t.value); err != nil {
		return err
	}
	t.finish(false)
	return t.err
}

// Abandon gives up on the batch: the staging memory, the command list and
// the uploaded resources are released once the batch completed. That is
// now if it already has, otherwise the next Flush or Release of the queue.
// Resources returned by the uploader must not be used afterwards.
// After a successful Wait, Abandon has no effect.
func (t *UploadTask) Abandon() {
	t.queue.retireAfter(t.value, func() { t.finish(true) })
}

// finish frees the transient objects once; abandon also frees the
// uploaded resources.
func (t *UploadTask) finish(abandon bool) {
	t.once.Do(func() {
		for _, s := range t.staging {
			_ = s.release()
		}
		t.staging = nil
		t.err = t.cl.Release()
		if abandon {
			for _, r := range t.created {
				_ = r.Release()
			}
		}
		t.created = nil
	})
}
