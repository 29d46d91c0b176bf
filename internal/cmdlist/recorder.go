// Package cmdlist records gpucore command list calls into a replayable op
// stream shared by the backends.
package cmdlist

import (
	"fmt"
	"sync"

	"github.com/gogpu/dx12/gpucore"
)

// OpKind identifies a recorded command.
type OpKind uint8

// Recorded command kinds.
const (
	OpBarrier OpKind = iota
	OpCopyBuffer
	OpCopyBufferToTexture
	OpCopyTextureToBuffer
	OpClearRTV
	OpClearDSV
	OpSetRenderTargets
	OpSetViewports
	OpSetScissorRects
	OpSetDescriptorHeaps
	OpSetRootSignature
	OpSetRootTable
	OpSetPipeline
	OpSetVertexBuffers
	OpSetIndexBuffer
	OpDraw
	OpDrawIndexed
)

// String returns the native-style name of the command.
func (k OpKind) String() string {
	switch k {
	case OpBarrier:
		return "ResourceBarrier"
	case OpCopyBuffer:
		return "CopyBufferRegion"
	case OpCopyBufferToTexture:
		return "CopyBufferToTexture"
	case OpCopyTextureToBuffer:
		return "CopyTextureToBuffer"
	case OpClearRTV:
		return "ClearRenderTargetView"
	case OpClearDSV:
		return "ClearDepthStencilView"
	case OpSetRenderTargets:
		return "OMSetRenderTargets"
	case OpSetViewports:
		return "RSSetViewports"
	case OpSetScissorRects:
		return "RSSetScissorRects"
	case OpSetDescriptorHeaps:
		return "SetDescriptorHeaps"
	case OpSetRootSignature:
		return "SetGraphicsRootSignature"
	case OpSetRootTable:
		return "SetGraphicsRootDescriptorTable"
	case OpSetPipeline:
		return "SetPipelineState"
	case OpSetVertexBuffers:
		return "IASetVertexBuffers"
	case OpSetIndexBuffer:
		return "IASetIndexBuffer"
	case OpDraw:
		return "DrawInstanced"
	case OpDrawIndexed:
		return "DrawIndexedInstanced"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Op is one recorded command. Only the fields relevant to Kind are set.
type Op struct {
	Kind OpKind

	Barriers []gpucore.Barrier

	Dst, Src             gpucore.ResourceID
	DstOffset, SrcOffset uint64
	Size                 uint64
	Footprint            gpucore.Footprint

	Target  gpucore.CPUAddress
	Targets []gpucore.CPUAddress
	Depth   *gpucore.CPUAddress
	Color   [4]float32
	ClearZ  float32
	Stencil uint8

	Viewports []gpucore.Viewport
	Scissors  []gpucore.Rect

	Heaps         []gpucore.HeapID
	RootSignature gpucore.RootSignatureID
	Pipeline      gpucore.PipelineID
	Index         uint32
	Table         gpucore.GPUAddress

	StartSlot     uint32
	VertexBuffers []gpucore.VertexBufferView
	IndexBuffer   *gpucore.IndexBufferView

	Count, Instances, Start, StartInstance uint32
	BaseVertex                             int32
}

// Validator checks an op at record time. A non-nil error is kept as the
// list's recording error.
type Validator func(op *Op) error

// Recorder implements the recording half of gpucore.CommandList.
//
// Recorder is safe for concurrent use, but ops recorded concurrently
// interleave in an unspecified order.
type Recorder struct {
	mu       sync.Mutex
	id       gpucore.CommandListID
	label    string
	ops      []Op
	closed   bool
	err      error
	validate Validator
}

// NewRecorder creates a recorder in the recording state.
func NewRecorder(id gpucore.CommandListID, label string, validate Validator) *Recorder {
	return &Recorder{id: id, label: label, validate: validate}
}

// ID returns the list ID.
func (r *Recorder) ID() gpucore.CommandListID { return r.id }

// Label returns the debug label.
func (r *Recorder) Label() string { return r.label }

// Reset discards recorded ops and reopens the recorder.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = r.ops[:0]
	r.closed = false
	r.err = nil
	return nil
}

// Close ends recording and returns the first recording error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("close %q: %w", r.label, gpucore.ErrListClosed)
	}
	r.closed = true
	return r.err
}

// Closed reports whether the recorder has been closed.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Err returns the first recording error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Ops returns a copy of the recorded op stream.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		if r.err == nil {
			r.err = fmt.Errorf("%s on %q: %w", op.Kind, r.label, gpucore.ErrListClosed)
		}
		return
	}
	if r.validate != nil && r.err == nil {
		if err := r.validate(&op); err != nil {
			r.err = fmt.Errorf("%s on %q: %w", op.Kind, r.label, err)
			return
		}
	}
	r.ops = append(r.ops, op)
}

// ResourceBarrier records state transitions.
func (r *Recorder) ResourceBarrier(barriers ...gpucore.Barrier) {
	r.record(Op{Kind: OpBarrier, Barriers: append([]gpucore.Barrier(nil), barriers...)})
}

// CopyBufferRegion records a buffer to buffer copy.
func (r *Recorder) CopyBufferRegion(dst gpucore.ResourceID, dstOffset uint64, src gpucore.ResourceID, srcOffset, size uint64) {
	r.record(Op{Kind: OpCopyBuffer, Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, Size: size})
}

// CopyBufferToTexture records a footprint copy into a texture.
func (r *Recorder) CopyBufferToTexture(dst, src gpucore.ResourceID, layout gpucore.Footprint) {
	r.record(Op{Kind: OpCopyBufferToTexture, Dst: dst, Src: src, Footprint: layout})
}

// CopyTextureToBuffer records a texture copy into a buffer footprint.
func (r *Recorder) CopyTextureToBuffer(dst gpucore.ResourceID, layout gpucore.Footprint, src gpucore.ResourceID) {
	r.record(Op{Kind: OpCopyTextureToBuffer, Dst: dst, Src: src, Footprint: layout})
}

// ClearRenderTargetView records a color clear.
func (r *Recorder) ClearRenderTargetView(rtv gpucore.CPUAddress, color [4]float32) {
	r.record(Op{Kind: OpClearRTV, Target: rtv, Color: color})
}

// ClearDepthStencilView records a depth and stencil clear.
func (r *Recorder) ClearDepthStencilView(dsv gpucore.CPUAddress, depth float32, stencil uint8) {
	r.record(Op{Kind: OpClearDSV, Target: dsv, ClearZ: depth, Stencil: stencil})
}

// SetRenderTargets records output merger bindings.
func (r *Recorder) SetRenderTargets(rtvs []gpucore.CPUAddress, dsv *gpucore.CPUAddress) {
	op := Op{Kind: OpSetRenderTargets, Targets: append([]gpucore.CPUAddress(nil), rtvs...)}
	if dsv != nil {
		d := *dsv
		op.Depth = &d
	}
	r.record(op)
}

// SetViewports records rasterizer viewports.
func (r *Recorder) SetViewports(viewports ...gpucore.Viewport) {
	r.record(Op{Kind: OpSetViewports, Viewports: append([]gpucore.Viewport(nil), viewports...)})
}

// SetScissorRects records scissor rectangles.
func (r *Recorder) SetScissorRects(rects ...gpucore.Rect) {
	r.record(Op{Kind: OpSetScissorRects, Scissors: append([]gpucore.Rect(nil), rects...)})
}

// SetDescriptorHeaps records bound descriptor heaps.
func (r *Recorder) SetDescriptorHeaps(heaps ...gpucore.HeapID) {
	r.record(Op{Kind: OpSetDescriptorHeaps, Heaps: append([]gpucore.HeapID(nil), heaps...)})
}

// SetGraphicsRootSignature records the bound root signature.
func (r *Recorder) SetGraphicsRootSignature(id gpucore.RootSignatureID) {
	r.record(Op{Kind: OpSetRootSignature, RootSignature: id})
}

// SetGraphicsRootDescriptorTable records a descriptor table binding.
func (r *Recorder) SetGraphicsRootDescriptorTable(index uint32, base gpucore.GPUAddress) {
	r.record(Op{Kind: OpSetRootTable, Index: index, Table: base})
}

// SetPipelineState records the bound pipeline.
func (r *Recorder) SetPipelineState(id gpucore.PipelineID) {
	r.record(Op{Kind: OpSetPipeline, Pipeline: id})
}

// SetVertexBuffers records vertex buffer bindings.
func (r *Recorder) SetVertexBuffers(startSlot uint32, views ...gpucore.VertexBufferView) {
	r.record(Op{Kind: OpSetVertexBuffers, StartSlot: startSlot, VertexBuffers: append([]gpucore.VertexBufferView(nil), views...)})
}

// SetIndexBuffer records the index buffer binding.
func (r *Recorder) SetIndexBuffer(view *gpucore.IndexBufferView) {
	op := Op{Kind: OpSetIndexBuffer}
	if view != nil {
		v := *view
		op.IndexBuffer = &v
	}
	r.record(op)
}

// DrawInstanced records a non-indexed draw.
func (r *Recorder) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	r.record(Op{Kind: OpDraw, Count: vertexCount, Instances: instanceCount, Start: startVertex, StartInstance: startInstance})
}

// DrawIndexedInstanced records an indexed draw.
func (r *Recorder) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	r.record(Op{
		Kind: OpDrawIndexed, Count: indexCount, Instances: instanceCount,
		Start: startIndex, BaseVertex: baseVertex, StartInstance: startInstance,
	})
}

// Check performs the argument checks that need no device state: barrier
// batches, copy sizes, footprint alignment and rasterizer state counts.
func Check(op *Op) error {
	switch op.Kind {
	case OpBarrier:
		if len(op.Barriers) == 0 {
			return fmt.Errorf("%w: empty barrier batch", gpucore.ErrInvalidArgument)
		}
		for _, b := range op.Barriers {
			if b.Before == b.After {
				return fmt.Errorf("%w: resource %d transition %s to itself", gpucore.ErrInvalidBarrier, b.Resource, b.Before)
			}
		}
	case OpCopyBuffer:
		if op.Size == 0 {
			return fmt.Errorf("%w: zero-sized copy", gpucore.ErrInvalidArgument)
		}
	case OpCopyBufferToTexture, OpCopyTextureToBuffer:
		fp := op.Footprint
		if fp.RowPitch%gpucore.TextureDataPitchAlignment != 0 || fp.Offset%gpucore.TexturePlacementAlignment != 0 {
			return fmt.Errorf("%w: footprint pitch %d offset %d", gpucore.ErrInvalidArgument, fp.RowPitch, fp.Offset)
		}
		if uint64(fp.RowPitch) < uint64(fp.Width)*uint64(fp.Format.BytesPerPixel()) {
			return fmt.Errorf("%w: row pitch %d below row size", gpucore.ErrInvalidArgument, fp.RowPitch)
		}
	case OpSetViewports:
		if len(op.Viewports) == 0 {
			return fmt.Errorf("%w: no viewports", gpucore.ErrInvalidArgument)
		}
	case OpSetScissorRects:
		if len(op.Scissors) == 0 {
			return fmt.Errorf("%w: no scissor rects", gpucore.ErrInvalidArgument)
		}
	}
	return nil
}
