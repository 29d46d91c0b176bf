package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/cmdlist"
	"github.com/gogpu/dx12/internal/slots"
)

// commandList is a recorder bound to a hal device.
type commandList struct {
	*cmdlist.Recorder
	dev *Device
}

// CreateCommandList returns a list in the recording state.
func (d *Device) CreateCommandList(label string) (gpucore.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	id := gpucore.CommandListID(d.newID())
	cl := &commandList{dev: d}
	cl.Recorder = cmdlist.NewRecorder(id, label, cmdlist.Check)
	d.lists[id] = cl
	return cl, nil
}

// Destroy unregisters the list.
func (c *commandList) Destroy() {
	c.dev.mu.Lock()
	delete(c.dev.lists, c.ID())
	c.dev.mu.Unlock()
}

// CreateCommandQueue returns a handle to the device queue. hal exposes one
// queue per device, so every handle submits to it in call order.
func (d *Device) CreateCommandQueue(label string) (gpucore.QueueID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.QueueID(d.newID())
	d.queues[id] = label
	return id, nil
}

func (d *Device) checkQueue(id gpucore.QueueID) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if _, ok := d.queues[id]; !ok {
		return fmt.Errorf("%w: queue %d", gpucore.ErrUnknownID, id)
	}
	return nil
}

// DestroyCommandQueue releases a queue handle.
func (d *Device) DestroyCommandQueue(id gpucore.QueueID) {
	d.mu.Lock()
	delete(d.queues, id)
	d.mu.Unlock()
}

// QueueSignal sets the fence once prior submissions completed.
func (d *Device) QueueSignal(q gpucore.QueueID, f gpucore.FenceID, value uint64) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	return d.signal(f, value)
}

// QueueWait is not available: hal queues have no GPU-side fence waits.
func (d *Device) QueueWait(q gpucore.QueueID, _ gpucore.FenceID, _ uint64) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	return fmt.Errorf("%w: queue waits", gpucore.ErrNotSupported)
}

// ExecuteCommandLists encodes every list and submits them in one batch.
func (d *Device) ExecuteCommandLists(q gpucore.QueueID, lists []gpucore.CommandList) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	if len(lists) == 0 {
		return nil
	}

	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	d.collectLocked()

	buffers := make([]hal.CommandBuffer, 0, len(lists))
	discard := func() {
		for _, cb := range buffers {
			d.device.FreeCommandBuffer(cb)
		}
	}
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok || cl.dev != d {
			discard()
			return fmt.Errorf("%w: command list from another device", gpucore.ErrInvalidArgument)
		}
		if !cl.Closed() {
			discard()
			return fmt.Errorf("execute %q: %w", cl.Label(), gpucore.ErrListNotClosed)
		}
		if err := cl.Err(); err != nil {
			discard()
			return fmt.Errorf("execute %q: %w", cl.Label(), err)
		}
		cb, err := d.encode(cl.Label(), cl.Ops())
		if err != nil {
			discard()
			return fmt.Errorf("execute %q: %w", cl.Label(), err)
		}
		buffers = append(buffers, cb)
	}

	d.flushUploads()
	d.retireValue++
	if err := d.queue.Submit(buffers, d.retire, d.retireValue); err != nil {
		d.retireValue--
		discard()
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	d.inFlight = append(d.inFlight, retiring{value: d.retireValue, buffers: buffers})
	return nil
}

// encoder translates one op stream into a hal command buffer.
type encoder struct {
	dev *Device
	enc hal.CommandEncoder
	rp  hal.RenderPassEncoder

	rtvs     []*resource
	dsv      *resource
	rootSig  *rootSignature
	pipeline *pipeline
	tables   map[uint32]gpucore.GPUAddress
	vbs      []gpucore.VertexBufferView
	ib       *gpucore.IndexBufferView
	viewport *gpucore.Viewport
	scissor  *gpucore.Rect
	states   map[*resource]gpucore.ResourceState
}

func (d *Device) encode(label string, ops []cmdlist.Op) (hal.CommandBuffer, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	e := &encoder{
		dev:    d,
		enc:    enc,
		tables: make(map[uint32]gpucore.GPUAddress),
		states: make(map[*resource]gpucore.ResourceState),
	}
	for i := range ops {
		if err := e.apply(&ops[i]); err != nil {
			e.endPass()
			enc.DiscardEncoding()
			return nil, fmt.Errorf("op %d (%s): %w", i, ops[i].Kind, err)
		}
	}
	e.endPass()
	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}

	d.stateMu.Lock()
	for r, st := range e.states {
		r.state = st
	}
	d.stateMu.Unlock()
	return cb, nil
}

func (e *encoder) endPass() {
	if e.rp != nil {
		e.rp.End()
		e.rp = nil
	}
}

func (e *encoder) view(addr gpucore.CPUAddress, kind slots.Kind) (*resource, error) {
	desc, err := e.dev.heaps.Read(addr)
	if err != nil {
		return nil, err
	}
	if desc.Kind != kind {
		return nil, fmt.Errorf("%w: %s where %s expected", gpucore.ErrInvalidArgument, desc.Kind, kind)
	}
	return e.dev.lookupResource(desc.Resource)
}

//nolint:gocyclo // one case per command kind
func (e *encoder) apply(op *cmdlist.Op) error {
	d := e.dev
	switch op.Kind {
	case cmdlist.OpBarrier:
		e.endPass()
		var barriers []hal.TextureBarrier
		for _, b := range op.Barriers {
			r, err := d.lookupResource(b.Resource)
			if err != nil {
				return err
			}
			e.states[r] = b.After
			if r.texture == nil {
				continue
			}
			from, to := textureUsageOf(b.Before), textureUsageOf(b.After)
			if from == to {
				continue
			}
			barriers = append(barriers, hal.TextureBarrier{
				Texture: r.texture,
				Usage:   hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
			})
		}
		if len(barriers) > 0 {
			e.enc.TransitionTextures(barriers)
		}

	case cmdlist.OpCopyBuffer:
		e.endPass()
		dst, err := d.lookupResource(op.Dst)
		if err != nil {
			return err
		}
		src, err := d.lookupResource(op.Src)
		if err != nil {
			return err
		}
		if dst.buffer == nil || src.buffer == nil {
			return fmt.Errorf("%w: buffer copy between non-buffers", gpucore.ErrInvalidArgument)
		}
		e.enc.CopyBufferToBuffer(src.buffer, dst.buffer, []hal.BufferCopy{{
			SrcOffset: op.SrcOffset, DstOffset: op.DstOffset, Size: op.Size,
		}})

	case cmdlist.OpCopyBufferToTexture, cmdlist.OpCopyTextureToBuffer:
		e.endPass()
		texID, bufID := op.Dst, op.Src
		if op.Kind == cmdlist.OpCopyTextureToBuffer {
			texID, bufID = op.Src, op.Dst
		}
		tex, err := d.lookupResource(texID)
		if err != nil {
			return err
		}
		buf, err := d.lookupResource(bufID)
		if err != nil {
			return err
		}
		if tex.texture == nil || buf.buffer == nil {
			return fmt.Errorf("%w: footprint copy needs a texture and a buffer", gpucore.ErrInvalidArgument)
		}
		fp := op.Footprint
		region := []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: fp.Offset, BytesPerRow: fp.RowPitch, RowsPerImage: fp.Height},
			TextureBase:  hal.ImageCopyTexture{Texture: tex.texture, MipLevel: 0},
			Size:         hal.Extent3D{Width: fp.Width, Height: fp.Height, DepthOrArrayLayers: 1},
		}}
		if op.Kind == cmdlist.OpCopyBufferToTexture {
			e.enc.CopyBufferToTexture(buf.buffer, tex.texture, region)
		} else {
			e.enc.CopyTextureToBuffer(tex.texture, buf.buffer, region)
		}

	case cmdlist.OpClearRTV:
		e.endPass()
		r, err := e.view(op.Target, slots.KindRTV)
		if err != nil {
			return err
		}
		c := op.Color
		rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "clear " + r.desc.Label,
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       r.view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
			}},
		})
		rp.End()

	case cmdlist.OpClearDSV:
		e.endPass()
		r, err := e.view(op.Target, slots.KindDSV)
		if err != nil {
			return err
		}
		rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "clear " + r.desc.Label,
			DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
				View:              r.view,
				DepthLoadOp:       gputypes.LoadOpClear,
				DepthStoreOp:      gputypes.StoreOpStore,
				DepthClearValue:   op.ClearZ,
				StencilLoadOp:     gputypes.LoadOpClear,
				StencilStoreOp:    gputypes.StoreOpStore,
				StencilClearValue: uint32(op.Stencil),
			},
		})
		rp.End()

	case cmdlist.OpSetRenderTargets:
		e.endPass()
		e.rtvs = e.rtvs[:0]
		for _, a := range op.Targets {
			r, err := e.view(a, slots.KindRTV)
			if err != nil {
				return err
			}
			e.rtvs = append(e.rtvs, r)
		}
		e.dsv = nil
		if op.Depth != nil {
			r, err := e.view(*op.Depth, slots.KindDSV)
			if err != nil {
				return err
			}
			e.dsv = r
		}

	case cmdlist.OpSetViewports:
		vp := op.Viewports[0]
		e.viewport = &vp

	case cmdlist.OpSetScissorRects:
		sc := op.Scissors[0]
		e.scissor = &sc

	case cmdlist.OpSetDescriptorHeaps:
		// Tables carry their heap in the GPU address.

	case cmdlist.OpSetRootSignature:
		d.mu.RLock()
		rs, ok := d.rootSigs[op.RootSignature]
		d.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: root signature %d", gpucore.ErrUnknownID, op.RootSignature)
		}
		e.rootSig = rs
		clear(e.tables)

	case cmdlist.OpSetRootTable:
		e.tables[op.Index] = op.Table

	case cmdlist.OpSetPipeline:
		d.mu.RLock()
		p, ok := d.pipelines[op.Pipeline]
		d.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: pipeline %d", gpucore.ErrUnknownID, op.Pipeline)
		}
		e.pipeline = p

	case cmdlist.OpSetVertexBuffers:
		e.vbs = append(e.vbs[:0], op.VertexBuffers...)

	case cmdlist.OpSetIndexBuffer:
		e.ib = op.IndexBuffer

	case cmdlist.OpDraw, cmdlist.OpDrawIndexed:
		if err := e.prepareDraw(); err != nil {
			return err
		}
		if op.Kind == cmdlist.OpDraw {
			e.rp.Draw(op.Count, op.Instances, op.Start, op.StartInstance)
		} else {
			e.rp.DrawIndexed(op.Count, op.Instances, op.Start, op.BaseVertex, op.StartInstance)
		}
	}
	return nil
}

// prepareDraw opens a render pass over the bound targets if none is open
// and applies the current bindings to it.
func (e *encoder) prepareDraw() error {
	if e.pipeline == nil || e.rootSig == nil {
		return fmt.Errorf("%w: draw without pipeline or root signature", gpucore.ErrInvalidState)
	}
	if len(e.rtvs) == 0 {
		return fmt.Errorf("%w: draw without render target", gpucore.ErrInvalidState)
	}
	if e.rp == nil {
		desc := &hal.RenderPassDescriptor{Label: "draw"}
		for _, r := range e.rtvs {
			desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
				View:    r.view,
				LoadOp:  gputypes.LoadOpLoad,
				StoreOp: gputypes.StoreOpStore,
			})
		}
		if e.dsv != nil {
			desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
				View:           e.dsv.view,
				DepthLoadOp:    gputypes.LoadOpLoad,
				DepthStoreOp:   gputypes.StoreOpStore,
				StencilLoadOp:  gputypes.LoadOpLoad,
				StencilStoreOp: gputypes.StoreOpStore,
			}
		}
		e.rp = e.enc.BeginRenderPass(desc)
	}

	rp := e.rp
	rp.SetPipeline(e.pipeline.hal)
	if vp := e.viewport; vp != nil {
		rp.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	}
	if sc := e.scissor; sc != nil && sc.Right > sc.Left && sc.Bottom > sc.Top {
		rp.SetScissorRect(uint32(sc.Left), uint32(sc.Top), uint32(sc.Right-sc.Left), uint32(sc.Bottom-sc.Top))
	}
	for i := range e.rootSig.desc.Parameters {
		base, ok := e.tables[uint32(i)]
		if !ok {
			return fmt.Errorf("%w: root parameter %d unbound", gpucore.ErrInvalidState, i)
		}
		bg, err := e.dev.bindGroup(e.rootSig, uint32(i), base)
		if err != nil {
			return fmt.Errorf("root parameter %d: %w", i, err)
		}
		rp.SetBindGroup(uint32(i), bg, nil)
	}
	if e.rootSig.samplerGroup != nil {
		rp.SetBindGroup(uint32(len(e.rootSig.desc.Parameters)), e.rootSig.samplerGroup, nil)
	}
	for i, v := range e.vbs {
		r, err := e.dev.lookupResource(v.Resource)
		if err != nil {
			return err
		}
		rp.SetVertexBuffer(uint32(i), r.buffer, v.Offset)
	}
	if e.ib != nil {
		r, err := e.dev.lookupResource(e.ib.Resource)
		if err != nil {
			return err
		}
		rp.SetIndexBuffer(r.buffer, indexFormat(e.ib.Format), e.ib.Offset)
	}
	return nil
}
