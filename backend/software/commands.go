package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/dx12/gpucore"
	"github.com/gogpu/dx12/internal/cmdlist"
	"github.com/gogpu/dx12/internal/slots"
)

// commandList is a recorder bound to a software device.
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
	cl.Recorder = cmdlist.NewRecorder(id, label, cl.validate)
	d.lists[id] = cl
	return cl, nil
}

// Destroy unregisters the list.
func (c *commandList) Destroy() {
	c.dev.mu.Lock()
	delete(c.dev.lists, c.ID())
	c.dev.mu.Unlock()
}

// validate adds heap checks to the stateless argument checks.
func (c *commandList) validate(op *cmdlist.Op) error {
	if err := cmdlist.Check(op); err != nil {
		return err
	}
	if op.Kind != cmdlist.OpSetDescriptorHeaps {
		return nil
	}
	seen := make(map[gpucore.HeapType]bool)
	for _, id := range op.Heaps {
		h, ok := c.dev.heaps.Get(id)
		if !ok {
			return fmt.Errorf("%w: heap %d", gpucore.ErrUnknownID, id)
		}
		if !h.ShaderVisible() {
			return fmt.Errorf("%w: heap %d is not shader visible", gpucore.ErrInvalidArgument, id)
		}
		if seen[h.Type] {
			return fmt.Errorf("%w: more than one %s heap", gpucore.ErrInvalidArgument, h.Type)
		}
		seen[h.Type] = true
	}
	return nil
}

// simulation replays ops against queue-timeline state without touching it
// until every list of a submission validated.
type simulation struct {
	dev     *Device
	pending map[*resource]gpucore.ResourceState
	actions []func()
}

// listState is the binding state a list starts from. Command lists inherit
// nothing from earlier lists.
type listState struct {
	rtvs      []*resource
	dsv       *resource
	heaps     map[gpucore.HeapType]gpucore.HeapID
	rootSigID gpucore.RootSignatureID
	rootSig   *gpucore.RootSignatureDesc
	pipeline  *gpucore.PipelineDesc
	tables    map[uint32]gpucore.GPUAddress
	vbBound   bool
	ibBound   bool
}

func (s *simulation) state(r *resource) gpucore.ResourceState {
	if st, ok := s.pending[r]; ok {
		return st
	}
	return r.state
}

func (s *simulation) commit() {
	for r, st := range s.pending {
		r.state = st
	}
}

func (s *simulation) run(ops []cmdlist.Op) error {
	ls := &listState{
		heaps:  make(map[gpucore.HeapType]gpucore.HeapID),
		tables: make(map[uint32]gpucore.GPUAddress),
	}
	for i := range ops {
		if err := s.step(ls, &ops[i]); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, ops[i].Kind, err)
		}
	}
	return nil
}

//nolint:gocyclo // one case per command kind
func (s *simulation) step(ls *listState, op *cmdlist.Op) error {
	d := s.dev
	switch op.Kind {
	case cmdlist.OpBarrier:
		for _, b := range op.Barriers {
			r, err := d.lookupResource(b.Resource)
			if err != nil {
				return err
			}
			if r.mem != gpucore.MemoryDefault {
				return fmt.Errorf("%w: %s heap resource %d cannot transition", gpucore.ErrInvalidBarrier, r.mem, r.id)
			}
			if cur := s.state(r); cur != b.Before {
				return fmt.Errorf("%w: resource %d (%s) is %s, barrier expects %s",
					gpucore.ErrInvalidBarrier, r.id, r.desc.Label, cur, b.Before)
			}
			s.pending[r] = b.After
		}
		n := uint64(len(op.Barriers))
		s.actions = append(s.actions, func() { d.barriers.Add(n) })

	case cmdlist.OpCopyBuffer:
		dst, src, err := s.copyPair(op.Dst, op.Src)
		if err != nil {
			return err
		}
		if dst.desc.Dimension != gpucore.DimensionBuffer || src.desc.Dimension != gpucore.DimensionBuffer {
			return fmt.Errorf("%w: buffer copy between non-buffers", gpucore.ErrInvalidArgument)
		}
		if op.DstOffset+op.Size > uint64(len(dst.data)) || op.SrcOffset+op.Size > uint64(len(src.data)) {
			return fmt.Errorf("%w: copy of %d bytes", ErrOutOfRange, op.Size)
		}
		dOff, sOff, size := op.DstOffset, op.SrcOffset, op.Size
		s.actions = append(s.actions, func() {
			copy(dst.data[dOff:dOff+size], src.data[sOff:sOff+size])
			d.copies.Add(1)
		})

	case cmdlist.OpCopyBufferToTexture:
		tex, buf, err := s.copyPair(op.Dst, op.Src)
		if err != nil {
			return err
		}
		if err := checkFootprint(tex, buf, op.Footprint); err != nil {
			return err
		}
		fp := op.Footprint
		s.actions = append(s.actions, func() {
			copyRows(tex, buf, fp, true)
			d.copies.Add(1)
		})

	case cmdlist.OpCopyTextureToBuffer:
		buf, tex, err := s.copyPair(op.Dst, op.Src)
		if err != nil {
			return err
		}
		if err := checkFootprint(tex, buf, op.Footprint); err != nil {
			return err
		}
		fp := op.Footprint
		s.actions = append(s.actions, func() {
			copyRows(tex, buf, fp, false)
			d.copies.Add(1)
		})

	case cmdlist.OpClearRTV:
		r, err := s.view(op.Target, slots.KindRTV)
		if err != nil {
			return err
		}
		if st := s.state(r); st != gpucore.StateRenderTarget {
			return fmt.Errorf("%w: clear of %q in %s", gpucore.ErrInvalidState, r.desc.Label, st)
		}
		px := encodeColor(r.desc.Format, op.Color)
		s.actions = append(s.actions, func() {
			fill(r.data, px)
			d.clears.Add(1)
		})

	case cmdlist.OpClearDSV:
		r, err := s.view(op.Target, slots.KindDSV)
		if err != nil {
			return err
		}
		if st := s.state(r); st != gpucore.StateDepthWrite {
			return fmt.Errorf("%w: depth clear of %q in %s", gpucore.ErrInvalidState, r.desc.Label, st)
		}
		px := encodeDepth(r.desc.Format, op.ClearZ, op.Stencil)
		s.actions = append(s.actions, func() {
			fill(r.data, px)
			d.clears.Add(1)
		})

	case cmdlist.OpSetRenderTargets:
		ls.rtvs = ls.rtvs[:0]
		for _, a := range op.Targets {
			r, err := s.view(a, slots.KindRTV)
			if err != nil {
				return err
			}
			ls.rtvs = append(ls.rtvs, r)
		}
		ls.dsv = nil
		if op.Depth != nil {
			r, err := s.view(*op.Depth, slots.KindDSV)
			if err != nil {
				return err
			}
			ls.dsv = r
		}

	case cmdlist.OpSetDescriptorHeaps:
		clear(ls.heaps)
		for _, id := range op.Heaps {
			h, ok := d.heaps.Get(id)
			if !ok {
				return fmt.Errorf("%w: heap %d", gpucore.ErrUnknownID, id)
			}
			ls.heaps[h.Type] = id
		}

	case cmdlist.OpSetRootSignature:
		d.mu.RLock()
		rs, ok := d.rootSigs[op.RootSignature]
		d.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: root signature %d", gpucore.ErrUnknownID, op.RootSignature)
		}
		ls.rootSigID, ls.rootSig = op.RootSignature, rs
		clear(ls.tables)

	case cmdlist.OpSetRootTable:
		if ls.rootSig == nil {
			return fmt.Errorf("%w: descriptor table before root signature", ErrNotBound)
		}
		if int(op.Index) >= len(ls.rootSig.Parameters) {
			return fmt.Errorf("%w: root parameter %d of %d", gpucore.ErrInvalidArgument, op.Index, len(ls.rootSig.Parameters))
		}
		heap := slots.HeapOfGPU(op.Table)
		if ls.heaps[gpucore.HeapTypeCBVSRVUAV] != heap {
			return fmt.Errorf("%w: table in heap %d which is not set on the list", ErrNotBound, heap)
		}
		ls.tables[op.Index] = op.Table

	case cmdlist.OpSetPipeline:
		d.mu.RLock()
		p, ok := d.pipelines[op.Pipeline]
		d.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: pipeline %d", gpucore.ErrUnknownID, op.Pipeline)
		}
		ls.pipeline = p

	case cmdlist.OpSetVertexBuffers:
		for _, v := range op.VertexBuffers {
			if err := s.checkInputBuffer(v.Resource, v.Offset, uint64(v.Size), gpucore.StateVertexAndConstantBuffer); err != nil {
				return err
			}
		}
		ls.vbBound = len(op.VertexBuffers) > 0

	case cmdlist.OpSetIndexBuffer:
		ls.ibBound = false
		if op.IndexBuffer != nil {
			v := op.IndexBuffer
			if v.Format != gpucore.FormatR16Uint && v.Format != gpucore.FormatR32Uint {
				return fmt.Errorf("%w: index format %s", gpucore.ErrInvalidArgument, v.Format)
			}
			if err := s.checkInputBuffer(v.Resource, v.Offset, uint64(v.Size), gpucore.StateIndexBuffer); err != nil {
				return err
			}
			ls.ibBound = true
		}

	case cmdlist.OpDraw, cmdlist.OpDrawIndexed:
		if err := s.checkDraw(ls, op.Kind == cmdlist.OpDrawIndexed); err != nil {
			return err
		}
		s.actions = append(s.actions, func() { d.draws.Add(1) })
	}
	return nil
}

func (s *simulation) copyPair(dstID, srcID gpucore.ResourceID) (*resource, *resource, error) {
	dst, err := s.dev.lookupResource(dstID)
	if err != nil {
		return nil, nil, err
	}
	src, err := s.dev.lookupResource(srcID)
	if err != nil {
		return nil, nil, err
	}
	if dst.mem == gpucore.MemoryUpload {
		return nil, nil, fmt.Errorf("%w: copy into upload heap resource %d", gpucore.ErrInvalidState, dst.id)
	}
	if dst.mem == gpucore.MemoryDefault && s.state(dst) != gpucore.StateCopyDest {
		return nil, nil, fmt.Errorf("%w: copy destination %q in %s", gpucore.ErrInvalidState, dst.desc.Label, s.state(dst))
	}
	if src.mem == gpucore.MemoryDefault && s.state(src) != gpucore.StateCopySource {
		return nil, nil, fmt.Errorf("%w: copy source %q in %s", gpucore.ErrInvalidState, src.desc.Label, s.state(src))
	}
	return dst, src, nil
}

func checkFootprint(tex, buf *resource, fp gpucore.Footprint) error {
	if tex.desc.Dimension != gpucore.DimensionTexture2D || buf.desc.Dimension != gpucore.DimensionBuffer {
		return fmt.Errorf("%w: footprint copy needs a texture and a buffer", gpucore.ErrInvalidArgument)
	}
	if fp.Format != tex.desc.Format {
		return fmt.Errorf("%w: footprint format %s, texture %s", gpucore.ErrInvalidArgument, fp.Format, tex.desc.Format)
	}
	if uint64(fp.Width) > tex.desc.Width || fp.Height > tex.desc.Height {
		return fmt.Errorf("%w: footprint %dx%d on %dx%d texture", ErrOutOfRange, fp.Width, fp.Height, tex.desc.Width, tex.desc.Height)
	}
	if fp.Offset+fp.Size() > uint64(len(buf.data)) {
		return fmt.Errorf("%w: footprint spans %d bytes of %d", ErrOutOfRange, fp.Offset+fp.Size(), len(buf.data))
	}
	return nil
}

// copyRows moves footprint rows between a buffer and a texture.
func copyRows(tex, buf *resource, fp gpucore.Footprint, toTexture bool) {
	row := uint64(fp.Width) * uint64(fp.Format.BytesPerPixel())
	texPitch := tex.rowBytes()
	for y := uint64(0); y < uint64(fp.Height); y++ {
		b := buf.data[fp.Offset+y*uint64(fp.RowPitch):][:row]
		t := tex.data[y*texPitch:][:row]
		if toTexture {
			copy(t, b)
		} else {
			copy(b, t)
		}
	}
}

func (s *simulation) view(addr gpucore.CPUAddress, kind slots.Kind) (*resource, error) {
	desc, err := s.dev.heaps.Read(addr)
	if err != nil {
		return nil, err
	}
	if desc.Kind != kind {
		return nil, fmt.Errorf("%w: %s where %s expected", gpucore.ErrInvalidArgument, desc.Kind, kind)
	}
	return s.dev.lookupResource(desc.Resource)
}

func (s *simulation) checkInputBuffer(id gpucore.ResourceID, offset, size uint64, want gpucore.ResourceState) error {
	r, err := s.dev.lookupResource(id)
	if err != nil {
		return err
	}
	if r.desc.Dimension != gpucore.DimensionBuffer || offset+size > uint64(len(r.data)) {
		return fmt.Errorf("%w: input buffer view %d+%d", ErrOutOfRange, offset, size)
	}
	if st := s.state(r); st&want == 0 {
		return fmt.Errorf("%w: input buffer %q in %s", gpucore.ErrInvalidState, r.desc.Label, st)
	}
	return nil
}

func (s *simulation) checkDraw(ls *listState, indexed bool) error {
	switch {
	case ls.pipeline == nil:
		return fmt.Errorf("%w: pipeline state", ErrNotBound)
	case ls.rootSig == nil:
		return fmt.Errorf("%w: root signature", ErrNotBound)
	case ls.pipeline.RootSignature != ls.rootSigID:
		return fmt.Errorf("%w: pipeline built for root signature %d, %d bound",
			gpucore.ErrInvalidState, ls.pipeline.RootSignature, ls.rootSigID)
	case len(ls.rtvs) == 0:
		return fmt.Errorf("%w: render target", ErrNotBound)
	case len(ls.pipeline.InputLayout) > 0 && !ls.vbBound:
		return fmt.Errorf("%w: vertex buffer", ErrNotBound)
	case indexed && !ls.ibBound:
		return fmt.Errorf("%w: index buffer", ErrNotBound)
	}
	for _, r := range ls.rtvs {
		if st := s.state(r); st != gpucore.StateRenderTarget {
			return fmt.Errorf("%w: draw into %q in %s", gpucore.ErrInvalidState, r.desc.Label, st)
		}
	}
	if ls.pipeline.DSVFormat != gpucore.FormatUnknown {
		if ls.dsv == nil {
			return fmt.Errorf("%w: depth stencil", ErrNotBound)
		}
		if st := s.state(ls.dsv); st != gpucore.StateDepthWrite {
			return fmt.Errorf("%w: depth target %q in %s", gpucore.ErrInvalidState, ls.dsv.desc.Label, st)
		}
	}
	for i, p := range ls.rootSig.Parameters {
		base, ok := ls.tables[uint32(i)]
		if !ok {
			return fmt.Errorf("%w: root parameter %d", ErrNotBound, i)
		}
		descs, _, err := s.dev.heaps.ReadGPU(base, p.Descriptors())
		if err != nil {
			return fmt.Errorf("root parameter %d: %w", i, err)
		}
		if err := s.checkTable(descs, p); err != nil {
			return fmt.Errorf("root parameter %d: %w", i, err)
		}
	}
	return nil
}

func (s *simulation) checkTable(descs []slots.Descriptor, p gpucore.RootParameter) error {
	n := 0
	for _, rng := range p.Ranges {
		want := slots.KindCBV
		if rng.Type == gpucore.RangeSRV {
			want = slots.KindSRV
		}
		for j := uint32(0); j < rng.Count; j++ {
			desc := descs[n]
			n++
			if desc.Kind != want {
				return fmt.Errorf("%w: slot holds %s, range wants %s", gpucore.ErrInvalidState, desc.Kind, want)
			}
			r, err := s.dev.lookupResource(desc.Resource)
			if err != nil {
				return err
			}
			if want == slots.KindSRV && s.state(r)&gpucore.StatePixelShaderResource == 0 {
				return fmt.Errorf("%w: sampled %q in %s", gpucore.ErrInvalidState, r.desc.Label, s.state(r))
			}
		}
	}
	return nil
}

func clamp01(v float32) float32 {
	return float32(math.Min(1, math.Max(0, float64(v))))
}

func unorm8(v float32) byte { return byte(clamp01(v)*255 + 0.5) }

// encodeColor converts a clear color into one texel of format.
func encodeColor(format gpucore.Format, c [4]float32) []byte {
	switch format {
	case gpucore.FormatBGRA8Unorm:
		return []byte{unorm8(c[2]), unorm8(c[1]), unorm8(c[0]), unorm8(c[3])}
	default:
		return []byte{unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), unorm8(c[3])}
	}
}

// encodeDepth converts a depth/stencil clear into one texel of format.
func encodeDepth(format gpucore.Format, depth float32, stencil uint8) []byte {
	px := make([]byte, 4)
	if format == gpucore.FormatD32Float {
		binary.LittleEndian.PutUint32(px, math.Float32bits(depth))
		return px
	}
	d24 := uint32(float64(clamp01(depth))*0xFFFFFF + 0.5)
	binary.LittleEndian.PutUint32(px, d24|uint32(stencil)<<24)
	return px
}

func fill(dst, px []byte) {
	for i := 0; i+len(px) <= len(dst); i += len(px) {
		copy(dst[i:], px)
	}
}
