package cmdlist

import (
	"errors"
	"testing"

	"github.com/gogpu/dx12/gpucore"
)

func TestRecorderLifecycle(t *testing.T) {
	r := NewRecorder(7, "frame", nil)
	if r.ID() != 7 || r.Label() != "frame" {
		t.Fatalf("ID/Label = %d/%q", r.ID(), r.Label())
	}

	r.ClearRenderTargetView(0x100, [4]float32{1, 0, 0, 1})
	r.DrawInstanced(3, 1, 0, 0)
	if r.Closed() {
		t.Fatal("new recorder reports closed")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !r.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := r.Close(); !errors.Is(err, gpucore.ErrListClosed) {
		t.Errorf("second Close = %v, want ErrListClosed", err)
	}

	ops := r.Ops()
	if len(ops) != 2 {
		t.Fatalf("len(Ops) = %d, want 2", len(ops))
	}
	if ops[0].Kind != OpClearRTV || ops[1].Kind != OpDraw {
		t.Errorf("kinds = %s, %s", ops[0].Kind, ops[1].Kind)
	}
	if ops[1].Count != 3 || ops[1].Instances != 1 {
		t.Errorf("draw = %+v", ops[1])
	}

	if err := r.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if r.Closed() || len(r.Ops()) != 0 || r.Err() != nil {
		t.Error("Reset did not reopen an empty recorder")
	}
}

func TestRecordAfterClose(t *testing.T) {
	r := NewRecorder(1, "late", nil)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	r.DrawInstanced(3, 1, 0, 0)
	if !errors.Is(r.Err(), gpucore.ErrListClosed) {
		t.Errorf("Err() = %v, want ErrListClosed", r.Err())
	}
	if len(r.Ops()) != 0 {
		t.Error("op recorded on a closed list")
	}
}

func TestValidatorKeepsFirstError(t *testing.T) {
	first := errors.New("first")
	calls := 0
	r := NewRecorder(1, "v", func(op *Op) error {
		calls++
		if op.Kind == OpDraw {
			return first
		}
		return nil
	})

	r.SetPipelineState(4)
	r.DrawInstanced(3, 1, 0, 0)
	r.DrawInstanced(6, 1, 0, 0)
	if err := r.Close(); !errors.Is(err, first) {
		t.Fatalf("Close = %v, want first error", err)
	}
	if calls != 2 {
		t.Errorf("validator ran %d times, want 2", calls)
	}
	if len(r.Ops()) != 1 {
		t.Errorf("len(Ops) = %d, want 1", len(r.Ops()))
	}
}

func TestRecordedSlicesAreCopied(t *testing.T) {
	r := NewRecorder(1, "copy", nil)
	barriers := []gpucore.Barrier{{Resource: 1, Before: gpucore.StateCopyDest, After: gpucore.StatePixelShaderResource}}
	dsv := gpucore.CPUAddress(0x200)
	ib := gpucore.IndexBufferView{Resource: 2, Size: 12, Format: gpucore.FormatR16Uint}

	r.ResourceBarrier(barriers...)
	r.SetRenderTargets([]gpucore.CPUAddress{0x100}, &dsv)
	r.SetIndexBuffer(&ib)

	barriers[0].After = gpucore.StateRenderTarget
	dsv = 0
	ib.Size = 0

	ops := r.Ops()
	if ops[0].Barriers[0].After != gpucore.StatePixelShaderResource {
		t.Error("barrier slice aliased")
	}
	if *ops[1].Depth != 0x200 {
		t.Error("depth target aliased")
	}
	if ops[2].IndexBuffer.Size != 12 {
		t.Error("index buffer view aliased")
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		want error
	}{
		{"empty barrier", Op{Kind: OpBarrier}, gpucore.ErrInvalidArgument},
		{"self transition", Op{Kind: OpBarrier, Barriers: []gpucore.Barrier{{Resource: 1, Before: gpucore.StateCopyDest, After: gpucore.StateCopyDest}}}, gpucore.ErrInvalidBarrier},
		{"transition", Op{Kind: OpBarrier, Barriers: []gpucore.Barrier{{Resource: 1, Before: gpucore.StateCopyDest, After: gpucore.StateCopySource}}}, nil},
		{"zero copy", Op{Kind: OpCopyBuffer}, gpucore.ErrInvalidArgument},
		{"copy", Op{Kind: OpCopyBuffer, Size: 4}, nil},
		{"unaligned pitch", Op{Kind: OpCopyBufferToTexture, Footprint: gpucore.Footprint{Format: gpucore.FormatRGBA8Unorm, Width: 4, Height: 4, RowPitch: 16}}, gpucore.ErrInvalidArgument},
		{"unaligned offset", Op{Kind: OpCopyTextureToBuffer, Footprint: gpucore.Footprint{Offset: 256, Format: gpucore.FormatRGBA8Unorm, Width: 4, Height: 4, RowPitch: 256}}, gpucore.ErrInvalidArgument},
		{"short pitch", Op{Kind: OpCopyBufferToTexture, Footprint: gpucore.Footprint{Format: gpucore.FormatRGBA8Unorm, Width: 100, Height: 1, RowPitch: 256}}, gpucore.ErrInvalidArgument},
		{"footprint", Op{Kind: OpCopyBufferToTexture, Footprint: gpucore.Footprint{Offset: 512, Format: gpucore.FormatRGBA8Unorm, Width: 64, Height: 2, RowPitch: 256}}, nil},
		{"no viewports", Op{Kind: OpSetViewports}, gpucore.ErrInvalidArgument},
		{"no scissors", Op{Kind: OpSetScissorRects}, gpucore.ErrInvalidArgument},
		{"draw", Op{Kind: OpDraw, Count: 3}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(&tt.op)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Check() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpKindString(t *testing.T) {
	if got := OpDrawIndexed.String(); got != "DrawIndexedInstanced" {
		t.Errorf("OpDrawIndexed.String() = %q", got)
	}
	if got := OpKind(200).String(); got != "Unknown(200)" {
		t.Errorf("OpKind(200).String() = %q", got)
	}
}
