package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/dx12"
)

type frameFlags struct {
	frames  int
	width   uint32
	height  uint32
	buffers uint32
	out     string
}

func newFrameCommand(g *globalFlags) *cobra.Command {
	f := &frameFlags{}
	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Render headless frames through a swap chain and save the last one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.frames < 1 {
				return fail("--frames must be positive, got %d", f.frames)
			}
			dev, err := g.openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Release()
			return runFrames(cmd, dev, f)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&f.frames, "frames", "n", 3, "number of frames to render")
	flags.Uint32Var(&f.width, "width", 640, "back buffer width")
	flags.Uint32Var(&f.height, "height", 480, "back buffer height")
	flags.Uint32Var(&f.buffers, "buffers", 0, "back buffer count (default: device frame count)")
	flags.StringVarP(&f.out, "out", "o", "frame.png", "PNG file for the last frame")
	return cmd
}

func runFrames(cmd *cobra.Command, dev *dx12.Device, f *frameFlags) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	q, err := dx12.NewCommandQueue(dev, "dx12info")
	if err != nil {
		return err
	}
	defer q.Release()
	fb, err := dx12.NewFrameBuffer(dev, dx12.HeadlessWindow{W: f.width, H: f.height}, f.buffers)
	if err != nil {
		return err
	}
	defer fb.Release()
	sc, err := dx12.NewSwapChain(dev, q, fb)
	if err != nil {
		return err
	}
	defer sc.Release()
	cl, err := dx12.NewCommandList(dev, "frame")
	if err != nil {
		return err
	}
	defer cl.Release()

	p := printer()
	out := cmd.OutOrStdout()
	var last uint32
	start := time.Now()
	for i := range f.frames {
		last = fb.BufferIndex()
		steps := []func() error{
			cl.Reset,
			func() error { return fb.StartRendering(cl) },
			func() error { return fb.FinishRendering(cl) },
			cl.Close,
			func() error { return q.Execute(cl) },
			func() error { return sc.Present(1) },
			func() error { return q.Flush(ctx) },
			sc.BeginFrame,
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return fail("frame %d: %w", i, err)
			}
		}
	}
	elapsed := time.Since(start)

	buf, err := fb.BackBuffer(last)
	if err != nil {
		return err
	}
	texels, err := buf.Readback(ctx, q)
	if err != nil {
		return err
	}
	px := &dx12.Pixels{Width: int(f.width), Height: int(f.height), Data: texels}
	if err := px.SavePNG(f.out); err != nil {
		return err
	}
	p.Fprintf(out, "rendered %d frames on %d buffers in %v\n", f.frames, fb.Count(), elapsed.Round(time.Microsecond))
	p.Fprintf(out, "wrote buffer %d (%d bytes) to %s\n", last, len(texels), f.out)
	p.Fprintln(out, dev.MemoryStats())
	return nil
}
