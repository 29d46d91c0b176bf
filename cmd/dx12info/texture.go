package main

import (
	"context"
	"hash/crc32"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/dx12"
)

func newTextureCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "texture FILE...",
		Short: "Upload image files in one batch and print readback checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			dev, err := g.openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Release()
			return uploadTextures(cmd, dev, paths)
		},
	}
}

func uploadTextures(cmd *cobra.Command, dev *dx12.Device, paths []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	q, err := dx12.NewCommandQueue(dev, "dx12info upload")
	if err != nil {
		return err
	}
	defer q.Release()
	up, err := dx12.NewUploader(dev, q)
	if err != nil {
		return err
	}
	textures, err := up.LoadTextures(ctx, paths...)
	if err != nil {
		_ = up.Abort()
		return err
	}
	task, err := up.Submit()
	if err != nil {
		_ = up.Abort()
		return err
	}
	if err := task.Wait(ctx); err != nil {
		return err
	}

	p := printer()
	out := cmd.OutOrStdout()
	for i, tex := range textures {
		texels, err := tex.Readback(ctx, q)
		if err != nil {
			return fail("%s: %w", paths[i], err)
		}
		p.Fprintf(out, "%s\t%dx%d\t%d bytes\tcrc32 %08x\n",
			tex.Name(), tex.Width(), tex.Height(), len(texels), crc32.ChecksumIEEE(texels))
		_ = tex.Release()
	}
	p.Fprintln(out, dev.MemoryStats())
	return nil
}
