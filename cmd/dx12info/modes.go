package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModesCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List display modes of the selected adapter, one per resolution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := g.openDevice(cmd)
			if err != nil {
				return err
			}
			defer dev.Release()

			p := printer()
			out := cmd.OutOrStdout()
			info := dev.Adapter()
			p.Fprintf(out, "%s (%s), format %s\n", info.Name, info.Backend, dev.DisplayFormat())
			for _, m := range dev.DisplayModes() {
				// Resolutions are not quantities; keep them ungrouped.
				fmt.Fprintf(out, "  %5d x %-5d %7.2f Hz\n", m.Width, m.Height, m.RefreshRate())
			}
			p.Fprintf(out, "%d modes\n", len(dev.DisplayModes()))
			return nil
		},
	}
}
