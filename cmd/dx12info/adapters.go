package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/dx12/backend"
)

func newAdaptersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List registered backends and their adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := printer()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			p.Fprintln(w, "BACKEND\tINDEX\tNAME\tTYPE\tMEMORY")
			for _, name := range backend.Available() {
				b, err := backend.Get(name)
				if err != nil {
					p.Fprintf(w, "%s\t-\tunavailable: %v\t\t\n", name, err)
					continue
				}
				adapters, err := b.EnumerateAdapters()
				b.Close()
				if err != nil {
					p.Fprintf(w, "%s\t-\tenumeration failed: %v\t\t\n", name, err)
					continue
				}
				for i, a := range adapters {
					p.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", name, i, a.Name, a.DeviceType, mib(p, a.DedicatedVideoMemory))
				}
			}
			return w.Flush()
		},
	}
}
