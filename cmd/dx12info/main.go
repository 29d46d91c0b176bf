// Command dx12info inspects the available backends and exercises the device
// wrappers headlessly.
//
//	dx12info adapters
//	dx12info modes --backend software
//	dx12info frame --frames 5 --out frame.png
//	dx12info texture a.png b.jpg
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/dx12"

	// Registers the hal backend next to the built-in software one.
	_ "github.com/gogpu/dx12/backend/wgpu"
)

type globalFlags struct {
	backend string
	adapter int
	config  string
	verbose bool
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "dx12info",
		Short:        "Inspect adapters and run headless frames",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if g.verbose {
				dx12.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.backend, "backend", "", "backend name (default: best available)")
	pf.IntVar(&g.adapter, "adapter", 0, "adapter index")
	pf.StringVar(&g.config, "config", "", "TOML config file")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newAdaptersCommand(),
		newModesCommand(g),
		newFrameCommand(g),
		newTextureCommand(g),
	)
	return root
}

// openDevice applies the config file first so explicit flags override it.
func (g *globalFlags) openDevice(cmd *cobra.Command) (*dx12.Device, error) {
	var opts []dx12.Option
	if g.config != "" {
		cfg, err := dx12.LoadConfig(g.config)
		if err != nil {
			return nil, err
		}
		if opts, err = cfg.Options(); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if g.config == "" || flags.Changed("backend") {
		opts = append(opts, dx12.WithBackend(g.backend))
	}
	if g.config == "" || flags.Changed("adapter") {
		opts = append(opts, dx12.WithAdapter(g.adapter))
	}
	return dx12.NewDevice(opts...)
}

func printer() *message.Printer { return message.NewPrinter(language.English) }

// mib formats a byte count in MiB with grouping.
func mib(p *message.Printer, n uint64) string {
	return p.Sprintf("%d MiB", n>>20)
}

func fail(format string, args ...any) error {
	return fmt.Errorf("dx12info: "+format, args...)
}
