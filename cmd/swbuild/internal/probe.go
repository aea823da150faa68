package internal

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goplus/swbuild/internal/build"
	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/env"
	"github.com/goplus/swbuild/internal/plan"
	"github.com/goplus/swbuild/internal/probe"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe [compiler]",
	Short: "Report the version and capabilities of a Swift compiler",
	Long: `Probe runs the compiler once and prints the capabilities its version implies.
Without an argument the compiler of the project is probed, falling back to
$SWIFTC or swiftc on PATH when there is no project configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().DurationVarP(&probeTimeout, "timeout", "t", 0, "Probe timeout, e.g. 10s")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := probeConfig(cmd, args)
	if err != nil {
		return err
	}
	if probeTimeout > 0 {
		cfg.ProbeTimeout = probeTimeout
	}

	cache := probe.New(probe.ExecRunner{}, cfg.ProbeTimeout, logger)
	id := plan.New(cfg, nil, nil, cache, logger).Identity()
	r := cache.Probe(cmd.Context(), id)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "compiler: %s\n", id)
	fmt.Fprintf(out, "version:  %s\n", r.Version)
	fmt.Fprintf(out, "status:   %s\n", r.Status)
	for _, c := range probe.Capabilities() {
		if r.Has(c) {
			fmt.Fprintln(out, color.GreenString("  + %s", c))
		} else {
			fmt.Fprintln(out, color.RedString("  - %s", c))
		}
	}
	if r.Warning != nil {
		printWarnings(cmd.ErrOrStderr(), []*probe.DegradedError{r.Warning})
	}
	return nil
}

// probeConfig returns the configuration whose compiler is probed.
func probeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	if len(args) == 1 {
		compiler, err := env.Resolve("", args[0])
		if err != nil {
			return nil, err
		}
		return &config.Config{Compiler: compiler}, nil
	}
	fs := afero.NewOsFs()
	if ok, _ := afero.Exists(fs, configPath); !ok && !cmd.Flag("config").Changed {
		compiler, err := env.Compiler()
		if err != nil {
			return nil, err
		}
		return &config.Config{Compiler: compiler}, nil
	}
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return nil, err
	}
	if err := build.Toolchain(cmd.Context(), cfg, probe.ExecRunner{}); err != nil {
		return nil, err
	}
	return cfg, nil
}
