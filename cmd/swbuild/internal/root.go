package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goplus/swbuild/internal/build"
	"github.com/goplus/swbuild/internal/config"
	"github.com/goplus/swbuild/internal/probe"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var logger = slog.Default()

var rootCmd = &cobra.Command{
	Use:   "swbuild",
	Short: "swbuild plans Swift builds for a host build engine",
	Long: `swbuild scans Swift sources for imports, resolves them to the targets of a
project, and plans the compiler invocations a host build engine runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Path of the project configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid --log-format %q: want text or json", format)
}

// loadProject loads the configuration and completes its toolchain from the
// environment.
func loadProject(ctx context.Context) (*config.Config, *build.Builder, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := build.Toolchain(ctx, cfg, probe.ExecRunner{}); err != nil {
		return nil, nil, err
	}
	b := build.NewBuilder(cfg, build.Options{Logger: logger})
	return cfg, b, nil
}

// printWarnings reports degraded probes once per compiler.
func printWarnings(w io.Writer, warnings []*probe.DegradedError) {
	for _, warning := range warnings {
		fmt.Fprintln(w, color.YellowString("warning:"), warning)
	}
}
