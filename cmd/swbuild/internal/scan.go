package internal

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goplus/swbuild/internal/scan"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [file...]",
	Short: "List the modules Swift sources import",
	Long: `Scan prints the modules each source file imports, in first-occurrence order.
Without arguments it scans the sources of every target of the project.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) > 0 {
		var failed bool
		for _, file := range args {
			src, err := os.ReadFile(file)
			if err != nil {
				return &scan.Error{File: file, Msg: "unreadable source", Err: err}
			}
			res, err := scan.Imports(file, src)
			printScan(out, res)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("%v", err))
				failed = true
			}
		}
		if failed {
			return fmt.Errorf("malformed imports")
		}
		return nil
	}

	_, b, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}
	res, err := b.Resolve(cmd.Context())
	if err != nil {
		return err
	}
	targets := make([]string, 0, len(res.Scans))
	for name := range res.Scans {
		targets = append(targets, name)
	}
	sort.Strings(targets)
	for _, name := range targets {
		fmt.Fprintln(out, color.CyanString(name))
		for _, r := range res.Scans[name] {
			printScan(out, r)
		}
	}
	return nil
}

func printScan(w io.Writer, res *scan.Result) {
	mods := res.Modules()
	line := res.File + ":"
	if len(mods) > 0 {
		line += " " + strings.Join(mods, " ")
	}
	if len(res.Conditional) > 0 {
		line += color.HiBlackString(" (canImport: %s)", strings.Join(res.Conditional, " "))
	}
	fmt.Fprintln(w, line)
}
