package internal

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/goplus/swbuild/internal/plan"
	"github.com/spf13/cobra"
)

var planStages bool

var planCmd = &cobra.Command{
	Use:   "plan [target...]",
	Short: "Print the compiler invocations of the project",
	Long: `Plan prints the command line of every target in build order, or of the
named targets only. Flags left out for lack of a compiler capability are
reported below the command.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVarP(&planStages, "stages", "s", false, "Print the flags of each stage separately")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, b, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}
	for _, name := range args {
		if cfg.Target(name) == nil {
			return fmt.Errorf("unknown target %q", name)
		}
	}
	res, err := b.Plan(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, inv := range res.Invocations {
		if len(args) > 0 && !contains(args, inv.ID.Target) {
			continue
		}
		fmt.Fprintln(out, color.CyanString("# %s", inv.ID))
		if planStages {
			printStages(cmd, inv)
		} else {
			fmt.Fprintln(out, inv.String())
		}
		if len(inv.Omitted) > 0 {
			fmt.Fprintln(out, color.YellowString("# omitted: %s", strings.Join(inv.Omitted, " ")))
		}
	}
	printWarnings(cmd.ErrOrStderr(), res.Warnings)
	return nil
}

func printStages(cmd *cobra.Command, inv *plan.Invocation) {
	out := cmd.OutOrStdout()
	for _, sf := range inv.Stages {
		if len(sf.Args) == 0 {
			continue
		}
		fmt.Fprintf(out, "%-16s %s\n", sf.Stage+":", strings.Join(sf.Args, " "))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
