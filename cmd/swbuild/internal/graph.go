package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/goplus/swbuild/internal/modgraph"
	"github.com/spf13/cobra"
)

var graphExternal bool

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the target dependency graph in build order",
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().BoolVarP(&graphExternal, "external", "e", false, "Also list external modules")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	_, b, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}
	res, err := b.Resolve(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printGraph(out, res.Graph)
	if graphExternal {
		for _, mod := range res.Graph.Externals() {
			fmt.Fprintln(out, color.HiBlackString("external %s", mod))
		}
	}
	logger.Info("resolved project", "summary", res.Describe())
	return nil
}

func printGraph(out io.Writer, g *modgraph.Graph) {
	for _, name := range g.Order() {
		t := g.Target(name)
		line := fmt.Sprintf("%s %s", color.CyanString(name), color.HiBlackString("(%s)", t.Kind))
		if deps := g.Deps(name); len(deps) > 0 {
			line += " <- " + strings.Join(deps, ", ")
		}
		fmt.Fprintln(out, line)
	}
}
