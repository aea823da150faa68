package internal

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/goplus/swbuild/internal/host"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the build nodes of the project for the host engine",
	Long: `Export plans every target and writes the resulting build nodes, with their
ordering dependencies, to nodes.json in the output directory. The build
directory of the project is used by default.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", "", "Directory to write nodes.json to")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, b, err := loadProject(cmd.Context())
	if err != nil {
		return err
	}
	eng := host.NewMemory()
	res, err := b.Build(cmd.Context(), eng)
	if err != nil {
		return err
	}
	printWarnings(cmd.ErrOrStderr(), res.Warnings)

	dir := exportDir
	if dir == "" {
		dir = cfg.Abs(cfg.BuildDir)
	}
	if err := eng.Save(afero.NewOsFs(), dir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d nodes to %s (build %s)\n",
		color.GreenString("exported"), len(eng.Nodes()), filepath.Join(dir, host.ManifestFile), eng.BuildID())
	return nil
}
