package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/buildwp/internal/build"
	"github.com/conneroisu/buildwp/internal/config"
	"github.com/conneroisu/buildwp/internal/tasks"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Build for production and package a zip",
	Long: `Run a production build into out.dist and write
<out.release>/<name>-<version>.zip, with every file under a <name>/ folder as
WordPress expects. Name and version come from package.json.`,
	Args: cobra.NoArgs,
	RunE: runRelease,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	bc, err := tasks.Prepare(ctx, s.dir, cfgFile, build.Production, config.DestDist, s.logger)
	if err != nil {
		return s.report(ctx, err)
	}
	return s.report(ctx, s.tasks.Release(ctx, bc))
}
