package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/buildwp/internal/build"
	"github.com/conneroisu/buildwp/internal/tasks"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Build, then rebuild on every change",
	Long: `Run a full development build, then watch src/ and re-run the affected
stages: static files re-mirror and restyle, scripts re-bundle and restyle,
stylesheets restyle. Changes within 300ms are batched.

A failing rebuild is reported and watching continues. Stop with Ctrl+C.

Examples:
  buildwp dev
  buildwp dev --dest=local`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

var devDest *destValue

func init() {
	rootCmd.AddCommand(devCmd)
	devDest = addDestFlag(devCmd)
}

func runDev(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	bc, err := tasks.Prepare(ctx, s.dir, cfgFile, build.Development, devDest.Destination(), s.logger)
	if err != nil {
		return s.report(ctx, err)
	}
	return s.report(ctx, s.tasks.Dev(ctx, bc))
}
