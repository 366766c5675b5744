package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/buildwp/internal/build"
	"github.com/conneroisu/buildwp/internal/tasks"
)

var prodCmd = &cobra.Command{
	Use:   "prod",
	Short: "Run one production build",
	Long: `Mirror the static tree, bundle scripts and compile stylesheets with
minification, once. Any stage failure exits non-zero.

Examples:
  buildwp prod
  buildwp prod --dest=local`,
	Args: cobra.NoArgs,
	RunE: runProd,
}

var prodDest *destValue

func init() {
	rootCmd.AddCommand(prodCmd)
	prodDest = addDestFlag(prodCmd)
}

func runProd(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	bc, err := tasks.Prepare(ctx, s.dir, cfgFile, build.Production, prodDest.Destination(), s.logger)
	if err != nil {
		return s.report(ctx, err)
	}
	return s.report(ctx, s.tasks.Prod(ctx, bc))
}
