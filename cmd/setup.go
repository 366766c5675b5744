package cmd

import (
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Scaffold a new plugin project",
	Long: `Copy the project skeleton (buildwp.yml, package.json, .gitignore and a
src/ tree with a plugin header, script and stylesheet) into the project root
and add the buildwp commands to package.json scripts.

Existing files are never overwritten, so setup can be re-run to restore
missing pieces or to refresh the package.json scripts.

Examples:
  buildwp setup
  buildwp setup --dir ./wp-content/plugins/acme`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return s.report(ctx, s.tasks.Setup(ctx, s.dir))
}
