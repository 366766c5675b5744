// Package cmd provides the buildwp command-line interface.
//
// Configuration System:
//
//	Global flags are bound into viper, so each can also be set from the
//	environment with the BUILDWP_ prefix:
//	1. Command-line flags (--log-level, --log-format, --dir) - highest priority
//	2. Environment variables (BUILDWP_LOG_LEVEL, BUILDWP_LOG_FORMAT, BUILDWP_DIR)
//	3. Built-in defaults
//
//	Project settings (source and output layout, substitutions, plugins) live
//	in buildwp.yml in the project root and are read per invocation; --config
//	names a different file.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/logging"
	"github.com/conneroisu/buildwp/internal/tasks"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buildwp",
	Short: "Front-end build orchestrator for WordPress plugins",
	Long: `buildwp builds the front end of a WordPress plugin: it mirrors the static
PHP tree with header substitutions, bundles scripts, compiles stylesheets and
packages release archives.

Quick Start:
  buildwp setup                   Scaffold a new plugin in the current directory
  buildwp dev                     Build and rebuild on change
  buildwp dev --dest=local        Build into out.local (e.g. a WordPress install)
  buildwp prod                    One production build
  buildwp release                 Production build plus <name>-<version>.zip`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, rootCmd)
}

func execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	var r reportedError
	if !errors.As(err, &r) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is buildwp.yml in the project root)")
	flags.StringP("dir", "C", ".", "project root")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.Var(newLogFormatValue(), "log-format", "log format (console, text, json)")

	for _, name := range []string{"dir", "log-level", "log-format"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig enables BUILDWP_ environment overrides for the global flags.
func initConfig() {
	viper.SetEnvPrefix("BUILDWP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// reportedError marks an error that has already been logged.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// session is what every build command needs.
type session struct {
	dir    string
	logger logging.Logger
	tasks  *tasks.Tasks
}

func newSession(cmd *cobra.Command) (*session, error) {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	format, err := parseLogFormat(viper.GetString("log-format"))
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: format,
		Output: cmd.OutOrStdout(),
	})

	return &session{
		dir:    viper.GetString("dir"),
		logger: logger,
		tasks:  tasks.New(logger),
	}, nil
}

// report logs err by category and marks it as reported.
func (s *session) report(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	bwerrors.NewErrorHandler(s.logger).Handle(ctx, err)
	if bwerrors.HasCode(err, bwerrors.ErrCodeManifestMissing) {
		s.logger.Info(ctx, "run 'buildwp setup' to scaffold a plugin here")
	}
	return reportedError{err}
}
