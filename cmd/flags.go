package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/buildwp/internal/config"
)

// destValue is the --dest enum.
type destValue config.Destination

var _ pflag.Value = (*destValue)(nil)

func (d *destValue) String() string {
	return string(*d)
}

func (d *destValue) Set(s string) error {
	dest, err := config.ParseDestination(s)
	if err != nil {
		return err
	}
	*d = destValue(dest)
	return nil
}

func (d *destValue) Type() string {
	return "dist|local"
}

// Destination returns the parsed value.
func (d *destValue) Destination() config.Destination {
	return config.Destination(*d)
}

// addDestFlag registers --dest on cmd, defaulting to dist.
func addDestFlag(cmd *cobra.Command) *destValue {
	dest := destValue(config.DestDist)
	cmd.Flags().Var(&dest, "dest", "output root to build into (dist or local)")
	if err := cmd.RegisterFlagCompletionFunc("dest", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(config.DestDist), string(config.DestLocal)}, cobra.ShellCompDirectiveNoFileComp
	}); err != nil {
		panic(err)
	}
	return &dest
}

var logFormats = []string{"console", "text", "json"}

// logFormatValue is the --log-format enum.
type logFormatValue string

func newLogFormatValue() *logFormatValue {
	v := logFormatValue("console")
	return &v
}

func (f *logFormatValue) String() string {
	return string(*f)
}

func (f *logFormatValue) Set(s string) error {
	format, err := parseLogFormat(s)
	if err != nil {
		return err
	}
	*f = logFormatValue(format)
	return nil
}

func (f *logFormatValue) Type() string {
	return strings.Join(logFormats, "|")
}

func parseLogFormat(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "console", nil
	}
	for _, format := range logFormats {
		if s == format {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown log format %q (expected %s)", s, strings.Join(logFormats, ", "))
}
