package build

import (
	"context"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/logging"
)

// toBuildError converts an esbuild diagnostic.
func toBuildError(stage string, msg api.Message, severity bwerrors.ErrorSeverity) bwerrors.BuildError {
	be := bwerrors.BuildError{
		Stage:    stage,
		Message:  msg.Text,
		Severity: severity,
	}
	if msg.PluginName != "" {
		be.Message = "[" + msg.PluginName + "] " + msg.Text
	}
	if loc := msg.Location; loc != nil {
		be.File = loc.File
		be.Line = loc.Line
		be.Column = loc.Column
	}
	return be
}

// collect records errors in collector and logs warnings. It reports whether
// any error was recorded.
func collect(ctx context.Context, logger logging.Logger, stage string, result api.BuildResult, collector *bwerrors.ErrorCollector) bool {
	for _, w := range result.Warnings {
		be := toBuildError(stage, w, bwerrors.ErrorSeverityWarning)
		logger.Warn(ctx, &be, "bundler warning")
	}
	for _, e := range result.Errors {
		collector.Add(toBuildError(stage, e, bwerrors.ErrorSeverityError))
	}
	return collector.HasErrors()
}

// writeOutputs writes in-memory esbuild output files to disk.
func writeOutputs(files []api.OutputFile) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return paths, err
		}
		if err := os.WriteFile(f.Path, f.Contents, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, f.Path)
	}
	return paths, nil
}

// resetDir removes dir and recreates it empty.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
