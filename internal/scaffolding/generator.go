// Package scaffolding creates a new buildwp project from an embedded
// skeleton and wires the buildwp commands into its package.json.
package scaffolding

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/conneroisu/buildwp/internal/config"
	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/logging"
)

// ConfigFile is the configuration file written by Generate.
const ConfigFile = config.ConfigName + ".yml"

// Report lists what Generate did, as slash paths relative to the target.
type Report struct {
	Created []string
	Skipped []string
}

// Generator copies the skeleton into a directory.
type Generator struct {
	logger   logging.Logger
	skeleton fs.FS
}

// NewGenerator creates a generator over the embedded skeleton.
func NewGenerator(logger logging.Logger) *Generator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Generator{
		logger:   logger.WithComponent("scaffolding"),
		skeleton: Skeleton(),
	}
}

// Generate writes the skeleton and buildwp.yml into dir. Existing files are
// never overwritten.
func (g *Generator) Generate(ctx context.Context, dir string) (*Report, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeScaffoldFailed, "resolve target directory").WithPath(dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeScaffoldFailed, "create target directory").WithPath(abs)
	}

	tc := NewTemplateContext(abs)
	report := &Report{}

	err = fs.WalkDir(g.skeleton, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		data, err := fs.ReadFile(g.skeleton, p)
		if err != nil {
			return err
		}
		content, err := render(p, data, tc)
		if err != nil {
			return bwerrors.Wrap(err, bwerrors.ErrorTypeInternal, bwerrors.ErrCodeScaffoldFailed, "render "+p)
		}
		return g.place(abs, targetPath(p, tc), content, report)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var bwErr *bwerrors.BuildwpError
		if errors.As(err, &bwErr) {
			return nil, err
		}
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeScaffoldFailed, "copy skeleton").WithPath(abs)
	}

	cfg, err := RenderConfig()
	if err != nil {
		return nil, bwerrors.Wrap(err, bwerrors.ErrorTypeInternal, bwerrors.ErrCodeScaffoldFailed, "render "+ConfigFile)
	}
	if err := g.place(abs, ConfigFile, cfg, report); err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeScaffoldFailed, "write "+ConfigFile).WithPath(abs)
	}

	sort.Strings(report.Created)
	sort.Strings(report.Skipped)
	g.logger.Debug(ctx, "skeleton written", "dir", abs, "created", len(report.Created), "skipped", len(report.Skipped))
	return report, nil
}

// place writes content to root/rel unless the file already exists.
func (g *Generator) place(root, rel string, content []byte, report *Report) error {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		report.Skipped = append(report.Skipped, path.Clean(rel))
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	report.Created = append(report.Created, path.Clean(rel))
	return nil
}
