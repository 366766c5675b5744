package tasks

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/buildwp/internal/build"
	"github.com/conneroisu/buildwp/internal/composer"
	"github.com/conneroisu/buildwp/internal/config"
	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/logging"
	"github.com/conneroisu/buildwp/internal/mirror"
	"github.com/conneroisu/buildwp/internal/release"
	"github.com/conneroisu/buildwp/internal/scaffolding"
	"github.com/conneroisu/buildwp/internal/watcher"
)

// Tasks holds what every top-level operation needs.
type Tasks struct {
	Runner *Runner
	Logger logging.Logger
	// WatchDelay overrides the watcher's quiescence window.
	WatchDelay time.Duration

	syncer *mirror.Syncer
}

// New creates the task set.
func New(logger logging.Logger) *Tasks {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tasks{
		Runner: NewRunner(logger, nil),
		Logger: logger,
		syncer: mirror.NewSyncer(logger),
	}
}

// Prepare resolves configuration and the project manifest and returns the
// build context. Configuration problems fall back to defaults; a missing
// manifest is an error.
func Prepare(ctx context.Context, root, configFile string, mode build.Mode, dest config.Destination, logger logging.Logger) (*build.Context, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	cfg := config.Resolve(ctx, root, configFile, logger)

	project, err := config.LoadProject(cfg.Root)
	if err != nil {
		return nil, err
	}

	bc, err := build.NewContext(cfg, project, mode, dest, logger)
	if err != nil {
		return nil, bwerrors.Wrap(err, bwerrors.ErrorTypeValidation, bwerrors.ErrCodeConfigInvalid, "resolve output directory")
	}
	return bc, nil
}

// MirrorOptions returns the static mirror options for bc.
func MirrorOptions(bc *build.Context) (mirror.Options, error) {
	cfg := bc.Config
	rules, err := cfg.Rules(bc.Project)
	if err != nil {
		return mirror.Options{}, bwerrors.Wrap(err, bwerrors.ErrorTypeValidation, bwerrors.ErrCodeSubstitution, "render substitution rules")
	}

	reserved := cfg.Reserved()
	if cfg.Composer.Enabled {
		reserved = append(reserved, "vendor")
		reserved = append(reserved, composer.Manifests...)
	}

	return mirror.Options{
		Src:          cfg.SourceDir(),
		Dest:         bc.OutputDir,
		Exclude:      []string{cfg.In.JS, cfg.In.CSS},
		Reserved:     reserved,
		Rules:        rules,
		Verbatim:     cfg.Substitute.Exclude,
		Dependencies: cfg.Dependencies,
		Root:         cfg.Root,
	}, nil
}

// CopyStatic mirrors the static tree and runs the composer step when enabled.
func (t *Tasks) CopyStatic(ctx context.Context, bc *build.Context) error {
	return t.Runner.Run(ctx, TaskCopyStatic, func(ctx context.Context) error {
		opts, err := MirrorOptions(bc)
		if err != nil {
			return err
		}
		if _, err := t.syncer.Sync(ctx, opts); err != nil {
			return err
		}
		if !bc.Config.Composer.Enabled {
			return nil
		}
		return t.Runner.Run(ctx, TaskComposer, func(ctx context.Context) error {
			installer := composer.NewInstaller(bc.Config.Composer.Command, t.Logger)
			return installer.Install(ctx, bc.Config.Root, bc.OutputDir, bc.Mode.IsProduction())
		})
	})
}

// BuildJS runs the script stage.
func (t *Tasks) BuildJS(ctx context.Context, bc *build.Context) error {
	return t.Runner.Run(ctx, TaskBuildJS, func(ctx context.Context) error {
		_, err := build.BuildScripts(ctx, bc)
		return err
	})
}

// BuildCSS runs the style stage.
func (t *Tasks) BuildCSS(ctx context.Context, bc *build.Context) error {
	return t.Runner.Run(ctx, TaskBuildCSS, func(ctx context.Context) error {
		_, err := build.BuildStyles(ctx, bc)
		return err
	})
}

// Build runs the static, script and style stages concurrently and waits
// for all of them. Stage errors are joined.
func (t *Tasks) Build(ctx context.Context, bc *build.Context) error {
	stages := []func(context.Context, *build.Context) error{t.CopyStatic, t.BuildJS, t.BuildCSS}
	errs := make([]error, len(stages))

	var g errgroup.Group
	for i, stage := range stages {
		g.Go(func() error {
			errs[i] = stage(ctx, bc)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Setup scaffolds a project in dir.
func (t *Tasks) Setup(ctx context.Context, dir string) error {
	return t.Runner.Run(ctx, TaskSetup, func(ctx context.Context) error {
		generator := scaffolding.NewGenerator(t.Logger)
		report, err := generator.Generate(ctx, dir)
		if err != nil {
			return err
		}
		for _, skipped := range report.Skipped {
			t.Logger.Info(ctx, "kept existing file", "path", skipped)
		}
		return scaffolding.InjectScripts(filepath.Join(dir, config.ManifestName))
	})
}

// Prod runs one full build.
func (t *Tasks) Prod(ctx context.Context, bc *build.Context) error {
	return t.Runner.Run(ctx, TaskProd, func(ctx context.Context) error {
		return t.Build(ctx, bc)
	})
}

// Release builds for production into out.dist and archives the result.
func (t *Tasks) Release(ctx context.Context, bc *build.Context) error {
	return t.Runner.Run(ctx, TaskRelease, func(ctx context.Context) error {
		prod, err := bc.WithMode(build.Production).WithDest(config.DestDist)
		if err != nil {
			return err
		}
		if err := t.Build(ctx, prod); err != nil {
			return err
		}
		return t.Runner.Run(ctx, TaskZip, func(ctx context.Context) error {
			archive, err := release.Package(ctx, release.Options{
				Dir:     prod.OutputDir,
				OutDir:  prod.Config.ReleaseDir(),
				Name:    prod.Project.Name,
				Version: prod.Project.Version,
			})
			if err != nil {
				return err
			}
			t.Logger.Info(ctx, "release written", "archive", archive)
			return nil
		})
	})
}

// Dev runs one full build, then watches the source tree and re-runs the
// affected stages until ctx is cancelled. Failures of the initial build are
// returned; failures of triggered rebuilds are logged and watching goes on.
func (t *Tasks) Dev(ctx context.Context, bc *build.Context) error {
	if err := t.Runner.Run(ctx, TaskDev, func(ctx context.Context) error {
		return t.Build(ctx, bc)
	}); err != nil {
		return err
	}

	fw, err := t.Watch(ctx, bc)
	if err != nil {
		return err
	}
	t.Logger.Info(ctx, "watching all files...")

	<-ctx.Done()
	if err := fw.Stop(); err != nil {
		t.Logger.Warn(context.Background(), err, "stopping watcher")
	}

	metrics := t.Runner.Metrics()
	snap := metrics.Snapshot()
	t.Logger.Info(context.Background(), "dev session ended",
		"runs", snap.TotalRuns,
		"failed", snap.FailedRuns,
		"success", fmt.Sprintf("%.0f%%", metrics.SuccessRate()),
		"average", logging.FormatDuration(snap.AverageDuration))
	return nil
}

// Triggers returns the dev watch triggers for bc: static changes re-run the
// mirror and styles, script changes re-run scripts and styles, and style
// changes re-run styles. The stages of one trigger run concurrently. Globs
// are relative to the project root, so the source tree must lie inside it.
func (t *Tasks) Triggers(bc *build.Context) ([]*watcher.Trigger, error) {
	cfg := bc.Config
	rel, err := filepath.Rel(cfg.Root, cfg.SourceDir())
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, bwerrors.NewValidationError(bwerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("in.src %q must lie inside the project root to be watched", cfg.In.Src))
	}
	src := filepath.ToSlash(rel)
	scripts := path.Join(src, cfg.In.JS, "**")
	styles := path.Join(src, cfg.In.CSS, "**")

	return []*watcher.Trigger{
		watcher.NewTrigger("static", []string{path.Join(src, "**")}, []string{scripts, styles}, concurrently(bc, t.CopyStatic, t.BuildCSS)),
		watcher.NewTrigger("scripts", []string{scripts}, nil, concurrently(bc, t.BuildJS, t.BuildCSS)),
		watcher.NewTrigger("styles", []string{styles}, nil, concurrently(bc, t.BuildCSS)),
	}, nil
}

// concurrently returns a watch action running stages side by side and
// waiting for all of them. Stage errors are already logged by the runner.
func concurrently(bc *build.Context, stages ...func(context.Context, *build.Context) error) watcher.Action {
	return func(ctx context.Context, _ []watcher.ChangeEvent) {
		var g errgroup.Group
		for _, stage := range stages {
			g.Go(func() error {
				_ = stage(ctx, bc)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// Watch starts a watcher over the source tree with the dev triggers.
func (t *Tasks) Watch(ctx context.Context, bc *build.Context) (*watcher.FileWatcher, error) {
	cfg := bc.Config
	triggers, err := t.Triggers(bc)
	if err != nil {
		return nil, err
	}

	fw, err := watcher.NewFileWatcher(cfg.Root, t.WatchDelay, t.Logger)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeConfigInvalid, "create watcher").WithPath(cfg.Root)
	}
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)

	for _, trigger := range triggers {
		fw.AddTrigger(trigger)
	}

	if err := fw.AddRecursive(cfg.SourceDir()); err != nil {
		fw.Stop()
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeConfigInvalid, "watch source tree").WithPath(cfg.SourceDir())
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}
