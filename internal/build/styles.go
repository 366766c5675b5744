package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
)

// StageStyles names the style stage in logs and errors.
const StageStyles = "styles"

var styleExtensions = map[string]bool{
	".css":     true,
	".pcss":    true,
	".postcss": true,
}

// StyleEntries lists every stylesheet under dir, recursively, as paths
// relative to dir. A missing directory yields no entries.
func StyleEntries(dir string) ([]string, error) {
	var entries []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !styleExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}

// StyleOutputPath maps an entry's relative path to its compiled path.
func StyleOutputPath(outDir, rel string) string {
	return filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".css")
}

// StyleOptions returns the esbuild options for one entry after the plugin
// chain has run.
func StyleOptions(bc *Context, plugins []StylePlugin, entryDir, rel string, contents []byte) api.BuildOptions {
	source := filepath.Join(entryDir, rel)
	opts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(contents),
			ResolveDir: filepath.Dir(source),
			Sourcefile: filepath.ToSlash(rel),
			Loader:     api.LoaderCSS,
		},
		Outfile:  StyleOutputPath(bc.StyleOutputDir(), rel),
		Write:    false,
		LogLevel: api.LogLevelSilent,
	}
	if filepath.IsAbs(bc.Config.Root) {
		opts.AbsWorkingDir = bc.Config.Root
	}
	for _, p := range plugins {
		p.Setup(&opts, bc.Mode)
	}
	return opts
}

// BuildStyles compiles each stylesheet entry concurrently. A failing entry
// does not stop the others; every failure is returned joined once all
// entries have finished.
func BuildStyles(ctx context.Context, bc *Context) (*Result, error) {
	log := bc.Logger.WithComponent(StageStyles)
	outDir := bc.StyleOutputDir()

	plugins, err := NewStylePlugins(bc.Config.Styles)
	if err != nil {
		return nil, bwerrors.WrapBuild(err, bwerrors.ErrCodeStyleFailed, "configure style plugins", StageStyles)
	}

	if err := resetDir(outDir); err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeStyleFailed, "reset style output").WithPath(outDir)
	}

	entryDir := bc.Config.StyleEntryDir()
	entries, err := StyleEntries(entryDir)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeStyleFailed, "read style entries").WithPath(entryDir)
	}
	result := &Result{Stage: StageStyles, Entries: len(entries)}
	if len(entries) == 0 {
		log.Debug(ctx, "no style entries", "dir", entryDir)
		return result, nil
	}

	var (
		mu      sync.Mutex
		failed  []error
		outputs []string
	)
	fail := func(err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0) * 4)
	for _, rel := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				fail(err)
				return nil
			}

			paths, err := buildStyle(ctx, bc, plugins, entryDir, rel)
			if err != nil {
				log.Error(ctx, err, "stylesheet failed", "entry", rel)
				fail(err)
				return nil
			}

			mu.Lock()
			outputs = append(outputs, paths...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(outputs)
	result.Outputs = outputs

	if len(failed) > 0 {
		return result, bwerrors.WrapBuild(errors.Join(failed...), bwerrors.ErrCodeStyleFailed,
			fmt.Sprintf("%d of %d stylesheets failed", len(failed), len(entries)), StageStyles)
	}
	log.Debug(ctx, "compiled styles", "entries", len(entries), "outputs", len(outputs))
	return result, nil
}

func buildStyle(ctx context.Context, bc *Context, plugins []StylePlugin, entryDir, rel string) ([]string, error) {
	source := filepath.Join(entryDir, rel)
	contents, err := os.ReadFile(source)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeStyleFailed, "read stylesheet").WithPath(source)
	}

	built := api.Build(StyleOptions(bc, plugins, entryDir, rel, contents))

	collector := bwerrors.NewErrorCollector()
	if collect(ctx, bc.Logger.WithComponent(StageStyles), StageStyles, built, collector) {
		return nil, bwerrors.WrapBuild(collector.Err(),
			bwerrors.ErrCodeStyleFailed, "transform failed", StageStyles).WithPath(source)
	}

	paths, err := writeOutputs(built.OutputFiles)
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeStyleFailed, "write stylesheet").WithPath(source)
	}
	return paths, nil
}
