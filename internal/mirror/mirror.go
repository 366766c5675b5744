// Package mirror keeps the static part of an output directory in step with
// the source tree.
//
// A Sync runs three steps. The prune step walks the output root and removes
// every entry that has no counterpart of the same kind in the current source
// enumeration, at any depth. Reserved top-level names (the compiled script and
// style directories) are never visited. The populate step recreates the source
// directories and streams every file through the substitution filter into the
// output, fanning writes out over a bounded errgroup. Each file is fsynced and
// closed before Sync returns. The dependency step copies vendored directories
// into the output root with symlinks resolved to their targets.
package mirror

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
	"github.com/conneroisu/buildwp/internal/logging"
	"github.com/conneroisu/buildwp/internal/substitute"
)

// Options describes one mirror run.
type Options struct {
	// Src is the source root.
	Src string
	// Dest is the output root.
	Dest string
	// Exclude lists source-relative directories that are not mirrored.
	Exclude []string
	// Reserved lists output top-level names that are never pruned.
	Reserved []string
	// Rules are applied in order to every mirrored file.
	Rules []substitute.Rule
	// Verbatim lists doublestar globs, relative to Src, of files copied
	// without substitution.
	Verbatim []string
	// Dependencies are directories, relative to Root, copied into Dest.
	Dependencies []string
	// Root resolves relative dependency paths.
	Root string
	// Concurrency bounds parallel file writes. Zero means GOMAXPROCS*4.
	Concurrency int
}

// Result summarizes a mirror run.
type Result struct {
	Files        int
	Dirs         int
	Pruned       int
	Dependencies int
}

type kind uint8

const (
	kindFile kind = iota + 1
	kindDir
)

type entry struct {
	rel  string
	kind kind
	mode fs.FileMode
}

// Syncer mirrors a source tree into an output root.
type Syncer struct {
	logger logging.Logger
}

// NewSyncer creates a Syncer. A nil logger discards output.
func NewSyncer(logger logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{logger: logger.WithComponent("mirror")}
}

// Sync makes opts.Dest's non-reserved contents match opts.Src.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	filter, err := substitute.New(opts.Rules)
	if err != nil {
		return nil, bwerrors.Wrap(err, bwerrors.ErrorTypeValidation, bwerrors.ErrCodeSubstitution, "invalid substitution rules")
	}

	if err := checkLayout(opts); err != nil {
		return nil, err
	}

	deps, err := resolveDependencies(opts)
	if err != nil {
		return nil, err
	}

	entries, err := s.enumerate(ctx, opts)
	if err != nil {
		return nil, err
	}

	expected := make(map[string]kind, len(entries))
	for _, e := range entries {
		expected[e.rel] = e.kind
	}
	for name := range deps {
		if _, clash := expected[name]; clash {
			return nil, bwerrors.NewValidationError(bwerrors.ErrCodeMirrorFailed,
				fmt.Sprintf("dependency %q collides with a source entry", name)).WithPath(filepath.Join(opts.Src, name))
		}
	}

	result := &Result{}

	if err := os.MkdirAll(opts.Dest, 0o755); err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "create output root").WithPath(opts.Dest)
	}

	pruned, err := prune(ctx, opts.Dest, opts.Reserved, deps, expected)
	if err != nil {
		return nil, err
	}
	result.Pruned = pruned

	files, dirs, err := s.populate(ctx, opts, entries, filter)
	if err != nil {
		return nil, err
	}
	result.Files, result.Dirs = files, dirs

	copied, err := copyDependencies(ctx, opts.Dest, deps)
	if err != nil {
		return nil, err
	}
	result.Dependencies = copied

	s.logger.Debug(ctx, "mirror complete",
		"files", result.Files,
		"dirs", result.Dirs,
		"pruned", result.Pruned,
		"dependencies", result.Dependencies)

	return result, nil
}

func checkLayout(opts Options) error {
	info, err := os.Stat(opts.Src)
	if err != nil {
		return bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "source root not readable").WithPath(opts.Src)
	}
	if !info.IsDir() {
		return bwerrors.NewValidationError(bwerrors.ErrCodeMirrorFailed, "source root is not a directory").WithPath(opts.Src)
	}

	src, err := filepath.Abs(opts.Src)
	if err != nil {
		return bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "resolve source root")
	}
	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "resolve output root")
	}
	if within(dest, src) {
		return bwerrors.NewValidationError(bwerrors.ErrCodeMirrorFailed, "output root must not contain the source tree").WithPath(dest)
	}
	if rel, err := filepath.Rel(src, dest); err == nil && within(src, dest) && !isExcluded(filepath.ToSlash(rel), opts.Exclude) {
		return bwerrors.NewValidationError(bwerrors.ErrCodeMirrorFailed, "output root must not be inside the mirrored source tree").WithPath(dest)
	}
	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveDependencies maps each dependency's output name to its absolute
// source directory.
func resolveDependencies(opts Options) (map[string]string, error) {
	deps := make(map[string]string, len(opts.Dependencies))
	for _, dep := range opts.Dependencies {
		path := dep
		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.Root, dep)
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			if err == nil {
				err = fmt.Errorf("not a directory")
			}
			return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeDependencyMissing,
				fmt.Sprintf("dependency directory %q is missing", dep)).WithPath(path)
		}
		deps[filepath.Base(path)] = path
	}
	return deps, nil
}

func isExcluded(rel string, exclude []string) bool {
	for _, ex := range exclude {
		ex = strings.Trim(filepath.ToSlash(ex), "/")
		if ex == "" {
			continue
		}
		if rel == ex || strings.HasPrefix(rel, ex+"/") {
			return true
		}
	}
	return false
}

// enumerate lists every mirror entry under opts.Src in lexical order.
func (s *Syncer) enumerate(ctx context.Context, opts Options) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(opts.Src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == opts.Src {
			return nil
		}

		rel, err := filepath.Rel(opts.Src, path)
		if err != nil {
			return err
		}
		if isExcluded(filepath.ToSlash(rel), opts.Exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			entries = append(entries, entry{rel: rel, kind: kindDir, mode: info.Mode()})
		case info.IsDir():
			s.logger.Warn(ctx, nil, "skipping symlinked directory", "path", path)
		case info.Mode().IsRegular():
			entries = append(entries, entry{rel: rel, kind: kindFile, mode: info.Mode()})
		}
		return nil
	})
	if err != nil {
		return nil, bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "enumerate source tree").WithPath(opts.Src)
	}
	return entries, nil
}

// prune removes output entries with no source counterpart of the same kind.
func prune(ctx context.Context, dest string, reserved []string, deps map[string]string, expected map[string]kind) (int, error) {
	keep := make(map[string]bool, len(reserved))
	for _, name := range reserved {
		keep[name] = true
	}

	pruned := 0
	err := filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == dest {
			return nil
		}

		rel, err := filepath.Rel(dest, path)
		if err != nil {
			return err
		}

		topLevel := !strings.ContainsRune(rel, filepath.Separator)
		if topLevel && keep[rel] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// Dependency directories are replaced wholesale on every run.
		if _, ok := deps[rel]; ok && topLevel {
			if err := os.RemoveAll(path); err != nil {
				return err
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		want, ok := expected[rel]
		if ok && d.Type()&fs.ModeSymlink == 0 && (want == kindDir) == d.IsDir() {
			return nil
		}

		if err := os.RemoveAll(path); err != nil {
			return err
		}
		pruned++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return pruned, bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "prune output root").WithPath(dest)
	}
	return pruned, nil
}

func (s *Syncer) populate(ctx context.Context, opts Options, entries []entry, filter *substitute.Filter) (int, int, error) {
	dirs := 0
	var files []entry
	for _, e := range entries {
		if e.kind == kindDir {
			if err := os.MkdirAll(filepath.Join(opts.Dest, e.rel), e.mode.Perm()|0o700); err != nil {
				return 0, dirs, bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "create directory").WithPath(e.rel)
			}
			dirs++
			continue
		}
		files = append(files, e)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0) * 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, e := range files {
		f := filter
		if matchAny(opts.Verbatim, filepath.ToSlash(e.rel)) {
			f = nil
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := filepath.Join(opts.Src, e.rel)
			dst := filepath.Join(opts.Dest, e.rel)
			if err := writeFile(dst, src, e.mode.Perm(), f); err != nil {
				return bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "mirror file").WithPath(src)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, dirs, err
	}
	return len(files), dirs, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// writeFile streams src through filter into a temporary file beside dst,
// flushes it to disk and renames it over dst. The existing dst is replaced
// rather than reopened, so read-only outputs from an earlier run are fine.
func writeFile(dst, src string, perm fs.FileMode, filter *substitute.Filter) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()

	if filter.Empty() {
		_, err = io.Copy(out, in)
	} else {
		_, err = filter.Copy(out, in)
	}
	if err != nil {
		return err
	}
	if err = out.Chmod(perm); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(out.Name(), dst)
}

func copyDependencies(ctx context.Context, dest string, deps map[string]string) (int, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	opt := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
		Sync:      true,
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := copy.Copy(deps[name], filepath.Join(dest, name), opt); err != nil {
			return 0, bwerrors.WrapIO(err, bwerrors.ErrCodeMirrorFailed, "copy dependency").WithPath(deps[name])
		}
	}
	return len(names), nil
}
